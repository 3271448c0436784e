package fileserver

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/core/storage"
	"github.com/yat0i811/CompShare/internal/database"
)

// Server handles public, token-addressed downloads: signed download tokens
// minted into done events (/dl/...) and database-backed share links (/s/...).
// Both resolve to a redirect to a presigned storage URL; bytes never pass
// through this process.
type Server struct {
	store         *database.Store
	objects       storage.ObjectStore
	signer        *Signer
	presignExpiry time.Duration
}

func NewServer(store *database.Store, objects storage.ObjectStore, signer *Signer, presignExpiry time.Duration) *Server {
	return &Server{
		store:         store,
		objects:       objects,
		signer:        signer,
		presignExpiry: presignExpiry,
	}
}

// ServeDownload is the http.HandlerFunc for /dl/{token}/{filename} routes.
func (s *Server) ServeDownload(w http.ResponseWriter, r *http.Request) {
	token, filename := splitTokenPath(r.URL.Path, "/dl/")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	_, storageKey, _, err := s.signer.Verify(token)
	if err != nil {
		log.Debug().Err(err).Msg("invalid download token")
		http.Error(w, "invalid or expired link", http.StatusForbidden)
		return
	}

	dst, err := s.objects.PresignGet(r.Context(), storageKey, filename, s.presignExpiry)
	if err != nil {
		log.Error().Err(err).Str("key", storageKey).Msg("presign download failed")
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, dst, http.StatusFound)
}

// ServeShare is the http.HandlerFunc for /s/{token} routes.
func (s *Server) ServeShare(w http.ResponseWriter, r *http.Request) {
	token, _ := splitTokenPath(r.URL.Path, "/s/")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	share, err := s.store.GetShareByToken(r.Context(), token)
	if err != nil {
		log.Debug().Err(err).Msg("unknown or expired share token")
		http.Error(w, "unknown or expired share", http.StatusNotFound)
		return
	}

	dst, err := s.objects.PresignGet(r.Context(), share.StorageKey, share.CompressedFilename, s.presignExpiry)
	if err != nil {
		log.Error().Err(err).Str("key", share.StorageKey).Msg("presign share failed")
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, dst, http.StatusFound)
}

func splitTokenPath(path, prefix string) (token, filename string) {
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.SplitN(rest, "/", 2)
	token = parts[0]
	if len(parts) == 2 {
		filename, _ = url.PathUnescape(parts[1])
	}
	return token, filename
}

// DownloadURL builds the public link for a signed download token.
func DownloadURL(publicURL, token, filename string) string {
	return strings.TrimSuffix(publicURL, "/") + "/dl/" + token + "/" + url.PathEscape(filename)
}

// ShareURL builds the public link for a share token.
func ShareURL(publicURL, token string) string {
	return strings.TrimSuffix(publicURL, "/") + "/s/" + token
}
