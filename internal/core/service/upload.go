package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/core/storage"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
)

// UploadService issues presigned upload URLs and sweeps abandoned uploads.
// Video bytes go straight from the browser to object storage; this process
// only hands out the keys.
type UploadService struct {
	store   *database.Store
	objects storage.ObjectStore

	maxUploadBytes int64
	presignExpiry  time.Duration
	sourceTTL      time.Duration
}

func NewUploadService(store *database.Store, objects storage.ObjectStore, maxUploadBytes int64, presignExpiry, sourceTTL time.Duration) *UploadService {
	return &UploadService{
		store:          store,
		objects:        objects,
		maxUploadBytes: maxUploadBytes,
		presignExpiry:  presignExpiry,
		sourceTTL:      sourceTTL,
	}
}

type UploadGrantRequest struct {
	UserID   string
	Filename string
	Size     int64
}

type UploadGrantResponse struct {
	StorageKey string
	UploadURL  string
	ExpiresAt  time.Time
}

// Grant reserves a storage key for a client-side upload. The grant row is
// what entitles its owner to submit the key for compression later.
func (s *UploadService) Grant(ctx context.Context, req UploadGrantRequest) (*UploadGrantResponse, error) {
	filename := sanitizeFilename(req.Filename)
	if filename == "" {
		return nil, &ValidationError{Field: "filename", Reason: "required"}
	}
	if req.Size <= 0 {
		return nil, &ValidationError{Field: "size", Reason: "must be positive"}
	}
	if req.Size > s.maxUploadBytes {
		return nil, &QuotaError{DeclaredSize: req.Size, CapacityBytes: s.maxUploadBytes}
	}

	user, err := s.store.GetUserByID(ctx, util.TextToUUID(req.UserID))
	if err != nil {
		return nil, err
	}
	if req.Size > user.UploadCapacityBytes {
		return nil, &QuotaError{DeclaredSize: req.Size, CapacityBytes: user.UploadCapacityBytes}
	}

	key := "uploads/" + strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + filename
	uploadURL, err := s.objects.PresignPut(ctx, key, s.presignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	grant, err := s.store.CreateUploadGrant(ctx, database.CreateUploadGrantParams{
		StorageKey:   key,
		UserID:       util.TextToUUID(req.UserID),
		Filename:     filename,
		DeclaredSize: req.Size,
		ExpiresAt:    time.Now().Add(s.sourceTTL),
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("user", req.UserID).Str("key", key).Int64("size", req.Size).Msg("upload grant issued")
	return &UploadGrantResponse{
		StorageKey: grant.StorageKey,
		UploadURL:  uploadURL,
		ExpiresAt:  grant.ExpiresAt,
	}, nil
}

// SweepExpired deletes grant rows past their TTL along with any source
// object still sitting in the bucket. Grants of completed jobs are removed
// on completion, so whatever is left here was abandoned or failed.
func (s *UploadService) SweepExpired(ctx context.Context) {
	grants, err := s.store.ListExpiredUploadGrants(ctx, 100)
	if err != nil {
		log.Warn().Err(err).Msg("expired grant listing failed")
		return
	}
	for _, g := range grants {
		if err := s.objects.Delete(ctx, g.StorageKey); err != nil {
			log.Warn().Err(err).Str("key", g.StorageKey).Msg("stale source delete failed")
		}
		if err := s.store.DeleteUploadGrant(ctx, g.StorageKey); err != nil {
			log.Warn().Err(err).Str("key", g.StorageKey).Msg("stale grant delete failed")
			continue
		}
		log.Debug().Str("key", g.StorageKey).Msg("expired upload swept")
	}
}

// sanitizeFilename strips any path the client smuggled into the name.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
