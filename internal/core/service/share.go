package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/core/fileserver"
	"github.com/yat0i811/CompShare/internal/core/job"
	"github.com/yat0i811/CompShare/internal/core/storage"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
)

// ShareService mints public expiring links for completed outputs. Unlike
// signed download tokens, shares are revocable rows; the public route looks
// them up on every hit.
type ShareService struct {
	store   *database.Store
	objects storage.ObjectStore

	publicURL string
	expiry    time.Duration
}

func NewShareService(store *database.Store, objects storage.ObjectStore, publicURL string, expiry time.Duration) *ShareService {
	return &ShareService{
		store:     store,
		objects:   objects,
		publicURL: publicURL,
		expiry:    expiry,
	}
}

func (s *ShareService) Create(ctx context.Context, userID, jobID string) (*database.Share, error) {
	row, err := s.store.GetJobForUser(ctx, util.TextToUUID(jobID), util.TextToUUID(userID))
	if err != nil {
		return nil, err
	}
	if row.Status != string(job.StateDone) || !row.OutputKey.Valid {
		return nil, ErrJobNotDone
	}

	ok, err := s.objects.Exists(ctx, row.OutputKey.String)
	if err != nil {
		return nil, fmt.Errorf("check output: %w", err)
	}
	if !ok {
		return nil, ErrOutputMissing
	}

	share, err := s.store.CreateShare(ctx, database.CreateShareParams{
		Token:              fileserver.NewShareToken(),
		UserID:             row.UserID,
		JobID:              row.ID,
		OriginalFilename:   row.Filename,
		CompressedFilename: row.OutputFilename.String,
		StorageKey:         row.OutputKey.String,
		ExpiresAt:          time.Now().Add(s.expiry),
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("job_id", jobID).Str("user", userID).Msg("share link created")
	return &share, nil
}

func (s *ShareService) List(ctx context.Context, userID string) ([]database.Share, error) {
	return s.store.ListSharesByUser(ctx, util.TextToUUID(userID))
}

func (s *ShareService) Revoke(ctx context.Context, userID, shareID string) error {
	n, err := s.store.DeleteShareForUser(ctx, util.TextToUUID(shareID), util.TextToUUID(userID))
	if err != nil {
		return err
	}
	if n == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// URL builds the public link for a share token.
func (s *ShareService) URL(token string) string {
	return fileserver.ShareURL(s.publicURL, token)
}

// SweepExpired removes expired share rows.
func (s *ShareService) SweepExpired(ctx context.Context) {
	n, err := s.store.DeleteExpiredShares(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("expired share sweep failed")
		return
	}
	if n > 0 {
		log.Debug().Int64("count", n).Msg("expired shares swept")
	}
}
