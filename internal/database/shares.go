package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Share is a public, expiring token granting unauthenticated download access
// to a completed job's output.
type Share struct {
	ID                 pgtype.UUID
	Token              string
	UserID             pgtype.UUID
	JobID              pgtype.UUID
	OriginalFilename   string
	CompressedFilename string
	StorageKey         string
	ExpiresAt          time.Time
	CreatedAt          time.Time
}

const shareCols = `id, token, user_id, job_id, original_filename, compressed_filename,
	storage_key, expires_at, created_at`

func scanShare(row pgx.Row) (Share, error) {
	var sh Share
	err := row.Scan(&sh.ID, &sh.Token, &sh.UserID, &sh.JobID, &sh.OriginalFilename,
		&sh.CompressedFilename, &sh.StorageKey, &sh.ExpiresAt, &sh.CreatedAt)
	return sh, err
}

type CreateShareParams struct {
	Token              string
	UserID             pgtype.UUID
	JobID              pgtype.UUID
	OriginalFilename   string
	CompressedFilename string
	StorageKey         string
	ExpiresAt          time.Time
}

func (s *Store) CreateShare(ctx context.Context, arg CreateShareParams) (Share, error) {
	return scanShare(s.pool.QueryRow(ctx, `
		INSERT INTO shares (token, user_id, job_id, original_filename, compressed_filename,
			storage_key, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+shareCols,
		arg.Token, arg.UserID, arg.JobID, arg.OriginalFilename, arg.CompressedFilename,
		arg.StorageKey, arg.ExpiresAt))
}

// GetShareByToken resolves a live share. Expired tokens are invisible here;
// they are swept separately.
func (s *Store) GetShareByToken(ctx context.Context, token string) (Share, error) {
	return scanShare(s.pool.QueryRow(ctx, `
		SELECT `+shareCols+` FROM shares WHERE token = $1 AND expires_at > NOW()`, token))
}

func (s *Store) ListSharesByUser(ctx context.Context, userID pgtype.UUID) ([]Share, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+shareCols+` FROM shares
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shares []Share
	for rows.Next() {
		sh, err := scanShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, sh)
	}
	return shares, rows.Err()
}

func (s *Store) DeleteShareForUser(ctx context.Context, id, userID pgtype.UUID) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM shares WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) DeleteExpiredShares(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM shares WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
