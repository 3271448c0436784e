package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// UploadGrant records a presigned upload URL issued to a user. The grant is
// what entitles its owner to submit the object for compression later.
type UploadGrant struct {
	StorageKey   string
	UserID       pgtype.UUID
	Filename     string
	DeclaredSize int64
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

const uploadGrantCols = `storage_key, user_id, filename, declared_size, created_at, expires_at`

func scanUploadGrant(row pgx.Row) (UploadGrant, error) {
	var g UploadGrant
	err := row.Scan(&g.StorageKey, &g.UserID, &g.Filename, &g.DeclaredSize, &g.CreatedAt, &g.ExpiresAt)
	return g, err
}

type CreateUploadGrantParams struct {
	StorageKey   string
	UserID       pgtype.UUID
	Filename     string
	DeclaredSize int64
	ExpiresAt    time.Time
}

func (s *Store) CreateUploadGrant(ctx context.Context, arg CreateUploadGrantParams) (UploadGrant, error) {
	return scanUploadGrant(s.pool.QueryRow(ctx, `
		INSERT INTO upload_grants (storage_key, user_id, filename, declared_size, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+uploadGrantCols,
		arg.StorageKey, arg.UserID, arg.Filename, arg.DeclaredSize, arg.ExpiresAt))
}

func (s *Store) GetUploadGrant(ctx context.Context, storageKey string) (UploadGrant, error) {
	return scanUploadGrant(s.pool.QueryRow(ctx, `
		SELECT `+uploadGrantCols+` FROM upload_grants WHERE storage_key = $1`, storageKey))
}

func (s *Store) DeleteUploadGrant(ctx context.Context, storageKey string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM upload_grants WHERE storage_key = $1`, storageKey)
	return err
}

// ListExpiredUploadGrants returns grants whose source objects are due for
// cleanup. Used by the janitor to delete abandoned uploads.
func (s *Store) ListExpiredUploadGrants(ctx context.Context, limit int32) ([]UploadGrant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+uploadGrantCols+` FROM upload_grants
		WHERE expires_at < NOW()
		ORDER BY expires_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []UploadGrant
	for rows.Next() {
		g, err := scanUploadGrant(rows)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
