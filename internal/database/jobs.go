package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type Job struct {
	ID             pgtype.UUID
	UserID         pgtype.UUID
	CorrelationID  string
	SourceKey      string
	Filename       string
	CRF            pgtype.Int4
	BitrateKbps    pgtype.Int4
	Resolution     string
	Width          pgtype.Int4
	Height         pgtype.Int4
	HWAccel        bool
	Status         string
	Progress       float64
	ErrorMessage   pgtype.Text
	OutputKey      pgtype.Text
	OutputFilename pgtype.Text
	OutputSize     pgtype.Int8
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    pgtype.Timestamptz
}

const jobCols = `id, user_id, correlation_id, source_key, filename, crf, bitrate_kbps,
	resolution, width, height, hwaccel, status, progress, error_message,
	output_key, output_filename, output_size, created_at, updated_at, completed_at`

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.UserID, &j.CorrelationID, &j.SourceKey, &j.Filename,
		&j.CRF, &j.BitrateKbps, &j.Resolution, &j.Width, &j.Height, &j.HWAccel,
		&j.Status, &j.Progress, &j.ErrorMessage,
		&j.OutputKey, &j.OutputFilename, &j.OutputSize,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	return j, err
}

type CreateJobParams struct {
	UserID        pgtype.UUID
	CorrelationID string
	SourceKey     string
	Filename      string
	CRF           pgtype.Int4
	BitrateKbps   pgtype.Int4
	Resolution    string
	Width         pgtype.Int4
	Height        pgtype.Int4
	HWAccel       bool
}

func (s *Store) CreateJob(ctx context.Context, arg CreateJobParams) (Job, error) {
	return scanJob(s.pool.QueryRow(ctx, `
		INSERT INTO jobs (user_id, correlation_id, source_key, filename, crf, bitrate_kbps,
			resolution, width, height, hwaccel, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending')
		RETURNING `+jobCols,
		arg.UserID, arg.CorrelationID, arg.SourceKey, arg.Filename, arg.CRF, arg.BitrateKbps,
		arg.Resolution, arg.Width, arg.Height, arg.HWAccel))
}

func (s *Store) GetJob(ctx context.Context, id pgtype.UUID) (Job, error) {
	return scanJob(s.pool.QueryRow(ctx, `SELECT `+jobCols+` FROM jobs WHERE id = $1`, id))
}

func (s *Store) GetJobForUser(ctx context.Context, id, userID pgtype.UUID) (Job, error) {
	return scanJob(s.pool.QueryRow(ctx, `
		SELECT `+jobCols+` FROM jobs WHERE id = $1 AND user_id = $2`, id, userID))
}

func (s *Store) ListJobsByUser(ctx context.Context, userID pgtype.UUID, limit, offset int32) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobCols+` FROM jobs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// MarkJobRunning transitions pending -> running. A no-op for any other state,
// so terminal states stay final.
func (s *Store) MarkJobRunning(ctx context.Context, id pgtype.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'running', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id)
	return err
}

// UpdateJobProgress persists the latest progress estimate. GREATEST keeps the
// stored value non-decreasing even if updates land out of order.
func (s *Store) UpdateJobProgress(ctx context.Context, id pgtype.UUID, progress float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET progress = GREATEST(progress, $2), updated_at = NOW()
		WHERE id = $1 AND status = 'running'`, id, progress)
	return err
}

type CompleteJobParams struct {
	ID             pgtype.UUID
	OutputKey      string
	OutputFilename string
	OutputSize     int64
}

func (s *Store) CompleteJob(ctx context.Context, arg CompleteJobParams) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'done', progress = 100,
			output_key = $2, output_filename = $3, output_size = $4,
			updated_at = NOW(), completed_at = NOW()
		WHERE id = $1 AND status = 'running'`,
		arg.ID, arg.OutputKey, arg.OutputFilename, arg.OutputSize)
	return err
}

func (s *Store) FailJob(ctx context.Context, id pgtype.UUID, detail string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'error', error_message = $2,
			updated_at = NOW(), completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')`, id, detail)
	return err
}

// FailStaleJobs marks jobs left pending or running by a previous process as
// failed. Run at boot, before the worker pool starts, so a crash never
// leaves a job that reports running forever.
func (s *Store) FailStaleJobs(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET status = 'error', error_message = 'interrupted by server restart',
			updated_at = NOW(), completed_at = NOW()
		WHERE status IN ('pending', 'running')`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
