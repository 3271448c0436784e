package job

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/core/compress"
	"github.com/yat0i811/CompShare/internal/core/event"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
)

// Manager handles job persistence and keeps the jobs table in step with the
// lifecycle events published by the worker.
type Manager struct {
	store *database.Store
	bus   event.Bus
}

func NewManager(store *database.Store, bus event.Bus) *Manager {
	return &Manager{store: store, bus: bus}
}

// Create inserts a pending job row and returns it. The worker is started
// separately so a failed insert never leaves an orphan encode behind.
func (m *Manager) Create(ctx context.Context, userID, correlationID, sourceKey, filename string, p Params) (*database.Job, error) {
	var crf, bitrate pgtype.Int4
	if p.BitrateKbps > 0 {
		bitrate = pgtype.Int4{Int32: int32(p.BitrateKbps), Valid: true}
	} else {
		crf = pgtype.Int4{Int32: int32(p.CRF), Valid: true}
	}

	var width, height pgtype.Int4
	if p.Resolution == compress.ModeCustom {
		width = pgtype.Int4{Int32: int32(p.Width), Valid: true}
		height = pgtype.Int4{Int32: int32(p.Height), Valid: true}
	}

	row, err := m.store.CreateJob(ctx, database.CreateJobParams{
		UserID:        util.TextToUUID(userID),
		CorrelationID: correlationID,
		SourceKey:     sourceKey,
		Filename:      filename,
		CRF:           crf,
		BitrateKbps:   bitrate,
		Resolution:    p.Resolution,
		Width:         width,
		Height:        height,
		HWAccel:       p.HWAccel,
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (m *Manager) GetForUser(ctx context.Context, jobID, userID string) (*database.Job, error) {
	row, err := m.store.GetJobForUser(ctx, util.TextToUUID(jobID), util.TextToUUID(userID))
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (m *Manager) ListForUser(ctx context.Context, userID string, limit, offset int32) ([]database.Job, error) {
	return m.store.ListJobsByUser(ctx, util.TextToUUID(userID), limit, offset)
}

// SetupEventHandlers subscribes the persistence updates for job lifecycle
// events. Wire these before any notification subscribers so that by the time
// a client hears a terminal event, the row it will re-query already holds
// the terminal state.
func (m *Manager) SetupEventHandlers() {
	m.bus.Subscribe(event.EventJobStarted, func(ctx context.Context, e event.Event) error {
		payload, ok := e.Payload.(event.JobEvent)
		if !ok {
			return nil
		}
		return m.store.MarkJobRunning(ctx, util.TextToUUID(payload.JobID))
	})

	m.bus.Subscribe(event.EventJobProgress, func(ctx context.Context, e event.Event) error {
		payload, ok := e.Payload.(event.JobEvent)
		if !ok {
			return nil
		}
		return m.store.UpdateJobProgress(ctx, util.TextToUUID(payload.JobID), payload.Progress)
	})

	m.bus.Subscribe(event.EventJobCompleted, func(ctx context.Context, e event.Event) error {
		payload, ok := e.Payload.(event.JobEvent)
		if !ok || payload.Result == nil {
			return nil
		}
		log.Info().
			Str("job_id", payload.JobID).
			Str("output_key", payload.Result.StorageKey).
			Int64("size", payload.Result.Size).
			Msg("job completed")
		if err := m.store.CompleteJob(ctx, database.CompleteJobParams{
			ID:             util.TextToUUID(payload.JobID),
			OutputKey:      payload.Result.StorageKey,
			OutputFilename: payload.Result.Filename,
			OutputSize:     payload.Result.Size,
		}); err != nil {
			return err
		}
		// The source upload has served its purpose; drop the grant row so the
		// janitor does not chase an object the worker already deleted.
		if payload.SourceKey != "" {
			if err := m.store.DeleteUploadGrant(ctx, payload.SourceKey); err != nil {
				log.Warn().Err(err).Str("source_key", payload.SourceKey).Msg("upload grant cleanup failed")
			}
		}
		return nil
	})

	m.bus.Subscribe(event.EventJobFailed, func(ctx context.Context, e event.Event) error {
		payload, ok := e.Payload.(event.JobEvent)
		if !ok {
			return nil
		}
		log.Warn().Str("job_id", payload.JobID).Str("error", payload.Detail).Msg("job failed")
		return m.store.FailJob(ctx, util.TextToUUID(payload.JobID), payload.Detail)
	})
}
