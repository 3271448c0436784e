package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/core/fileserver"
	"github.com/yat0i811/CompShare/internal/core/job"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
)

// CompressionService fronts the asynchronous pipeline: it runs the
// synchronous gates, persists the job, hands it to the runner, and answers
// status queries afterwards. Everything past the returned 202 is reported
// through the notification channel.
type CompressionService struct {
	store   *database.Store
	manager *job.Manager
	runner  *job.Runner
	limiter *SlidingLimiter
	signer  *fileserver.Signer

	publicURL  string
	linkExpiry time.Duration
}

func NewCompressionService(
	store *database.Store,
	manager *job.Manager,
	runner *job.Runner,
	limiter *SlidingLimiter,
	signer *fileserver.Signer,
	publicURL string,
	linkExpiry time.Duration,
) *CompressionService {
	return &CompressionService{
		store:      store,
		manager:    manager,
		runner:     runner,
		limiter:    limiter,
		signer:     signer,
		publicURL:  publicURL,
		linkExpiry: linkExpiry,
	}
}

type SubmitRequest struct {
	UserID        string
	CorrelationID string
	SourceKey     string
	Filename      string
	CRF           *int
	BitrateKbps   *int
	Resolution    string
	Width         int
	Height        int
	HWAccel       bool
}

type SubmitResponse struct {
	JobID  string
	Status string
}

func (s *CompressionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	log.Debug().
		Str("user", req.UserID).
		Str("source", req.SourceKey).
		Str("correlation_id", req.CorrelationID).
		Msg("compression submission")

	// 1. The upload grant proves ownership and carries the declared size.
	grant, err := s.store.GetUploadGrant(ctx, req.SourceKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if util.UUIDToStr(grant.UserID) != req.UserID {
		return nil, ErrUnauthorized
	}

	user, err := s.store.GetUserByID(ctx, util.TextToUUID(req.UserID))
	if err != nil {
		return nil, err
	}

	// 2. Gates, in order: quota, parameters, rate limit.
	params, err := checkSubmission(grant.DeclaredSize, user.UploadCapacityBytes, req, func() bool {
		return s.limiter.Allow(req.UserID)
	})
	if err != nil {
		return nil, err
	}

	// The artifact is named after the upload unless the submission renames it.
	filename := grant.Filename
	if n := sanitizeFilename(req.Filename); n != "" {
		filename = n
	}

	// 3. Persist, then launch. The runner reports everything from here on
	//    asynchronously; the caller gets its job id immediately.
	row, err := s.manager.Create(ctx, req.UserID, req.CorrelationID, req.SourceKey, filename, params)
	if err != nil {
		return nil, err
	}

	jobID := util.UUIDToStr(row.ID)
	s.runner.Start(job.Spec{
		ID:            jobID,
		UserID:        req.UserID,
		CorrelationID: req.CorrelationID,
		SourceKey:     req.SourceKey,
		Filename:      filename,
		Params:        params,
	})

	log.Info().Str("job_id", jobID).Str("user", req.UserID).Msg("compression job accepted")
	return &SubmitResponse{JobID: jobID, Status: string(job.StatePending)}, nil
}

// StatusResponse is a job row plus, for done jobs, a freshly signed download
// link. Re-querying after the terminal event keeps answering the same.
type StatusResponse struct {
	Job        *database.Job
	DownloadID string
	URL        string
}

func (s *CompressionService) Status(ctx context.Context, jobID, userID string) (*StatusResponse, error) {
	row, err := s.manager.GetForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}

	resp := &StatusResponse{Job: row}
	if row.Status == string(job.StateDone) && row.OutputKey.Valid {
		token := s.signer.Sign(jobID, row.OutputKey.String, userID, time.Now().Add(s.linkExpiry))
		resp.DownloadID = token
		resp.URL = fileserver.DownloadURL(s.publicURL, token, row.OutputFilename.String)
	}
	return resp, nil
}

func (s *CompressionService) List(ctx context.Context, userID string, limit, offset int32) ([]database.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.manager.ListForUser(ctx, userID, limit, offset)
}
