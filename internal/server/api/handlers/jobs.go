package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/yat0i811/CompShare/internal/core/service"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
)

type JobsHandler struct {
	svc *service.CompressionService
}

func NewJobsHandler(svc *service.CompressionService) *JobsHandler {
	return &JobsHandler{svc: svc}
}

// --- Input types ---

type SubmitJobInput struct {
	Body struct {
		CorrelationID string `json:"correlation_id" minLength:"1" maxLength:"128" doc:"Client-chosen token; open the notification socket with the same value"`
		StorageKey    string `json:"storage_key" minLength:"1" doc:"Key returned by the upload URL endpoint"`
		Filename      string `json:"filename,omitempty" doc:"Display name for the result; defaults to the uploaded filename"`
		CRF           *int   `json:"crf,omitempty" doc:"Quality (0-51, lower is better); exclusive with bitrate_kbps"`
		BitrateKbps   *int   `json:"bitrate_kbps,omitempty" doc:"Target bitrate in kbit/s; exclusive with crf"`
		Resolution    string `json:"resolution,omitempty" doc:"source, custom, or a named mode like 720p"`
		Width         int    `json:"width,omitempty" doc:"Output width, only with resolution=custom"`
		Height        int    `json:"height,omitempty" doc:"Output height, only with resolution=custom"`
		HWAccel       bool   `json:"hwaccel,omitempty" doc:"Prefer the hardware encoder when available"`
	}
}

type GetJobInput struct {
	ID string `path:"id" doc:"Job ID"`
}

type ListJobsInput struct {
	Limit  int32 `query:"limit" default:"50" minimum:"1" maximum:"100" doc:"Page size"`
	Offset int32 `query:"offset" default:"0" minimum:"0" doc:"Page offset"`
}

// --- DTO types ---

type SubmitJobDTO struct {
	JobID  string `json:"job_id" doc:"Job ID"`
	Status string `json:"status" doc:"Initial job status"`
}

type JobDTO struct {
	ID             string     `json:"id" doc:"Job ID"`
	CorrelationID  string     `json:"correlation_id" doc:"Notification channel token"`
	Filename       string     `json:"filename" doc:"Original filename"`
	Status         string     `json:"status" doc:"pending, running, done, or error"`
	Progress       float64    `json:"progress" doc:"Last reported progress percentage"`
	Error          string     `json:"error,omitempty" doc:"Failure detail for error jobs"`
	CRF            *int       `json:"crf,omitempty" doc:"Quality setting"`
	BitrateKbps    *int       `json:"bitrate_kbps,omitempty" doc:"Bitrate setting"`
	Resolution     string     `json:"resolution" doc:"Resolution mode"`
	Width          *int       `json:"width,omitempty" doc:"Custom output width"`
	Height         *int       `json:"height,omitempty" doc:"Custom output height"`
	HWAccel        bool       `json:"hwaccel" doc:"Hardware encoder requested"`
	OutputFilename string     `json:"output_filename,omitempty" doc:"Compressed filename for done jobs"`
	OutputSize     int64      `json:"output_size,omitempty" doc:"Compressed size in bytes for done jobs"`
	DownloadID     string     `json:"download_id,omitempty" doc:"Signed download token for done jobs"`
	DownloadURL    string     `json:"download_url,omitempty" doc:"Download link for done jobs"`
	CreatedAt      time.Time  `json:"created_at" doc:"Submission time"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" doc:"Terminal time"`
}

// --- Handlers ---

func (h *JobsHandler) Submit(ctx context.Context, input *SubmitJobInput) (*DataOutput[SubmitJobDTO], error) {
	resp, err := h.svc.Submit(ctx, service.SubmitRequest{
		UserID:        middleware.GetUserID(ctx),
		CorrelationID: input.Body.CorrelationID,
		SourceKey:     input.Body.StorageKey,
		Filename:      input.Body.Filename,
		CRF:           input.Body.CRF,
		BitrateKbps:   input.Body.BitrateKbps,
		Resolution:    input.Body.Resolution,
		Width:         input.Body.Width,
		Height:        input.Body.Height,
		HWAccel:       input.Body.HWAccel,
	})
	if err != nil {
		return nil, mapServiceError(err)
	}

	return OK(SubmitJobDTO{JobID: resp.JobID, Status: resp.Status}), nil
}

func (h *JobsHandler) Get(ctx context.Context, input *GetJobInput) (*DataOutput[JobDTO], error) {
	status, err := h.svc.Status(ctx, input.ID, middleware.GetUserID(ctx))
	if err != nil {
		return nil, mapServiceError(err)
	}

	dto := jobToDTO(status.Job)
	dto.DownloadID = status.DownloadID
	dto.DownloadURL = status.URL
	return OK(dto), nil
}

func (h *JobsHandler) List(ctx context.Context, input *ListJobsInput) (*DataOutput[[]JobDTO], error) {
	rows, err := h.svc.List(ctx, middleware.GetUserID(ctx), input.Limit, input.Offset)
	if err != nil {
		return nil, mapServiceError(err)
	}

	dtos := make([]JobDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, jobToDTO(&rows[i]))
	}
	return OK(dtos), nil
}

func jobToDTO(row *database.Job) JobDTO {
	dto := JobDTO{
		ID:            util.UUIDToStr(row.ID),
		CorrelationID: row.CorrelationID,
		Filename:      row.Filename,
		Status:        row.Status,
		Progress:      row.Progress,
		Error:         row.ErrorMessage.String,
		CRF:           int4p(row.CRF),
		BitrateKbps:   int4p(row.BitrateKbps),
		Resolution:    row.Resolution,
		Width:         int4p(row.Width),
		Height:        int4p(row.Height),
		HWAccel:       row.HWAccel,
		CreatedAt:     row.CreatedAt,
	}
	if row.OutputFilename.Valid {
		dto.OutputFilename = row.OutputFilename.String
	}
	if row.OutputSize.Valid {
		dto.OutputSize = row.OutputSize.Int64
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		dto.CompletedAt = &t
	}
	return dto
}

func int4p(v pgtype.Int4) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int32)
	return &n
}
