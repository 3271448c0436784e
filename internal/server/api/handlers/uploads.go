package handlers

import (
	"context"
	"time"

	"github.com/yat0i811/CompShare/internal/core/service"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
)

type UploadsHandler struct {
	svc *service.UploadService
}

func NewUploadsHandler(svc *service.UploadService) *UploadsHandler {
	return &UploadsHandler{svc: svc}
}

type UploadURLInput struct {
	Body struct {
		Filename string `json:"filename" minLength:"1" doc:"Original filename of the video"`
		Size     int64  `json:"size" minimum:"1" doc:"Exact size of the upload in bytes"`
	}
}

type UploadURLDTO struct {
	StorageKey string    `json:"storage_key" doc:"Key to submit for compression once the upload finishes"`
	UploadURL  string    `json:"upload_url" doc:"Presigned PUT URL; upload the file body here"`
	ExpiresAt  time.Time `json:"expires_at" doc:"When the grant and the URL expire"`
}

func (h *UploadsHandler) CreateURL(ctx context.Context, input *UploadURLInput) (*DataOutput[UploadURLDTO], error) {
	grant, err := h.svc.Grant(ctx, service.UploadGrantRequest{
		UserID:   middleware.GetUserID(ctx),
		Filename: input.Body.Filename,
		Size:     input.Body.Size,
	})
	if err != nil {
		return nil, mapServiceError(err)
	}

	return OK(UploadURLDTO{
		StorageKey: grant.StorageKey,
		UploadURL:  grant.UploadURL,
		ExpiresAt:  grant.ExpiresAt,
	}), nil
}
