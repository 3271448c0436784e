package handlers

import (
	"context"
	"time"

	"github.com/yat0i811/CompShare/internal/core/service"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
)

type SharesHandler struct {
	svc *service.ShareService
}

func NewSharesHandler(svc *service.ShareService) *SharesHandler {
	return &SharesHandler{svc: svc}
}

type CreateShareInput struct {
	JobID string `path:"id" doc:"Job ID to share"`
}

type DeleteShareInput struct {
	ID string `path:"id" doc:"Share ID"`
}

type ShareDTO struct {
	ID        string    `json:"id" doc:"Share ID"`
	JobID     string    `json:"job_id" doc:"Job the share points at"`
	Token     string    `json:"token" doc:"Public token"`
	URL       string    `json:"url" doc:"Public link"`
	Filename  string    `json:"filename" doc:"Compressed filename served by the link"`
	ExpiresAt time.Time `json:"expires_at" doc:"When the link stops working"`
	CreatedAt time.Time `json:"created_at" doc:"When the link was created"`
}

func (h *SharesHandler) Create(ctx context.Context, input *CreateShareInput) (*DataOutput[ShareDTO], error) {
	share, err := h.svc.Create(ctx, middleware.GetUserID(ctx), input.JobID)
	if err != nil {
		return nil, mapServiceError(err)
	}
	return OK(h.shareToDTO(share)), nil
}

func (h *SharesHandler) List(ctx context.Context, _ *EmptyInput) (*DataOutput[[]ShareDTO], error) {
	shares, err := h.svc.List(ctx, middleware.GetUserID(ctx))
	if err != nil {
		return nil, mapServiceError(err)
	}

	dtos := make([]ShareDTO, 0, len(shares))
	for i := range shares {
		dtos = append(dtos, h.shareToDTO(&shares[i]))
	}
	return OK(dtos), nil
}

func (h *SharesHandler) Delete(ctx context.Context, input *DeleteShareInput) (*MsgOutput, error) {
	if err := h.svc.Revoke(ctx, middleware.GetUserID(ctx), input.ID); err != nil {
		return nil, mapServiceError(err)
	}
	return Msg("share revoked"), nil
}

func (h *SharesHandler) shareToDTO(share *database.Share) ShareDTO {
	return ShareDTO{
		ID:        util.UUIDToStr(share.ID),
		JobID:     util.UUIDToStr(share.JobID),
		Token:     share.Token,
		URL:       h.svc.URL(share.Token),
		Filename:  share.CompressedFilename,
		ExpiresAt: share.ExpiresAt,
		CreatedAt: share.CreatedAt,
	}
}
