package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jackc/pgx/v5"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
)

type AdminHandler struct {
	store *database.Store
}

func NewAdminHandler(store *database.Store) *AdminHandler {
	return &AdminHandler{store: store}
}

type UserIDInput struct {
	ID string `path:"id" doc:"User ID"`
}

type UpdateCapacityInput struct {
	ID   string `path:"id" doc:"User ID"`
	Body struct {
		UploadCapacityBytes int64 `json:"upload_capacity_bytes" minimum:"1" doc:"Largest accepted upload in bytes"`
	}
}

type AdminUserDTO struct {
	ID                  string    `json:"id" doc:"User ID"`
	Username            string    `json:"username" doc:"Username"`
	Role                string    `json:"role" doc:"User role"`
	IsApproved          bool      `json:"is_approved" doc:"Whether the account is approved"`
	UploadCapacityBytes int64     `json:"upload_capacity_bytes" doc:"Largest accepted upload in bytes"`
	CreatedAt           time.Time `json:"created_at" doc:"Registration time"`
}

func (h *AdminHandler) ListUsers(ctx context.Context, _ *EmptyInput) (*DataOutput[[]AdminUserDTO], error) {
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list users")
	}
	return OK(usersToDTO(users)), nil
}

func (h *AdminHandler) ListPending(ctx context.Context, _ *EmptyInput) (*DataOutput[[]AdminUserDTO], error) {
	users, err := h.store.ListPendingUsers(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list pending users")
	}
	return OK(usersToDTO(users)), nil
}

func (h *AdminHandler) Approve(ctx context.Context, input *UserIDInput) (*DataOutput[AdminUserDTO], error) {
	user, err := h.store.ApproveUser(ctx, util.TextToUUID(input.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huma.Error404NotFound("user not found")
		}
		return nil, huma.Error500InternalServerError("failed to approve user")
	}
	return OK(userToDTO(user)), nil
}

func (h *AdminHandler) UpdateCapacity(ctx context.Context, input *UpdateCapacityInput) (*DataOutput[AdminUserDTO], error) {
	user, err := h.store.UpdateUserCapacity(ctx, util.TextToUUID(input.ID), input.Body.UploadCapacityBytes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, huma.Error404NotFound("user not found")
		}
		return nil, huma.Error500InternalServerError("failed to update capacity")
	}
	return OK(userToDTO(user)), nil
}

func (h *AdminHandler) Delete(ctx context.Context, input *UserIDInput) (*MsgOutput, error) {
	if input.ID == middleware.GetUserID(ctx) {
		return nil, huma.Error422UnprocessableEntity("cannot delete your own account")
	}
	if err := h.store.DeleteUser(ctx, util.TextToUUID(input.ID)); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete user")
	}
	return Msg("user deleted"), nil
}

func userToDTO(u database.User) AdminUserDTO {
	return AdminUserDTO{
		ID:                  util.UUIDToStr(u.ID),
		Username:            u.Username,
		Role:                u.Role,
		IsApproved:          u.IsApproved,
		UploadCapacityBytes: u.UploadCapacityBytes,
		CreatedAt:           u.CreatedAt,
	}
}

func usersToDTO(users []database.User) []AdminUserDTO {
	dtos := make([]AdminUserDTO, 0, len(users))
	for _, u := range users {
		dtos = append(dtos, userToDTO(u))
	}
	return dtos
}
