package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	store           *database.Store
	jwtSecret       string
	jwtExpiry       time.Duration
	defaultCapacity int64
}

func NewAuthHandler(store *database.Store, jwtSecret string, jwtExpiry time.Duration, defaultCapacity int64) *AuthHandler {
	return &AuthHandler{
		store:           store,
		jwtSecret:       jwtSecret,
		jwtExpiry:       jwtExpiry,
		defaultCapacity: defaultCapacity,
	}
}

// --- Input types ---

type RegisterInput struct {
	Body struct {
		Username string `json:"username" minLength:"3" maxLength:"32" doc:"Username"`
		Password string `json:"password" minLength:"8" doc:"Password"`
	}
}

type LoginInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" doc:"Username"`
		Password string `json:"password" minLength:"1" doc:"Password"`
	}
}

type EmptyInput struct{}

// --- DTO types ---

type RegisterDTO struct {
	ID         string `json:"id" doc:"User ID"`
	Username   string `json:"username" doc:"Username"`
	IsApproved bool   `json:"is_approved" doc:"Whether an admin has approved the account"`
}

type LoginUserDTO struct {
	ID       string `json:"id" doc:"User ID"`
	Username string `json:"username" doc:"Username"`
	Role     string `json:"role" doc:"User role"`
}

type LoginDTO struct {
	Token     string       `json:"token" doc:"JWT token"`
	ExpiresIn int          `json:"expires_in" doc:"Token lifetime in seconds"`
	User      LoginUserDTO `json:"user" doc:"User info"`
}

type MeDTO struct {
	ID                  string `json:"id" doc:"User ID"`
	Username            string `json:"username" doc:"Username"`
	Role                string `json:"role" doc:"User role"`
	IsApproved          bool   `json:"is_approved" doc:"Whether an admin has approved the account"`
	UploadCapacityBytes int64  `json:"upload_capacity_bytes" doc:"Largest accepted upload in bytes"`
}

// LoginOutput also sets the session cookie so the web UI and the WebSocket
// handshake can authenticate without an Authorization header.
type LoginOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      DataBody[LoginDTO]
}

type LogoutOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      MsgBody
}

// --- Handlers ---

func (h *AuthHandler) Register(ctx context.Context, input *RegisterInput) (*DataOutput[RegisterDTO], error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Body.Password), 12)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to hash password")
	}

	// New accounts sit unapproved until an admin lets them in.
	user, err := h.store.CreateUser(ctx, database.CreateUserParams{
		Username:            input.Body.Username,
		Password:            string(hash),
		Role:                "user",
		IsApproved:          false,
		UploadCapacityBytes: h.defaultCapacity,
	})
	if err != nil {
		return nil, huma.Error409Conflict("username already taken")
	}

	return OK(RegisterDTO{
		ID:         util.UUIDToStr(user.ID),
		Username:   user.Username,
		IsApproved: user.IsApproved,
	}), nil
}

func (h *AuthHandler) Login(ctx context.Context, input *LoginInput) (*LoginOutput, error) {
	user, err := h.store.GetUserByUsername(ctx, input.Body.Username)
	if err != nil {
		return nil, huma.Error401Unauthorized("invalid username or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Body.Password)); err != nil {
		return nil, huma.Error401Unauthorized("invalid username or password")
	}

	if !user.IsApproved {
		return nil, huma.Error403Forbidden("account is pending approval")
	}

	uid := util.UUIDToStr(user.ID)
	token, err := middleware.GenerateJWT(uid, user.Role, h.jwtSecret, h.jwtExpiry)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to generate token")
	}

	return &LoginOutput{
		SetCookie: http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    token,
			Path:     "/",
			MaxAge:   int(h.jwtExpiry.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		Body: DataBody[LoginDTO]{Success: true, Data: LoginDTO{
			Token:     token,
			ExpiresIn: int(h.jwtExpiry.Seconds()),
			User:      LoginUserDTO{ID: uid, Username: user.Username, Role: user.Role},
		}},
	}, nil
}

func (h *AuthHandler) Logout(ctx context.Context, _ *EmptyInput) (*LogoutOutput, error) {
	return &LogoutOutput{
		SetCookie: http.Cookie{
			Name:     middleware.SessionCookie,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		Body: MsgBody{Success: true, Message: "logged out"},
	}, nil
}

func (h *AuthHandler) Me(ctx context.Context, _ *EmptyInput) (*DataOutput[MeDTO], error) {
	user, err := h.store.GetUserByID(ctx, util.TextToUUID(middleware.GetUserID(ctx)))
	if err != nil {
		return nil, huma.Error404NotFound("user not found")
	}

	return OK(MeDTO{
		ID:                  util.UUIDToStr(user.ID),
		Username:            user.Username,
		Role:                user.Role,
		IsApproved:          user.IsApproved,
		UploadCapacityBytes: user.UploadCapacityBytes,
	}), nil
}
