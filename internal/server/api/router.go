package api

import (
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/yat0i811/CompShare/internal/core/service"
	"github.com/yat0i811/CompShare/internal/database"
	"github.com/yat0i811/CompShare/internal/server/api/handlers"
	"github.com/yat0i811/CompShare/internal/server/api/middleware"
)

type RouterConfig struct {
	Store           *database.Store
	JWTSecret       string
	JWTExpiry       time.Duration
	DefaultCapacity int64
	CORSOrigins     []string
	Uploads         *service.UploadService
	Jobs            *service.CompressionService
	Shares          *service.ShareService
}

func SetupRouter(e *echo.Echo, cfg RouterConfig) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowCredentials: true,
	}))
	e.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(20)))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	v1 := e.Group("/api/v1")
	config := huma.DefaultConfig("CompShare API", "1.0.0")
	config.Servers = []*huma.Server{{URL: "/api/v1"}}
	config.Info.Description = "Self-hosted video compression and sharing service"
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"BearerAuth": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "JWT Bearer token",
		},
	}

	api := humaecho.NewWithGroup(e, v1, config)
	handlers.InitErrors()

	authMw := middleware.Auth(cfg.JWTSecret)
	adminMw := middleware.AdminOnly()
	secured := []map[string][]string{{"BearerAuth": {}}}

	authHandler := handlers.NewAuthHandler(cfg.Store, cfg.JWTSecret, cfg.JWTExpiry, cfg.DefaultCapacity)
	huma.Register(api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/auth/register",
		Summary:     "Register a new account",
		Tags:        []string{"Auth"},
	}, authHandler.Register)

	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Login and get a session token",
		Tags:        []string{"Auth"},
	}, authHandler.Login)

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Clear the session cookie",
		Tags:        []string{"Auth"},
	}, authHandler.Logout)

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/auth/me",
		Summary:     "Get current user info",
		Tags:        []string{"Auth"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, authHandler.Me)

	uploadsHandler := handlers.NewUploadsHandler(cfg.Uploads)
	huma.Register(api, huma.Operation{
		OperationID: "uploads-create-url",
		Method:      http.MethodPost,
		Path:        "/uploads/url",
		Summary:     "Get a presigned upload URL",
		Tags:        []string{"Uploads"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, uploadsHandler.CreateURL)

	jobsHandler := handlers.NewJobsHandler(cfg.Jobs)
	huma.Register(api, huma.Operation{
		OperationID:   "jobs-submit",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Submit a compression job",
		Tags:          []string{"Jobs"},
		Security:      secured,
		Middlewares:   huma.Middlewares{authMw},
		DefaultStatus: http.StatusAccepted,
	}, jobsHandler.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-list",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List compression jobs",
		Tags:        []string{"Jobs"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, jobsHandler.List)

	huma.Register(api, huma.Operation{
		OperationID: "jobs-get",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Get compression job status",
		Tags:        []string{"Jobs"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, jobsHandler.Get)

	sharesHandler := handlers.NewSharesHandler(cfg.Shares)
	huma.Register(api, huma.Operation{
		OperationID:   "shares-create",
		Method:        http.MethodPost,
		Path:          "/jobs/{id}/share",
		Summary:       "Create a share link for a finished job",
		Tags:          []string{"Shares"},
		Security:      secured,
		Middlewares:   huma.Middlewares{authMw},
		DefaultStatus: http.StatusCreated,
	}, sharesHandler.Create)

	huma.Register(api, huma.Operation{
		OperationID: "shares-list",
		Method:      http.MethodGet,
		Path:        "/shares",
		Summary:     "List share links",
		Tags:        []string{"Shares"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, sharesHandler.List)

	huma.Register(api, huma.Operation{
		OperationID: "shares-delete",
		Method:      http.MethodDelete,
		Path:        "/shares/{id}",
		Summary:     "Revoke a share link",
		Tags:        []string{"Shares"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw},
	}, sharesHandler.Delete)

	adminHandler := handlers.NewAdminHandler(cfg.Store)
	huma.Register(api, huma.Operation{
		OperationID: "admin-users-list",
		Method:      http.MethodGet,
		Path:        "/admin/users",
		Summary:     "List all users",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.ListUsers)

	huma.Register(api, huma.Operation{
		OperationID: "admin-users-pending",
		Method:      http.MethodGet,
		Path:        "/admin/users/pending",
		Summary:     "List users awaiting approval",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.ListPending)

	huma.Register(api, huma.Operation{
		OperationID: "admin-users-approve",
		Method:      http.MethodPost,
		Path:        "/admin/users/{id}/approve",
		Summary:     "Approve a pending user",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.Approve)

	huma.Register(api, huma.Operation{
		OperationID: "admin-users-capacity",
		Method:      http.MethodPatch,
		Path:        "/admin/users/{id}/capacity",
		Summary:     "Change a user's upload capacity",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.UpdateCapacity)

	huma.Register(api, huma.Operation{
		OperationID: "admin-users-delete",
		Method:      http.MethodDelete,
		Path:        "/admin/users/{id}",
		Summary:     "Delete a user",
		Tags:        []string{"Admin"},
		Security:    secured,
		Middlewares: huma.Middlewares{authMw, adminMw},
	}, adminHandler.Delete)
}
