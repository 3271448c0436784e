package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yat0i811/CompShare/internal/config"
	"github.com/yat0i811/CompShare/internal/core/compress"
	"github.com/yat0i811/CompShare/internal/core/event"
	"github.com/yat0i811/CompShare/internal/core/fileserver"
	"github.com/yat0i811/CompShare/internal/core/job"
	"github.com/yat0i811/CompShare/internal/core/notify"
	"github.com/yat0i811/CompShare/internal/core/service"
	"github.com/yat0i811/CompShare/internal/core/storage"
	"github.com/yat0i811/CompShare/internal/core/util"
	"github.com/yat0i811/CompShare/internal/database"
	"github.com/yat0i811/CompShare/internal/server/api"
	"github.com/yat0i811/CompShare/internal/server/web"
	"github.com/yat0i811/CompShare/internal/server/ws"
	"golang.org/x/crypto/bcrypt"
)

func Run(ctx context.Context, cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Debug().Str("level", cfg.Logging.Level).Msg("log level configured")

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("database connect: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	store := database.NewStore(pool)

	// Auto-generate secrets on first boot
	jwtSecret, err := ensureSetting(ctx, store, "jwt_secret", 32)
	if err != nil {
		return fmt.Errorf("jwt secret: %w", err)
	}
	if cfg.Auth.JWTSecret != "" {
		jwtSecret = cfg.Auth.JWTSecret
	}

	// Download tokens are signed with their own secret so rotating the JWT
	// secret does not break links already handed out.
	downloadSecret, err := ensureSetting(ctx, store, "download_secret", 32)
	if err != nil {
		return fmt.Errorf("download secret: %w", err)
	}

	adminPassword, err := ensureAdmin(ctx, store, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword, cfg.Limits.DefaultCapacityBytes)
	if err != nil {
		return fmt.Errorf("admin setup: %w", err)
	}

	if n, err := store.FailStaleJobs(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to reconcile stale jobs")
	} else if n > 0 {
		log.Info().Int64("count", n).Msg("failed jobs interrupted by previous shutdown")
	}
	util.SweepScratchDirs(cfg.Encoder.WorkDir)

	objects, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}

	encoder := compress.NewFFmpeg(compress.FFmpegConfig{
		Binary:      cfg.Encoder.FFmpegBinary,
		ProbeBinary: cfg.Encoder.FFprobeBinary,
		Preset:      cfg.Encoder.Preset,
		RunTimeout:  duration(cfg.Encoder.RunTimeout, 0),
	})
	if err := encoder.Init(ctx, cfg.Encoder.HWAccel); err != nil {
		return fmt.Errorf("encoder init: %w", err)
	}

	publicURL := cfg.Server.PublicURL
	if publicURL == "" {
		publicURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	jwtExpiry := duration(cfg.Auth.JWTExpiry, 30*time.Minute)
	presignExpiry := duration(cfg.Storage.PresignExpiry, time.Hour)
	sourceTTL := duration(cfg.Storage.SourceTTL, 70*time.Minute)
	linkExpiry := duration(cfg.Limits.LinkExpiry, time.Hour)
	shareExpiry := duration(cfg.Limits.ShareExpiry, 7*24*time.Hour)
	submitWindow := duration(cfg.Limits.SubmitWindow, time.Minute)

	bus := event.NewBus()
	registry := notify.NewRegistry()
	signer := fileserver.NewSigner(downloadSecret)

	manager := job.NewManager(store, bus)
	manager.SetupEventHandlers()

	// Subscribed after the manager: the database row is terminal before the
	// client hears about it.
	dispatcher := notify.NewDispatcher(bus, registry)
	dispatcher.SetupSubscribers()

	runner := job.NewRunner(registry, objects, encoder, bus, signer, job.WorkerConfig{
		WorkDir:       cfg.Encoder.WorkDir,
		MaxConcurrent: cfg.Encoder.MaxConcurrent,
		PublicURL:     publicURL,
		LinkExpiry:    linkExpiry,
	})

	limiter := service.NewSlidingLimiter(cfg.Limits.SubmitBurst, submitWindow)
	compressSvc := service.NewCompressionService(store, manager, runner, limiter, signer, publicURL, linkExpiry)
	uploadSvc := service.NewUploadService(store, objects, cfg.Limits.MaxUploadBytes, presignExpiry, sourceTTL)
	shareSvc := service.NewShareService(store, objects, publicURL, shareExpiry)
	fileSrv := fileserver.NewServer(store, objects, signer, presignExpiry)

	// Single HTTP server for API, WebSocket notifications, Web UI and
	// token-addressed downloads.
	e := echo.New()
	e.HideBanner = true

	api.SetupRouter(e, api.RouterConfig{
		Store:           store,
		JWTSecret:       jwtSecret,
		JWTExpiry:       jwtExpiry,
		DefaultCapacity: cfg.Limits.DefaultCapacityBytes,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Uploads:         uploadSvc,
		Jobs:            compressSvc,
		Shares:          shareSvc,
	})

	wsHandler := ws.NewHandler(registry, jwtSecret, cfg.Server.CORSOrigins)
	e.GET("/ws/:cid", wsHandler.Serve)

	// Token-based access, no auth middleware
	e.GET("/dl/:token/:filename", echo.WrapHandler(http.HandlerFunc(fileSrv.ServeDownload)))
	e.GET("/s/:token", echo.WrapHandler(http.HandlerFunc(fileSrv.ServeShare)))

	web.NewHandler().RegisterRoutes(e)

	printBanner(cfg, adminPassword, publicURL)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	go janitor(janitorCtx, uploadSvc, shareSvc, limiter)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	janitorCancel()

	// Fail running jobs first so their terminal events still reach
	// connected clients, then drop the sockets.
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("worker shutdown error")
	}
	registry.CloseAll()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	return nil
}

func ensureSetting(ctx context.Context, store *database.Store, key string, byteLen int) (string, error) {
	if value, err := store.GetSetting(ctx, key); err == nil && value != "" {
		return value, nil
	}

	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	value := hex.EncodeToString(b)
	if err := store.UpsertSetting(ctx, key, value); err != nil {
		return "", err
	}
	return value, nil
}

// ensureAdmin creates the first account on an empty database. The generated
// password is returned so it can be printed exactly once.
func ensureAdmin(ctx context.Context, store *database.Store, username, password string, capacityBytes int64) (string, error) {
	count, err := store.GetUserCount(ctx)
	if err != nil {
		return "", err
	}
	if count > 0 {
		return "", nil
	}

	if password == "" {
		b := make([]byte, 8)
		rand.Read(b)
		password = hex.EncodeToString(b)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return "", err
	}

	_, err = store.CreateUser(ctx, database.CreateUserParams{
		Username:            username,
		Password:            string(hash),
		Role:                "admin",
		IsApproved:          true,
		UploadCapacityBytes: capacityBytes,
	})
	if err != nil {
		return "", err
	}
	return password, nil
}

// janitor periodically drops expired upload grants, expired share links and
// stale rate limiter entries.
func janitor(ctx context.Context, uploads *service.UploadService, shares *service.ShareService, limiter *service.SlidingLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			uploads.SweepExpired(ctx)
			shares.SweepExpired(ctx)
			limiter.Prune()
		}
	}
}

func duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func printBanner(cfg *config.Config, adminPassword, publicURL string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  CompShare started")
	fmt.Println()
	if adminPassword != "" {
		fmt.Println("  Admin credentials (save these, shown only once):")
		fmt.Printf("    Username: %s\n", cfg.Auth.AdminUsername)
		fmt.Printf("    Password: %s\n", adminPassword)
		fmt.Println()
	}
	fmt.Printf("  HTTP:    http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Web UI:  %s/web/\n", publicURL)
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println()
}
