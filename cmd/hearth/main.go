package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/app"
	"github.com/hearth-cms/hearth/internal/auth"
	"github.com/hearth-cms/hearth/internal/board"
	"github.com/hearth-cms/hearth/internal/credential"
	"github.com/hearth-cms/hearth/internal/gallery"
	"github.com/hearth-cms/hearth/internal/grant"
	"github.com/hearth-cms/hearth/internal/objectstore"
	"github.com/hearth-cms/hearth/internal/observability"
	"github.com/hearth-cms/hearth/internal/platform/cache"
	"github.com/hearth-cms/hearth/internal/platform/db"
	"github.com/hearth-cms/hearth/internal/shared"
	"github.com/hearth-cms/hearth/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	engine := access.NewEngine(logger, metrics.Registerer())
	verifier := credential.NewVerifier(cfg.CredentialCost)
	grants, err := grant.NewManager(grant.Config{
		Secret:     cfg.GrantSecret,
		TTL:        cfg.GrantTTL,
		Logger:     logger,
		Registerer: metrics.Registerer(),
	}, verifier)
	if err != nil {
		logger.Error("init grants", slog.Any("error", err))
		os.Exit(1)
	}

	sessionManager := shared.NewSessionManager(redisClient, "hearth_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(dbpool)

	authService := auth.NewService(auth.NewRepository(dbpool), verifier, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, cfg.RateLimitLogin)

	boardService := board.NewService(board.Deps{
		Repo:     board.NewPGRepository(dbpool),
		Engine:   engine,
		Grants:   grants,
		Verifier: verifier,
		Cache:    board.NewListCache(redisClient, cfg.ListCacheTTL, logger),
		Audit:    auditLogger,
		Names:    authService,
		Logger:   logger,
	})
	boardHandler := board.NewHandler(logger, boardService, cfg.IsProduction(), cfg.RateLimitUnlock)

	store, err := objectstore.NewLocal(cfg.UploadDir)
	if err != nil {
		logger.Error("init object store", slog.Any("error", err))
		os.Exit(1)
	}
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	galleryService := gallery.NewService(gallery.Deps{
		Repo:      gallery.NewPGRepository(dbpool),
		Engine:    engine,
		Store:     store,
		Purger:    jobClient,
		Audit:     auditLogger,
		CDNDomain: cfg.CDNDomain,
		Logger:    logger,
	})
	galleryHandler := gallery.NewHandler(logger, galleryService)

	uploadDir := ""
	if cfg.CDNDomain == "" {
		uploadDir = cfg.UploadDir
	}
	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		BoardHandler:   boardHandler,
		GalleryHandler: galleryHandler,
		JobHandler:     jobs.NewHandler(inspector, logger),
		Metrics:        metrics,
		UploadDir:      uploadDir,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
