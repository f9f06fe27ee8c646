package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/people-registry/registry/internal/app"
	"github.com/people-registry/registry/internal/auth"
	"github.com/people-registry/registry/internal/authz"
	"github.com/people-registry/registry/internal/observability"
	"github.com/people-registry/registry/internal/platform/cache"
	"github.com/people-registry/registry/internal/platform/db"
	"github.com/people-registry/registry/internal/rbac"
	"github.com/people-registry/registry/internal/shared"
	"github.com/people-registry/registry/internal/users"
	"github.com/people-registry/registry/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	usersRepo := users.NewRepository(dbpool)
	rbacRepo := rbac.NewRepository(dbpool)
	auditLogger := shared.NewAuditLogger(dbpool)
	ownerResolver := authz.NewPGOwnershipResolver(dbpool)
	for name, migrate := range map[string]func(context.Context) error{
		"users":     usersRepo.Migrate,
		"rbac":      rbacRepo.Migrate,
		"audit":     auditLogger.Migrate,
		"ownership": ownerResolver.Migrate,
	} {
		if err := migrate(ctx); err != nil {
			logger.Error("migrate", slog.String("schema", name), slog.Any("error", err))
			os.Exit(1)
		}
	}

	usersService := users.NewService(usersRepo)
	rbacService := rbac.NewService(rbacRepo, usersService, auditLogger, logger)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token manager", slog.Any("error", err))
		os.Exit(1)
	}
	lockout := auth.NewLockoutStore(redisClient, auth.LockoutPolicy{
		MaxAttempts: cfg.LockoutMaxAttempts,
		Window:      cfg.LockoutWindow,
		Duration:    cfg.LockoutDuration,
	})
	authService := auth.NewService(usersRepo, tokens, lockout, auditLogger, logger)
	authHandler := auth.NewHandler(logger, authService, func(r *http.Request) (string, bool) {
		return shared.UserIDFromContext(r.Context())
	})

	metrics := observability.NewMetrics()
	ownership := authz.NewOwnership(ownerResolver, logger)
	pipeline := authz.NewPipeline(authService, rbacService, ownership, logger)
	authzMiddleware := authz.NewMiddleware(pipeline, logger, metrics)

	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger, CurrentUser: shared.UserIDFromContext}
	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware, ownership)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		Authz:          authzMiddleware,
		RBACMiddleware: rbacMiddleware,
		AuthHandler:    authHandler,
		RBACHandler:    rbacHandler,
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server", slog.Any("error", err))
		os.Exit(1)
	}
}
