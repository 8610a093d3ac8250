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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawdatain/backoffice/internal/accounting/accounts"
	"github.com/rawdatain/backoffice/internal/accounting/journals"
	"github.com/rawdatain/backoffice/internal/accounting/mappings"
	"github.com/rawdatain/backoffice/internal/accounting/periods"
	"github.com/rawdatain/backoffice/internal/app"
	"github.com/rawdatain/backoffice/internal/audit"
	audithttp "github.com/rawdatain/backoffice/internal/audit/http"
	"github.com/rawdatain/backoffice/internal/auth"
	"github.com/rawdatain/backoffice/internal/integration"
	"github.com/rawdatain/backoffice/internal/lookup"
	"github.com/rawdatain/backoffice/internal/observability"
	"github.com/rawdatain/backoffice/internal/platform/cache"
	"github.com/rawdatain/backoffice/internal/profitsharing"
	"github.com/rawdatain/backoffice/internal/rbac"
	"github.com/rawdatain/backoffice/internal/relations"
	"github.com/rawdatain/backoffice/internal/segments"
	"github.com/rawdatain/backoffice/internal/settings"
	"github.com/rawdatain/backoffice/internal/shared"
	"github.com/rawdatain/backoffice/internal/vouchers"
	"github.com/rawdatain/backoffice/jobs"
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

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisCfg := cfg.RedisOptions()
	redisClient, err := cache.New(ctx, redisCfg)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "backoffice_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	metrics := observability.NewMetrics()

	redisOpts := redisCfg.AsynqOpt()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	emitter := audit.NewAsyncEmitter(jobClient, logger)

	authService := auth.NewService(auth.NewRepository(dbpool))
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	authHandler := auth.NewHandler(logger, authService, tokens, sessionManager, csrfManager)

	rbacService := rbac.NewService(rbac.NewStore(dbpool))
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}
	permissionsHandler := rbac.NewPermissionsHandler(logger, rbacService, rbacMiddleware)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, rbacService)

	accountService := accounts.NewService(accounts.NewRepository(dbpool))
	periodService := periods.NewService(periods.NewRepository(dbpool))
	journalService := journals.NewService(journals.NewRepository(dbpool), emitter, periodService)
	poster := integration.NewPoster(
		journalService,
		periodService,
		mappings.NewRepository(dbpool),
		accountService,
		metrics,
		logger,
	)

	invalidator := &app.DeferredInvalidator{}
	relationService := relations.NewService(relations.NewRepository(dbpool), emitter, invalidator)
	settingsService := settings.NewService(settings.NewRepository(dbpool), emitter, invalidator)
	lookupCache := lookup.New(lookup.Sources{
		Relations: relationService,
		Boxes:     accountService,
		Users:     authService,
		Settings:  settingsService,
	}, cfg.LookupTTL, cfg.LookupRefreshInterval, logger)
	invalidator.Bind(lookupCache)

	segmentService := segments.NewService(segments.Deps{
		Repo:     segments.NewRepository(dbpool),
		Lookup:   lookupCache,
		Poster:   poster,
		Usage:    relationService,
		Emitter:  emitter,
		Recorder: metrics,
		Logger:   logger,
	})
	profitService := profitsharing.NewService(profitsharing.Deps{
		Repo:    profitsharing.NewRepository(dbpool),
		Lookup:  lookupCache,
		Poster:  poster,
		Emitter: emitter,
		Logger:  logger,
	})
	voucherService := vouchers.NewService(lookupCache, poster, idempotencyStore, emitter, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		AuthService:          authService,
		Tokens:               tokens,
		RBACMiddleware:       rbacMiddleware,
		Metrics:              metrics,
		AuthHandler:          authHandler,
		PermissionsHandler:   permissionsHandler,
		AuditHandler:         auditHandler,
		AccountsHandler:      accounts.NewHandler(logger, accountService),
		JournalsHandler:      journals.NewHandler(logger, journalService),
		RelationsHandler:     relations.NewHandler(logger, relationService),
		SegmentsHandler:      segments.NewHandler(logger, segmentService),
		ProfitSharingHandler: profitsharing.NewHandler(logger, profitService),
		VouchersHandler:      vouchers.NewHandler(logger, voucherService),
		SettingsHandler:      settings.NewHandler(logger, settingsService),
		LookupHandler:        lookup.NewHandler(logger, lookupCache),
		JobHandler:           jobs.NewHandler(inspector, logger).WithRollups(jobClient),
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
