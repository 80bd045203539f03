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

	"github.com/meridian-certs/meridian/internal/app"
	"github.com/meridian-certs/meridian/internal/authn"
	"github.com/meridian-certs/meridian/internal/events"
	"github.com/meridian-certs/meridian/internal/guard"
	"github.com/meridian-certs/meridian/internal/hierarchy"
	"github.com/meridian-certs/meridian/internal/ledger"
	"github.com/meridian-certs/meridian/internal/platform/cache"
	"github.com/meridian-certs/meridian/internal/platform/db"
	"github.com/meridian-certs/meridian/internal/proposal"
	"github.com/meridian-certs/meridian/internal/shared"
	"github.com/meridian-certs/meridian/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer redisClient.Close()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer asynqClient.Close()

	bus := events.Fanout{
		events.NewRedisPublisher(redisClient, cfg.EventsChannel),
		events.NewEnqueuer(asynqClient, jobs.TaskTypeNotifyEvent, jobs.QueueDefault),
	}

	gate := shared.NewGate()
	audit := shared.NewAuditLogger(pool)

	rolesService := hierarchy.NewService(hierarchy.NewRepository(pool), audit, bus, gate, logger)

	guardService := guard.NewService(guard.NewRepository(pool), rolesService, bus, gate, logger)
	if err := guardService.Load(ctx); err != nil {
		logger.Error("load pause flag", slog.Any("error", err))
		os.Exit(1)
	}

	verifyCache := ledger.NewVerifyCache(redisClient, cfg.VerifyCacheTTL, logger)
	ledgerService := ledger.NewService(ledger.NewRepository(pool), rolesService, guardService, bus, gate, verifyCache, logger)

	proposalService := proposal.NewService(proposal.NewRepository(pool), rolesService, guardService, bus, gate, logger, cfg.ApprovalThreshold)

	authnService := authn.NewService(authn.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Authn:           authn.Middleware{Service: authnService, Logger: logger},
		RolesHandler:    hierarchy.NewHandler(logger, rolesService),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService),
		ProposalHandler: proposal.NewHandler(logger, proposalService),
		GuardHandler:    guard.NewHandler(logger, guardService),
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
