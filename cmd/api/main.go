package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/taskvine/backend/internal/approval"
	"github.com/taskvine/backend/internal/auth"
	"github.com/taskvine/backend/internal/config"
	"github.com/taskvine/backend/internal/engagement"
	"github.com/taskvine/backend/internal/escrow"
	"github.com/taskvine/backend/internal/evidence"
	"github.com/taskvine/backend/internal/notify"
	"github.com/taskvine/backend/internal/payout"
	"github.com/taskvine/backend/internal/processor"
	"github.com/taskvine/backend/internal/router"
	"github.com/taskvine/backend/internal/submission"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Unable to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL (connection refused or invalid). Ensure Postgres is running, e.g. make dev-up or docker-compose up -d", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database successfully!")

	// River migrations
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed. If the error is 'connection refused', start PostgreSQL first (e.g. make dev-up)", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	// Notifications: insert func is set after the River client is created
	// (breaks the init cycle between the notifier and the worker registry).
	var insertMu sync.Mutex
	var insertFn notify.InsertJobFunc
	insertDelivery := func(ctx context.Context, args notify.DeliverJobArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, args)
	}
	notifier := notify.NewQueueNotifier(insertDelivery)

	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewDeliverWorker(cfg.NotifyWebhookURL, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, args notify.DeliverJobArgs) error {
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}
	insertMu.Unlock()

	// Auth
	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)
	authHandler := auth.NewHandler(authSvc, logger)

	// Payout accounts
	payoutRepo := payout.NewRepository(pool)
	payoutSvc := payout.NewService(payoutRepo)
	payoutHandler := payout.NewHandler(payoutSvc, authSvc, logger)

	// Engagement engine
	engRepo := engagement.NewRepository(pool)
	approvalSvc := approval.NewService(approval.NewRepository(pool), engRepo, notifier, logger)
	proc := processor.NewSandbox(logger)
	escrowSvc := escrow.NewService(escrow.NewRepository(pool), proc, approvalSvc, payoutSvc, escrow.FeePolicy{
		PlatformFeeBPS: cfg.PlatformFeeBPS,
		TaxBPS:         cfg.TaxBPS,
		Currency:       cfg.Currency,
	})
	submissionSvc := submission.NewService(submission.NewRepository(pool))
	engSvc := engagement.NewService(pool, engRepo, escrowSvc, approvalSvc, submissionSvc, authRepo, notifier, cfg.RejectionRetryCap, logger)
	engHandler := engagement.NewHandler(engSvc, evidence.NewMemoryStore(), logger)

	apiV1Router := router.New(authHandler, engHandler, payoutHandler, authSvc)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiV1Router)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (delivers notifications)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	serverAddr := "0.0.0.0:" + cfg.Port
	slog.Info("Starting HTTP server", "addr", serverAddr)
	if err := http.ListenAndServe(serverAddr, corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
