// Package main is the entry point for the PomoLink API server.
//
// Startup wires the full dependency graph: config, pgx pool, repositories,
// domain services, Stripe and identity integrations, the CloudWatch metrics
// collector, and the outbox publisher that mirrors membership changes into
// SQS. The HTTP server runs until SIGINT/SIGTERM and then drains gracefully.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"pomolink/internal/api/handlers"
	"pomolink/internal/billing"
	"pomolink/internal/config"
	"pomolink/internal/core"
	"pomolink/internal/db"
	"pomolink/internal/identity"
	"pomolink/internal/metrics"
	"pomolink/internal/mirror"
	"pomolink/internal/rooms"
	"pomolink/internal/tasks"
	"pomolink/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("pomolink API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	clock := types.RealClock{}

	// Repositories.
	users := db.NewUserRepository(pool)
	roomRepo := db.NewRoomRepository(pool)
	participants := db.NewParticipantRepository(pool)
	invitations := db.NewInvitationRepository(pool, clock)
	taskRepo := db.NewTaskRepository(pool)
	usage := db.NewUsageRepository(pool)
	membership := db.NewMembershipStore(pool)

	// Billing and admission.
	planRegistry := billing.NewStaticPlanRegistry()
	admission := billing.NewAdmissionService(users, roomRepo, participants, usage, planRegistry, clock)
	recorder := billing.NewUsageRecorder(usage, users, clock)
	prices := billing.NewPriceTable(map[types.PlanTier]string{
		types.PlanBasic: cfg.Billing.PriceBasic,
		types.PlanPro:   cfg.Billing.PricePro,
	})
	stripeClient := billing.NewStripeClient(&http.Client{Timeout: 15 * time.Second}, billing.StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Prices:    prices,
		Logger:    logger,
	})
	subSync := billing.NewSubscriptionSync(users, prices, logger)

	// Domain services.
	codes := rooms.NewInviteCodeGenerator(roomRepo)
	roomSvc := rooms.NewService(roomRepo, participants, membership, admission, codes, clock, logger)
	invitationSvc := rooms.NewInvitationService(invitations, roomRepo, participants, users, roomSvc, clock, logger)
	taskSvc := tasks.NewService(taskRepo, pool, participants, clock, logger)

	// Identity provider integration.
	authenticator, err := identity.NewAuthenticator(cfg.Identity.IssuerURL, users)
	if err != nil {
		return fmt.Errorf("initializing authenticator: %w", err)
	}
	identityVerifier, err := identity.NewWebhookVerifier(cfg.Identity.WebhookSecret.Unmask(), clock)
	if err != nil {
		return fmt.Errorf("initializing identity webhook verifier: %w", err)
	}
	synchronizer := identity.NewSynchronizer(users, logger)

	// AWS clients.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	collector := metrics.NewCollector(cwClient, logger)

	publisher := mirror.NewOutboxPublisher(pool, sqsClient, cfg.AWS.MirrorQueueURL, clock, logger)

	// HTTP chassis.
	srv, err := core.NewServer(cfg, authenticator, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = collector
	srv.HealthProbes = []core.HealthProbe{&dbProbe{pool: pool}}

	roomHandler := handlers.NewRoomHandler(roomSvc, srv.Validator, collector, logger)
	invitationHandler := handlers.NewInvitationHandler(invitationSvc, srv.Validator, collector, logger)
	recordingHandler := handlers.NewRecordingHandler(admission, recorder, usage, participants, srv.Validator, collector, logger)
	uploadHandler := handlers.NewUploadHandler(admission, recorder, participants, srv.Validator, collector, logger)
	taskHandler := handlers.NewTaskHandler(taskSvc, srv.Validator)
	userHandler := handlers.NewUserHandler(users, roomRepo, usage, planRegistry, clock)
	billingHandler := handlers.NewBillingHandler(
		stripeClient,
		srv.Validator,
		cfg.Server.AppURL+"/billing/success",
		cfg.Server.AppURL+"/billing/cancelled",
		logger,
	)
	stripeWebhook := handlers.NewStripeWebhookHandler(
		billing.StripeVerifier{}, subSync, cfg.Billing.StripeWebhookSecret.Unmask(), logger)
	identityWebhook := handlers.NewIdentityWebhookHandler(identityVerifier, synchronizer, logger)

	srv.MountRoutes(
		[]core.RouteRegistrar{
			roomHandler.RegisterRoutes,
			invitationHandler.RegisterRoutes,
			recordingHandler.RegisterRoutes,
			uploadHandler.RegisterRoutes,
			taskHandler.RegisterRoutes,
			userHandler.RegisterRoutes,
			billingHandler.RegisterRoutes,
		},
		[]core.RouteRegistrar{
			stripeWebhook.RegisterRoutes,
			identityWebhook.RegisterRoutes,
		},
	)

	// Outbox drain loop. Stops with the process context; events still
	// unpublished at shutdown are picked up on the next start.
	go func() {
		if err := publisher.Run(ctx, cfg.Plans.OutboxDrainInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("outbox publisher stopped", "error", err)
		}
	}()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// newPool builds the pgx connection pool from the database configuration.
func newPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// dbProbe reports database reachability for the health endpoint.
type dbProbe struct {
	pool *pgxpool.Pool
}

func (p *dbProbe) Name() string { return "database" }

func (p *dbProbe) Check(ctx context.Context) error { return p.pool.Ping(ctx) }

// runHTTPServer serves until the context is cancelled, then shuts down with a
// 10-second drain deadline.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates the JSON structured logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
