// Package main is the entry point for the CreditGate webhook API server.
//
// It loads the configuration (environment, dotenv, SSM), connects the pgx
// pool and the AWS clients, assembles the reconciliation pipeline
// (authenticator -> resolver -> settler) behind the gateway webhook handler,
// and serves it on the core chassis with graceful shutdown on SIGINT/SIGTERM.
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
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"creditgate/internal/api/handlers"
	"creditgate/internal/auth"
	"creditgate/internal/config"
	"creditgate/internal/core"
	"creditgate/internal/db"
	"creditgate/internal/queue"
	"creditgate/internal/reconcile"
	"creditgate/internal/sysconfig"
	"creditgate/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	// The startup SecretProvider resolves *_SSM_PARAM indirections (the
	// database URL). It is separate from the sysconfig store, which reads
	// the rotating webhook secret per request.
	cfg, err := config.LoadConfig(config.NewSSMProvider(startupRegion()))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("creditgate API starting",
		"environment", cfg.Environment,
		"gateway", cfg.Gateway.Name,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database pool: %w", err)
	}
	// Also closed by the shutdown hook on the graceful path; pgxpool.Close
	// is idempotent.
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}

	// AWS_ENDPOINT_URL points every client at LocalStack in development.
	endpoint := cfg.AWS.EndpointURL
	ssmClient := ssm.NewFromConfig(awsCfg, func(o *ssm.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	secretStore := sysconfig.NewSSMStore(ssmClient, logger)
	authenticator := auth.NewSecretAuthenticator(secretStore, cfg.Gateway.SecretParameter, logger)

	alerts := queue.NewAlertQueue(sqsClient, cfg.AWS.AlertQueueURL, logger)
	metrics := telemetry.NewMetrics(cwClient, cfg.Observability.MetricNamespace, logger)

	transactions := db.NewTransactionRepo(pool, logger)
	pricing := db.NewPricingRepo(pool, logger)
	settlements := db.NewSettlementStore(pool, logger)

	resolver := reconcile.NewResolver(transactions, alerts, metrics, cfg.Gateway.Name, logger)
	settler := reconcile.NewSettler(pricing, settlements, alerts, metrics, logger)

	webhookHandler := handlers.NewGatewayWebhookHandler(authenticator, resolver, settler, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.RouteRegistrars = append(srv.RouteRegistrars, webhookHandler.RegisterRoutes)
	srv.ShutdownHooks = append(srv.ShutdownHooks, func(context.Context) error {
		pool.Close()
		return nil
	})
	srv.HealthProbes = append(srv.HealthProbes,
		core.ProbeFunc{
			ProbeName: "database",
			Fn:        pool.Ping,
		},
		core.ProbeFunc{
			ProbeName: "config_store",
			Fn: func(ctx context.Context) error {
				// A missing parameter still proves the store is reachable.
				_, err := secretStore.Get(ctx, cfg.Gateway.SecretParameter)
				if errors.Is(err, sysconfig.ErrNotFound) {
					return nil
				}
				return err
			},
		},
	)
	srv.MountRoutes()

	return runHTTPServer(ctx, srv, cfg, logger)
}

// startupRegion reads the AWS region before LoadConfig has run, since the
// startup SecretProvider needs it to resolve the configuration itself.
func startupRegion() string {
	if region, ok := os.LookupEnv("AWS_REGION"); ok && region != "" {
		return region
	}
	return "us-east-1"
}

// runHTTPServer serves until a shutdown signal or listener failure, then
// drains in-flight requests with a 10-second deadline.
func runHTTPServer(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
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

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
