package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campaignforge/hookrelay/internal/api"
	"github.com/campaignforge/hookrelay/internal/auth"
	"github.com/campaignforge/hookrelay/internal/config"
	"github.com/campaignforge/hookrelay/internal/health"
	"github.com/campaignforge/hookrelay/internal/ingest"
	"github.com/campaignforge/hookrelay/internal/logging"
	"github.com/campaignforge/hookrelay/internal/metrics"
	"github.com/campaignforge/hookrelay/internal/store/postgres"
	"github.com/campaignforge/hookrelay/internal/tracing"
	"github.com/campaignforge/hookrelay/internal/transport"
	"github.com/campaignforge/hookrelay/internal/webhook"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New(cfg.AppName)

	shutdown, err := tracing.InitTracing(ctx, cfg.AppName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// Subscription storage: durable when DB is enabled, in-memory otherwise.
	var store webhook.SubscriptionStore = webhook.NewMemoryStore()
	var pgPool *pgxpool.Pool
	if cfg.DB.Enabled {
		pgPool, err = postgres.Connect(ctx, cfg.DSN())
		if err != nil {
			logger.Plain().WithError(err).Fatal("db connect failed")
		}
		defer pgPool.Close()
		pgStore := postgres.NewStore(pgPool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Plain().WithError(err).Fatal("db schema setup failed")
		}
		store = pgStore
	}

	// Optional DLQ topic mirror.
	var dlqPub webhook.DeadLetterPublisher
	if cfg.NSQ.Enabled && cfg.NSQ.PublishDLQ {
		pub, err := ingest.NewDLQPublisher(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.DLQTopic, logger)
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq dlq producer creation failed")
		}
		defer pub.Stop()
		dlqPub = pub
	}

	svc := webhook.NewService(webhook.ServiceOptions{
		Store:               store,
		Transport:           transport.NewHTTPSender(nil),
		DeadLetterPublisher: dlqPub,
		Logger:              logger,
		DefaultRetryPolicy: webhook.RetryPolicy{
			MaxRetries:        cfg.Retry.MaxRetries,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			InitialDelayMS:    cfg.Retry.InitialDelayMS,
		},
		MaxHistorySize:  cfg.Delivery.MaxHistorySize,
		MaxDLQSize:      cfg.Delivery.MaxDLQSize,
		MaxWorkers:      cfg.Dispatch.MaxWorkers,
		RatePerSec:      cfg.Dispatch.RatePerSec,
		DeliveryTimeout: cfg.Delivery.Timeout,
		TestTimeout:     cfg.Delivery.TestTimeout,
	})

	// Optional broker bridge: events published to NSQ reach the same
	// dispatcher as events posted to the API.
	if cfg.NSQ.Enabled {
		bridge, err := ingest.NewBridge(ingest.BridgeOptions{
			Topic:          cfg.NSQ.EventsTopic,
			Channel:        cfg.NSQ.EventsChannel,
			NsqdTCPAddr:    cfg.NSQ.NsqdTCPAddr,
			LookupHTTPAddr: cfg.NSQ.LookupHTTPAddr,
			Dispatcher:     svc,
			Logger:         logger,
		})
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
		}
		if err := bridge.Start(); err != nil {
			logger.Plain().WithError(err).Fatal("nsq connect failed")
		}
		defer bridge.Stop()
	}

	// API auth is enabled by configuring a JWT public key.
	var validator *auth.JWTValidator
	if cfg.Auth.JWTPublicKeyPEM != "" {
		validator, err = auth.NewJWTValidator(cfg.Auth.JWTPublicKeyPEM, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			logger.Plain().WithError(err).Fatal("jwt validator setup failed")
		}
	}

	server := api.NewServer(api.Options{
		Service:        svc,
		Addr:           cfg.HTTPPort,
		Logger:         logger,
		Validator:      validator,
		HealthHandler:  health.HTTPHandler(pgPool, svc.DeadLetterStore()),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Plain().WithError(err).Fatal("api server failed")
		}
	}()

	logger.Plain().WithField("addr", cfg.HTTPPort).Info("hookrelay started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down")
	_ = server.Shutdown(context.Background())
	logger.Plain().Info("hookrelay stopped")
}
