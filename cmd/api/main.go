package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quickagent/callminder/internal/api/router"
	"github.com/quickagent/callminder/internal/appointments"
	"github.com/quickagent/callminder/internal/callflow"
	"github.com/quickagent/callminder/internal/callhistory"
	"github.com/quickagent/callminder/internal/config"
	"github.com/quickagent/callminder/internal/events"
	"github.com/quickagent/callminder/internal/http/handlers"
	"github.com/quickagent/callminder/internal/observability/metrics"
	"github.com/quickagent/callminder/internal/reminders"
	"github.com/quickagent/callminder/internal/telephony"
	"github.com/quickagent/callminder/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	apptStore := appointments.NewStore(pool)
	ledger := reminders.NewLedger(pool)
	historyStore := callhistory.NewStore(pool)
	processedStore := events.NewProcessedStore(pool)
	sessionStore := callflow.NewSessionStore(rdb)

	reminderMetrics := metrics.NewReminderMetrics(prometheus.DefaultRegisterer)
	callMetrics := metrics.NewCallMetrics(prometheus.DefaultRegisterer)

	telnyxClient, err := telephony.NewTelnyxClient(telephony.TelnyxConfig{
		APIKey:        cfg.TelnyxAPIKey,
		ConnectionID:  cfg.TelnyxConnectionID,
		WebhookSecret: cfg.TelnyxWebhookSecret,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to create telephony client", "error", err)
		os.Exit(1)
	}

	interpreter := buildInterpreter(ctx, cfg, logger)

	machine, err := callflow.NewMachine(sessionStore, apptStore, interpreter, historyStore, callflow.MachineConfig{
		InputTimeoutSecs: int(cfg.InputTimeout.Seconds()),
		MaxReprompts:     cfg.MaxReprompts,
		TransferNumber:   cfg.TransferNumber,
	}, logger, callMetrics)
	if err != nil {
		logger.Error("failed to create call machine", "error", err)
		os.Exit(1)
	}

	evaluator, err := reminders.NewEvaluator(reminders.EvaluatorConfig{
		DayBeforeLead:                cfg.DayBeforeLead,
		ThirtyMinLead:                cfg.ThirtyMinLead,
		Window:                       cfg.ReminderWindow,
		ConfirmedSuppressesThirtyMin: cfg.ConfirmedSuppressesThirtyMin,
	}, cfg.PollInterval)
	if err != nil {
		logger.Error("invalid reminder configuration", "error", err)
		os.Exit(1)
	}

	initiator, err := reminders.NewInitiator(telnyxClient, sessionStore, cfg.TelnyxFromNumber, logger)
	if err != nil {
		logger.Error("failed to create call initiator", "error", err)
		os.Exit(1)
	}

	scheduler, err := reminders.NewScheduler(apptStore, ledger, evaluator, initiator, reminders.SchedulerConfig{
		PollInterval:        cfg.PollInterval,
		MaxDispatchAttempts: cfg.MaxDispatchAttempts,
	}, logger, reminderMetrics)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	webhookHandler := handlers.NewCallWebhookHandler(telnyxClient, machine, processedStore, logger)
	dashboardHandler := handlers.NewDashboardHandler(apptStore, historyStore, initiator, logger)

	mux := router.New(&router.Config{
		Logger:             logger,
		Webhooks:           webhookHandler,
		Dashboard:          dashboardHandler,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// The scheduler finishes its in-flight tick before exiting.
	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop in time")
	}
	logger.Info("shutdown complete")
}

// buildInterpreter prefers the Bedrock-backed interpreter and falls back to
// keyword matching when no model is configured or AWS setup fails.
func buildInterpreter(ctx context.Context, cfg *config.Config, logger *logging.Logger) callflow.Interpreter {
	if cfg.BedrockModelID == "" {
		logger.Info("no interpreter model configured, using keyword matching")
		return callflow.NewKeywordInterpreter()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		logger.Error("aws config load failed, using keyword matching", "error", err)
		return callflow.NewKeywordInterpreter()
	}

	client := callflow.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	interp, err := callflow.NewLLMInterpreter(client, callflow.LLMInterpreterConfig{
		ModelID: cfg.BedrockModelID,
		Timeout: cfg.InterpretTimeout,
	}, logger)
	if err != nil {
		logger.Error("interpreter setup failed, using keyword matching", "error", err)
		return callflow.NewKeywordInterpreter()
	}
	logger.Info("interpreter ready", "model_id", cfg.BedrockModelID)
	return interp
}
