package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talentbook/internal/api"
	"talentbook/internal/config"
	"talentbook/internal/database"
	"talentbook/internal/domain"
	"talentbook/internal/export"
	"talentbook/internal/google"
	"talentbook/internal/logging"
	"talentbook/internal/metrics"
	"talentbook/internal/notify"
	"talentbook/internal/repository"
	"talentbook/internal/service"
	"talentbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	state := initStateRepository(redisClient, &logger)

	batchWriter := export.NewPayoutBatchWriter(cfg.Exports.Path, cfg.Ledger.CoinRateNGN, &logger)

	ledgerSvc := service.NewLedgerService(db, cfg.Ledger.MaxRetry, &logger)
	bookingSvc := service.NewBookingService(db, cfg.Ledger.MaxRetry, &logger)
	verificationSvc := service.NewVerificationService(db, cfg.Ledger.MaxRetry, &logger)
	withdrawalSvc := service.NewWithdrawalService(db, batchWriter, cfg.Ledger.WithdrawalMinCoins, cfg.Ledger.MaxRetry, &logger)

	sweeper := service.NewSweeper(
		db,
		time.Duration(cfg.Sweep.IntervalSeconds)*time.Second,
		time.Duration(cfg.Sweep.PaymentPendingTTL)*time.Second,
		time.Duration(cfg.Sweep.VerificationTTL)*time.Second,
		cfg.Ledger.MaxRetry,
		&logger,
	)

	outboxWorker := worker.NewOutboxWorker(
		db,
		buildSinks(cfg, redisClient, &logger),
		worker.RetryPolicy{MaxRetries: cfg.Events.MaxAttempts},
		time.Duration(cfg.Events.PollIntervalSeconds)*time.Second,
		cfg.Events.BatchSize,
		&logger,
	)

	backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings:     bookingSvc,
		Ledger:       ledgerSvc,
		Verification: verificationSvc,
		Withdrawals:  withdrawalSvc,
	}, db, state, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	go sweeper.Run(ctx)
	go outboxWorker.Start(ctx)
	go backup.Start(ctx)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)

	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStateRepository wires redis behind the in-memory failover; with
// no redis at all the memory repository serves alone.
func initStateRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(
		repository.NewRedisStateRepository(redisClient),
		memory,
		logger,
	)
}

func buildSinks(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) []domain.EventSink {
	var sinks []domain.EventSink

	if redisClient != nil {
		publisher := repository.NewRedisPublisher(redisClient, cfg.Events.RedisChannel)
		sinks = append(sinks, worker.NewRedisSink(publisher))
	}

	if cfg.Telegram.Enabled {
		notifier, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID, cfg.Telegram.Debug, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without ops notifications")
		} else {
			sinks = append(sinks, worker.NewNotifySink(notifier))
		}
	}

	if cfg.Google.Enabled {
		payoutSheet, err := google.NewPayoutSheetsService(
			cfg.Google.GoogleCredentialsFile,
			cfg.Google.PayoutSpreadSheetID,
			cfg.Ledger.CoinRateNGN,
		)
		if err != nil {
			logger.Warn().Err(err).Msg("google sheets init failed, continuing without payout sheet")
		} else {
			sinks = append(sinks, worker.NewPayoutSink(payoutSheet))
		}
	}

	return sinks
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
