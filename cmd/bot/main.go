package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Freeeeeet/class_track_bot/internal/app"
	"github.com/Freeeeeet/class_track_bot/internal/clock"
	"github.com/Freeeeeet/class_track_bot/internal/config"
	"github.com/Freeeeeet/class_track_bot/internal/engine"
	"github.com/Freeeeeet/class_track_bot/internal/metrics"
	"github.com/Freeeeeet/class_track_bot/internal/notify"
	"github.com/Freeeeeet/class_track_bot/internal/reminder"
	"github.com/Freeeeeet/class_track_bot/internal/repository"
	"github.com/Freeeeeet/class_track_bot/internal/service"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Invalid timezone", zap.Error(err))
	}

	logger.Sugar().Infow("Starting class track bot",
		"environment", cfg.Environment,
		"store", cfg.Store,
		"timezone", loc.String(),
		"token_length", len(cfg.TelegramToken))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	decoder := repository.NewDecoder(cfg.Defaults, loc, logger)

	// Хранилище записей
	var store repository.Store
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		store = repository.NewMemoryStore(decoder, logger)
	default:
		pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
		if err != nil {
			logger.Fatal("Failed to create database pool", zap.Error(err))
		}
		defer pool.Close()

		pgStore := repository.NewPostgresStore(pool, decoder, logger)
		if err := pgStore.Ping(ctx); err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}

		migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
		if err != nil {
			logger.Fatal("Failed to create migrator", zap.Error(err))
		}
		if err := migrator.Run(ctx); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		if err := migrator.Close(); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}

		store = pgStore
	}

	// Очередь напоминаний
	var queue reminder.DueQueue
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		queue = reminder.NewRedisQueue(client, logger)
	} else {
		logger.Warn("REDIS_ADDR not set, reminders are kept in memory")
		queue = reminder.NewMemoryQueue()
	}

	// Доставка сообщений
	var notifier reminder.Notifier
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		notifier = notify.NewTelegram(b, cfg.AdminIDs, logger)
	} else {
		logger.Warn("TELEGRAM_TOKEN not set, reminders are written to log")
		notifier = notify.NewLogNotifier(logger)
	}

	clk := clock.Real()
	eng := engine.New(loc, cfg.Defaults, logger)
	reminders := reminder.NewScheduler(queue, loc, logger, m)
	students := service.NewStudentService(store, eng, reminders, clk, logger, m)
	dispatcher := reminder.NewDispatcher(queue, students, notifier, loc, logger, m)

	warner := service.NewBalanceWarner(students, notifier, logger)

	scheduler := app.NewScheduler(students, dispatcher, warner, clk, app.Intervals{
		Poll:    cfg.ReminderPollInterval,
		Horizon: cfg.HorizonInterval,
		Balance: cfg.BalanceWarningInterval,
	}, logger)
	scheduler.Start(ctx)

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("Metrics server started", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	scheduler.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop metrics server", zap.Error(err))
		}
	}
}
