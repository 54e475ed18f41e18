package main

import (
	"campuscare/backend/internal/api/handler"
	"campuscare/backend/internal/appeal"
	"campuscare/backend/internal/auth"
	"campuscare/backend/internal/chathub"
	"campuscare/backend/internal/classifier"
	"campuscare/backend/internal/config"
	"campuscare/backend/internal/localization"
	"campuscare/backend/internal/logger"
	"campuscare/backend/internal/metrics"
	"campuscare/backend/internal/moderation"
	"campuscare/backend/internal/notify"
	"campuscare/backend/internal/realtime"
	"campuscare/backend/internal/storage"
	"campuscare/backend/internal/telegram"
	"campuscare/backend/internal/triage"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func setupDependencies(cfg config.Config, log *logger.Logger) (*gorm.DB, *redis.Client, error) {
	// 1. PostgreSQL та міграції
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := storage.Migrate(db); err != nil {
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	log.Info("Database and Redis connections established, migrations complete")
	return db, rdb, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	log.Info("Starting CampusCare backend", "addr", cfg.Addr)

	db, rdb, err := setupDependencies(cfg, log)
	if err != nil {
		return err
	}
	defer rdb.Close()
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	st := storage.NewStorageService(db, rdb)

	// Метрики
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	loc := localization.Default()

	var alerter notify.Alerter
	tg, err := telegram.NewAlerter(cfg.Telegram.BotToken, cfg.Telegram.AlertChatID, log)
	if err != nil {
		return fmt.Errorf("telegram alerter: %w", err)
	}
	if tg != nil {
		alerter = tg
	} else {
		log.Info("Telegram alerts disabled")
	}

	// Сервіси модерації, апеляцій та авторизації
	cls := classifier.New(classifier.Config{
		Endpoint:   cfg.Classifier.Endpoint,
		Model:      cfg.Classifier.Model,
		APIKey:     cfg.Classifier.APIKey,
		Timeout:    cfg.Classifier.Timeout,
		MaxRetries: cfg.Classifier.MaxRetries,
	}, log, m)
	dispatcher := notify.NewDispatcher(st, cfg.RoleCacheTTL, alerter, log, m)

	modSvc := moderation.NewService(st, cls, dispatcher, loc, moderation.Options{
		Threshold: cfg.Moderation.ConfidenceThreshold,
		Language:  cfg.Language,
		Logger:    log,
		Metrics:   m,
	})
	appealSvc := appeal.NewService(st, dispatcher, loc, cfg.Language, log)
	authSvc := auth.NewService(st, cfg.JWTSecret, cfg.TokenTTL, cfg.StudentEmailDomain, log)

	// Chat Hub та AI-тріаж
	chat := chathub.NewChatService(st, dispatcher, loc, cfg.Language, log)
	assistant := triage.NewManager(cls, chat, dispatcher, loc, triage.Options{
		Delay:    cfg.Triage.Delay,
		Language: cfg.Language,
		Logger:   log,
		Metrics:  m,
	})
	defer assistant.Close()
	chat.SetTriage(assistant)
	hub := chathub.NewManagerService(chat, log)

	if cfg.LogMode == "production" || cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(handler.Handler{
		Auth:          authSvc,
		Moderation:    modSvc,
		Appeals:       appealSvc,
		Chat:          chat,
		Notifications: dispatcher,
		Hub:           hub,
		Storage:       st,
		Metrics:       m,
		Realtime: realtime.Options{
			BackoffBase:  cfg.Realtime.BackoffBase,
			MaxAttempts:  cfg.Realtime.MaxAttempts,
			PollInterval: cfg.Realtime.PollInterval,
		},
		Log: log,
	})

	// Запуск HTTP-сервера
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h.Router(cfg.CORSOrigin),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx) // Головний диспетчер
		return nil
	})
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
