package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/evently/evently/internal/di"
	"github.com/evently/evently/internal/service"
	"github.com/evently/evently/pkg/config"
	"github.com/evently/evently/pkg/database"
	"github.com/evently/evently/pkg/logger"
	pkgredis "github.com/evently/evently/pkg/redis"
	"github.com/evently/evently/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       "info",
		ServiceName: "evently-worker",
		Development: cfg.App.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting confirmation worker", zap.String("version", cfg.App.Version))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "evently-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Fatal("failed to initialize telemetry", zap.Error(err))
	}

	// The worker needs far fewer connections than the API
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      20,
		MinIdleConns:  5,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		publisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ClientID: cfg.Kafka.ClientID + "-worker",
		})
		if err != nil {
			appLog.Warn("kafka connection failed, booking events disabled", zap.Error(err))
			publisher = service.NewNoOpEventPublisher()
		}
	} else {
		publisher = service.NewNoOpEventPublisher()
	}
	defer publisher.Close()

	var notifier service.Notifier
	if cfg.SMTP.Enabled {
		notifier, err = service.NewSMTPNotifier(&service.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			appLog.Fatal("smtp configuration invalid", zap.Error(err))
		}
	} else {
		notifier = service.NewLogNotifier()
	}

	container := di.NewContainer(&di.ContainerConfig{
		Config:         cfg,
		DB:             db,
		Redis:          redisClient,
		EventPublisher: publisher,
		Notifier:       notifier,
	})

	if err := container.ConfirmationWorker.Start(ctx); err != nil {
		appLog.Fatal("worker failed to start", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("shutting down worker")
	container.ConfirmationWorker.Stop()

	stats := container.ConfirmationWorker.Stats()
	appLog.Info("worker exited",
		zap.Int64("succeeded", stats.TotalSucceeded),
		zap.Int64("rescheduled", stats.TotalRescheduled),
		zap.Int64("failed", stats.TotalFailed))
}
