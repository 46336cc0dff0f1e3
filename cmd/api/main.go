package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evently/evently/internal/di"
	"github.com/evently/evently/internal/service"
	"github.com/evently/evently/pkg/config"
	"github.com/evently/evently/pkg/database"
	"github.com/evently/evently/pkg/logger"
	"github.com/evently/evently/pkg/middleware"
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
		ServiceName: "evently-api",
		Development: cfg.App.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting evently api", zap.String("version", cfg.App.Version))

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
	}); err != nil {
		appLog.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal("database connection failed", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   3,
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
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			appLog.Warn("kafka connection failed, booking events disabled", zap.Error(err))
			publisher = service.NewNoOpEventPublisher()
		}
	} else {
		publisher = service.NewNoOpEventPublisher()
	}
	defer publisher.Close()

	container := di.NewContainer(&di.ContainerConfig{
		Config:         cfg,
		DB:             db,
		Redis:          redisClient,
		EventPublisher: publisher,
	})

	router := setupRouter(cfg, container, redisClient)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("evently api listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal("forced shutdown", zap.Error(err))
	}

	appLog.Info("server exited")
}

func setupRouter(cfg *config.Config, container *di.Container, redisClient *pkgredis.Client) *gin.Engine {
	if !cfg.App.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	idempotencyCfg := middleware.DefaultIdempotencyConfig(redisClient.Client())
	idempotencyCfg.SkipPaths = []string{"/health", "/ready"}

	rateLimitCfg := middleware.DefaultUserRateLimitConfig(redisClient)
	rateLimitCfg.MaxRequests = cfg.Booking.MaxBookingsPerMinute

	v1 := router.Group("/api/v1")
	{
		events := v1.Group("/events")
		{
			events.GET("", container.EventHandler.ListEvents)
			events.GET("/:id", container.EventHandler.GetEvent)
			events.GET("/:id/availability", container.EventHandler.GetAvailability)
		}

		bookings := v1.Group("/bookings")
		bookings.Use(middleware.RequireAuth(cfg.JWT.Secret))
		{
			// The reserve path carries the write load: rate limit it per
			// user and dedupe retries by idempotency key
			bookings.POST("",
				middleware.UserRateLimiter(rateLimitCfg),
				middleware.Idempotency(idempotencyCfg),
				container.BookingHandler.CreateBooking)
			bookings.DELETE("/:id",
				middleware.Idempotency(idempotencyCfg),
				container.BookingHandler.CancelBooking)

			bookings.GET("", container.BookingHandler.GetUserBookings)
			bookings.GET("/:id", container.BookingHandler.GetBooking)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.RequireAuth(cfg.JWT.Secret), middleware.RequireStaff())
		{
			admin.POST("/events", container.AdminHandler.CreateEvent)
			admin.PATCH("/events/:id", container.AdminHandler.UpdateEvent)
			admin.PATCH("/events/:id/active", container.AdminHandler.SetEventActive)
			admin.GET("/events/:id/analytics", container.AdminHandler.GetAnalytics)
			admin.GET("/analytics", container.AdminHandler.ListAnalytics)
			admin.POST("/events/:id/notify", container.AdminHandler.NotifyEventUsers)
		}
	}

	return router
}
