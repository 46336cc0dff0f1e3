package di

import (
	"github.com/evently/evently/internal/handler"
	"github.com/evently/evently/internal/repository"
	"github.com/evently/evently/internal/service"
	"github.com/evently/evently/internal/worker"
	"github.com/evently/evently/pkg/config"
	"github.com/evently/evently/pkg/database"
	"github.com/evently/evently/pkg/redis"
	"github.com/evently/evently/pkg/retry"
)

// Container holds all dependencies for the booking platform
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	EventRepo     repository.EventRepository
	BookingRepo   repository.BookingRepository
	TaskRepo      repository.TaskRepository
	InventoryRepo repository.InventoryRepository
	Cache         repository.AvailabilityCache

	// Outbound
	EventPublisher service.EventPublisher
	Notifier       service.Notifier

	// Services
	BookingService      service.BookingService
	EventService        service.EventService
	AvailabilityService service.AvailabilityService

	// Workers
	ConfirmationWorker *worker.ConfirmationWorker

	// Handlers
	HealthHandler  *handler.HealthHandler
	BookingHandler *handler.BookingHandler
	EventHandler   *handler.EventHandler
	AdminHandler   *handler.AdminHandler
}

// ContainerConfig contains the externally constructed dependencies
type ContainerConfig struct {
	Config         *config.Config
	DB             *database.PostgresDB
	Redis          *redis.Client
	EventPublisher service.EventPublisher
	Notifier       service.Notifier
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	bookingCfg := cfg.Config.Booking

	c := &Container{
		DB:             cfg.DB,
		Redis:          cfg.Redis,
		EventPublisher: cfg.EventPublisher,
		Notifier:       cfg.Notifier,
	}
	if c.EventPublisher == nil {
		c.EventPublisher = service.NewNoOpEventPublisher()
	}
	if c.Notifier == nil {
		c.Notifier = service.NewLogNotifier()
	}

	// Repositories
	pool := cfg.DB.Pool()
	c.EventRepo = repository.NewPostgresEventRepository(pool)
	c.BookingRepo = repository.NewPostgresBookingRepository(pool)
	c.TaskRepo = repository.NewPostgresTaskRepository(pool)
	c.InventoryRepo = repository.NewPostgresInventoryRepository(pool, bookingCfg.LockTimeout)
	if cfg.Redis != nil {
		c.Cache = repository.NewRedisAvailabilityCache(cfg.Redis)
	}

	// Services
	c.BookingService = service.NewBookingService(
		c.InventoryRepo,
		c.BookingRepo,
		c.Cache,
		c.EventPublisher,
		&service.BookingServiceConfig{TaskMaxAttempts: bookingCfg.TaskMaxAttempts},
	)
	c.EventService = service.NewEventService(c.EventRepo, c.TaskRepo, c.Cache, bookingCfg.TaskMaxAttempts)
	c.AvailabilityService = service.NewAvailabilityService(c.EventRepo, c.Cache, bookingCfg.AvailabilityCacheTTL)

	// Workers
	backoff := retry.DefaultConfig()
	backoff.MaxRetries = bookingCfg.TaskMaxAttempts
	c.ConfirmationWorker = worker.NewConfirmationWorker(
		c.TaskRepo,
		c.BookingRepo,
		c.InventoryRepo,
		c.Cache,
		c.Notifier,
		c.EventPublisher,
		&worker.ConfirmationWorkerConfig{
			PollInterval: bookingCfg.WorkerPollInterval,
			BatchSize:    bookingCfg.WorkerBatchSize,
			Backoff:      backoff,
		},
	)

	// Handlers
	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis, cfg.Config.App.Version)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.EventHandler = handler.NewEventHandler(c.EventService, c.AvailabilityService)
	c.AdminHandler = handler.NewAdminHandler(c.EventService)

	return c
}
