package container

import (
	"context"
	"fmt"
	"time"

	"techblog/internal/config"
	"techblog/internal/repository"
	"techblog/internal/service"
	"techblog/pkg/database"
	"techblog/pkg/logger"
	"techblog/pkg/redis"
)

const startupPingTimeout = 3 * time.Second

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *logger.Logger
	RedisClient  *redis.Client
	DB           *database.PostgresDB
	Repositories *repository.Repositories
	CounterStore service.CounterStore
	Services     *service.Services
	Scheduler    *service.SyncScheduler
}

// New connects to Redis and PostgreSQL and wires the visitor services.
// An unreachable Redis only logs a warning since counting degrades
// gracefully; an unreachable database is fatal.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	redisClient, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Named("redis").Logger)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	if err := redisClient.Ping(pingCtx); err != nil {
		log.WithError(err).Warn("Redis is unreachable at startup, visitor counting will be skipped until it recovers")
	} else {
		log.Info("Redis client initialized successfully")
	}
	cancel()

	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DatabaseReadURL)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repos := &repository.Repositories{
		VisitorStats: repository.NewVisitorStatsRepository(db),
	}

	c, err := build(cfg, log, redisClient, repos)
	if err != nil {
		_ = redisClient.Close()
		db.Close()
		return nil, err
	}
	c.DB = db

	return c, nil
}

// build wires services on top of already connected stores
func build(cfg *config.Config, log *logger.Logger, redisClient *redis.Client, repos *repository.Repositories) (*Container, error) {
	if cfg.Location == nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	classifier, err := service.NewClassifier(cfg.ExcludedPaths, cfg.BotPatterns, cfg.ExcludedCIDRs)
	if err != nil {
		return nil, fmt.Errorf("failed to build visitor classifier: %w", err)
	}

	store := service.NewCounterStore(redisClient, cfg.VisitorTTL)
	syncService := service.NewSyncService(store, repos.VisitorStats, cfg.Location, cfg.SyncConcurrency, log.Named("sync"))

	services := &service.Services{
		Visitor: service.NewVisitorService(store, classifier, cfg.Location, log.Named("visitor")),
		Stats:   service.NewStatsService(store, repos.VisitorStats, cfg.Location, log.Named("stats")),
		Sync:    syncService,
	}

	scheduler := service.NewSyncScheduler(syncService, cfg.SyncHour, cfg.SyncMinute, cfg.Location, cfg.SyncTimeout, log.Named("scheduler"))

	return &Container{
		Config:       cfg,
		Logger:       log,
		RedisClient:  redisClient,
		Repositories: repos,
		CounterStore: store,
		Services:     services,
		Scheduler:    scheduler,
	}, nil
}

// GetVisitorService returns the counting service
func (c *Container) GetVisitorService() service.VisitorService {
	return c.Services.Visitor
}

// GetStatsService returns the stats read service
func (c *Container) GetStatsService() service.StatsService {
	return c.Services.Stats
}

// GetSyncService returns the reconciliation service
func (c *Container) GetSyncService() service.SyncService {
	return c.Services.Sync
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// Close releases the Redis client and database pools
func (c *Container) Close() error {
	var err error
	if c.RedisClient != nil {
		if cerr := c.RedisClient.Close(); cerr != nil {
			err = fmt.Errorf("redis close: %w", cerr)
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
	return err
}
