package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"techblog/internal/config"
	"techblog/internal/container"
	"techblog/internal/handler"
	"techblog/internal/middleware"
	"techblog/internal/service"
	"techblog/pkg/errors"
	"techblog/pkg/logger"
)

// Resources holds all resources that need cleanup
type Resources struct {
	container      *container.Container
	server         *http.Server
	stopSupervisor context.CancelFunc
	supervisorDone <-chan error
	log            *logger.Logger
	mu             sync.Mutex
	closed         bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the sync scheduler; a run in progress sees its context canceled
	if r.stopSupervisor != nil {
		r.log.Info("Stopping background services...")
		r.stopSupervisor()
		select {
		case <-r.supervisorDone:
			r.log.Info("Background services stopped")
		case <-ctx.Done():
			r.log.Warn("Timed out waiting for background services")
		}
	}

	if r.container != nil {
		r.log.Info("Closing Redis and database connections...")
		if err := r.container.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close connections")
			errs = append(errs, err)
		} else {
			r.log.Info("Connections closed successfully")
		}
	}

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Service:     "techblog-visitors",
		Environment: cfg.Environment,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":      cfg.Port,
		"log_level": cfg.LogLevel,
		"time_zone": cfg.TimeZone,
	}).Info("Starting techblog visitors server")

	// Connect stores and wire services
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := container.New(startupCtx, cfg, log)
	startupCancel()
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	router := setupRouter(c)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	resources := &Resources{
		container: c,
		server:    server,
		log:       log,
	}

	// Daily reconciliation runs under a supervisor that restarts it on panic
	if cfg.SyncEnabled {
		supervisorCtx, stop := context.WithCancel(context.Background())
		supervisor := service.NewSupervisor(log.Named("supervisor"))
		supervisor.Add(c.Scheduler)
		resources.stopSupervisor = stop
		resources.supervisorDone = supervisor.ServeBackground(supervisorCtx)

		log.WithFields(map[string]interface{}{
			"hour":   cfg.SyncHour,
			"minute": cfg.SyncMinute,
		}).Info("Daily visitor stats sync enabled")
	} else {
		log.Info("Daily visitor stats sync disabled")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router. Page views are counted
// by the visit beacon and, when a site upstream is configured, on the proxied
// page requests; unrouted requests are never counted otherwise.
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.RequestID())
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(corsConfig, log.Named("cors")))
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		errors.Write(w, errors.NewNotFoundError("Endpoint not found"), middleware.GetRequestID(r.Context()))
	})

	healthHandler := handler.NewHealthHandler(c.GetRedisClient(), c.DB, log.Named("health"))
	visitorHandler := handler.NewVisitorHandler(c.GetVisitorService(), c.GetStatsService(), c.GetSyncService(), log.Named("visitors"))

	r.Get("/health", healthHandler.Check)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		visitorHandler.RegisterRoutes(r, handler.Guards{
			Beacon: []func(http.Handler) http.Handler{
				httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(middleware.KeyByClientIP)),
			},
			Admin: []func(http.Handler) http.Handler{
				httprate.Limit(5, time.Minute, httprate.WithKeyFuncs(middleware.KeyByClientIP)),
				middleware.AdminAuth(cfg.AdminJWTSecret, log.Named("admin")),
			},
		})
	})

	if cfg.SiteUpstream != nil {
		r.With(middleware.VisitorCounter(c.GetVisitorService())).
			Handle("/*", handler.NewSiteProxy(cfg.SiteUpstream, log.Named("site")))
		log.WithField("upstream", cfg.SiteUpstream.String()).Info("Proxying and counting site pages")
	}

	log.Info("Router configured successfully")
	return r
}
