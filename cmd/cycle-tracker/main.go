package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/cycle-tracker/internal/api/http"
	"github.com/i474232898/cycle-tracker/internal/config"
	"github.com/i474232898/cycle-tracker/internal/cycle"
	"github.com/i474232898/cycle-tracker/internal/cycle/sources"
	"github.com/i474232898/cycle-tracker/internal/logger"
	"github.com/i474232898/cycle-tracker/internal/scheduler"
	"github.com/i474232898/cycle-tracker/internal/session"
	"github.com/i474232898/cycle-tracker/internal/store"
)

// backend bundles what the selected store driver provides.
type backend struct {
	resolver cycle.StoreResolver
	users    cycle.UserLister
	sessions httpapi.Forgetter
	db       *sql.DB
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel, cfg.Environment)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	if be.db != nil {
		defer be.db.Close()
	}

	opts := []cycle.Option{cycle.WithSummaryTTL(cfg.SummaryCacheTTL)}
	if be.users != nil {
		opts = append(opts, cycle.WithUserLister(be.users))
	}
	if cfg.PolicyFile != "" {
		pc, err := config.LoadPolicy(cfg.PolicyFile)
		if err != nil {
			log.Fatalf("failed to load policy: %v", err)
		}
		opts = append(opts, cycle.WithPolicy(pc.Policy()))
	}

	// Core service deriving cycles and predictions from the store.
	service := cycle.NewService(be.resolver, opts...)

	if cfg.PolicyFile != "" {
		go func() {
			err := config.WatchPolicy(ctx, cfg.PolicyFile, func(pc *config.PredictionConfig) {
				service.SetPolicy(pc.Policy())
			})
			if err != nil {
				log.WithError(err).Error("policy watcher stopped")
			}
		}()
	}

	// Daily rollover so open cycles and predictions follow the calendar.
	sched := scheduler.New(cfg.RolloverAt, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "cycle-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "cycle-tracker",
			"store":   cfg.StoreDriver,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, be.sessions)

	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}

func openBackend(ctx context.Context, cfg *config.AppConfig) (backend, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := store.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return backend{}, err
		}
		if err := store.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return backend{}, err
		}
		pg := store.NewPostgresStore(db)
		return backend{resolver: cycle.StaticResolver(pg), users: pg, db: db}, nil

	case config.DriverRemote:
		// Shared HTTP client and breaker for outbound backend calls.
		httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
		breaker := sources.NewBreaker("backend")
		registry := session.NewRegistry(func(sessionKey string) (cycle.Store, error) {
			return sources.NewBackend(sources.BackendConfig{
				BaseURL:  cfg.BackendURL,
				Client:   httpClient,
				PageSize: cfg.BackendPageSize,
				Breaker:  breaker,
			}, sessionKey), nil
		}, cfg.SessionTTL)
		return backend{resolver: registry, sessions: registry}, nil

	default:
		mem := store.NewMemoryStore(cfg.StoreMaxAge)
		return backend{resolver: cycle.StaticResolver(mem), users: mem}, nil
	}
}
