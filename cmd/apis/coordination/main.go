// Command coordination runs the coordination service's HTTP API: the
// LockManager, SagaOrchestrator, EventStore, and CacheManager behind a single
// thin REST surface.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/axiom-software-co/coordination/internal/cache"
	coordhttp "github.com/axiom-software-co/coordination/internal/transport/http"
	"github.com/axiom-software-co/coordination/internal/event"
	"github.com/axiom-software-co/coordination/internal/lock"
	"github.com/axiom-software-co/coordination/internal/saga"
	"github.com/axiom-software-co/coordination/internal/shared/config"
	"github.com/axiom-software-co/coordination/internal/shared/dapr"
)

// CoordinationAPIApplication wires the four core components and their
// backing stores into a single HTTP server.
type CoordinationAPIApplication struct {
	cfg        *config.Config
	db         *sql.DB
	daprClient *dapr.Client
	server     *http.Server
}

func main() {
	app, err := NewCoordinationAPIApplication()
	if err != nil {
		log.Fatalf("failed to create coordination API application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go handleShutdownSignals(cancel)

	if err := app.Start(ctx); err != nil {
		log.Fatalf("coordination API application failed: %v", err)
	}

	log.Println("coordination API application shutdown complete")
}

// NewCoordinationAPIApplication loads configuration and wires every
// dependency, but does not yet start serving traffic.
func NewCoordinationAPIApplication() (*CoordinationAPIApplication, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := newLogger(cfg.Logging)

	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	daprClient, err := dapr.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create dapr client: %w", err)
	}

	lockManager := lock.NewManager(lock.NewRedisStore(redisClient), logger)
	eventStore := event.NewPostgresStore(db)
	cacheManager := cache.NewRedisManager(redisClient)
	dispatcher := saga.NewDaprDispatcher(daprClient.GetClient())

	var sagaOpts []saga.Option
	if cfg.Saga.WorkerPoolSize > 0 {
		sagaOpts = append(sagaOpts,
			saga.WithWorkerPool(float64(cfg.Saga.WorkerPoolSize), cfg.Saga.WorkerPoolSize),
			saga.WithSubmitTimeout(cfg.Saga.SubmitTimeout),
		)
	}
	sagaOrchestrator := saga.NewOrchestrator(saga.NewPostgresStore(db), dispatcher, logger, sagaOpts...)

	router := coordhttp.NewRouter(coordhttp.Handlers{
		Lock:  coordhttp.NewLockHandler(lockManager),
		Saga:  coordhttp.NewSagaHandler(sagaOrchestrator),
		Event: coordhttp.NewEventHandler(eventStore),
		Cache: coordhttp.NewCacheHandler(cacheManager),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &CoordinationAPIApplication{
		cfg:        cfg,
		db:         db,
		daprClient: daprClient,
		server:     server,
	}, nil
}

// Start serves HTTP traffic until ctx is cancelled, then shuts down gracefully.
func (app *CoordinationAPIApplication) Start(ctx context.Context) error {
	log.Printf("starting coordination API on %s", app.server.Addr)

	go func() {
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("coordination API server error: %v", err)
		}
	}()

	<-ctx.Done()
	return app.Shutdown()
}

// Shutdown gracefully drains the server and releases its backing connections.
func (app *CoordinationAPIApplication) Shutdown() error {
	log.Println("shutting down coordination API application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("coordination API server shutdown error: %v", err)
	}

	if err := app.db.Close(); err != nil {
		log.Printf("postgres connection close error: %v", err)
	}

	if err := app.daprClient.Close(); err != nil {
		log.Printf("dapr client close error: %v", err)
	}

	log.Println("coordination API application shut down successfully")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level == "debug" {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

func handleShutdownSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("received shutdown signal: %v", sig)
	cancel()
}
