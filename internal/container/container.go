package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/taskflow/internal/application/dispatcher"
	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/application/service"
	"github.com/garyjia/taskflow/internal/application/workflow"
	"github.com/garyjia/taskflow/internal/infrastructure/metrics"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/taskflow/internal/infrastructure/tracing"
	"github.com/garyjia/taskflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/taskflow/internal/interfaces/http"
	"github.com/garyjia/taskflow/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config  *Config
	logger  *zap.Logger
	version string

	// Infrastructure - Observability
	tracing  *tracing.Provider
	recorder *metrics.Recorder

	// Infrastructure - Data
	database *database.DB
	db       *sqlite.DB
	store    port.Store

	// Application
	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	service    service.WorkflowService

	// Workers
	workers   *worker.WorkerManager
	automatic *worker.AutomaticTransitionWorker

	// Interfaces
	server *httpapi.Server

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, version string) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config:  cfg,
		logger:  logger,
		version: version,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Tracing
// 2. Database and repositories
// 3. Event dispatcher and metrics
// 4. Workflow engine and service
// 5. Workers
// 6. HTTP server (constructed, not listening)
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	tp, err := ProvideTracing(c.ctx, &c.config.Tracing, c.version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.tracing = tp
	c.logger.Info("Tracing initialized", zap.Bool("enabled", tp.Enabled()))

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if c.dispatcher, err = ProvideDispatcher(c.logger, c.tracing); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	c.recorder = ProvideMetrics(&c.config.Metrics, c.dispatcher)
	c.logger.Info("Dispatcher initialized", zap.Bool("metrics", c.recorder != nil))

	c.engine, c.service, err = ProvideWorkflow(&WorkflowDeps{
		Store:      c.store,
		Dispatcher: c.dispatcher,
		Tracing:    c.tracing,
		Config:     &c.config.Workflow,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize workflow: %w", err)
	}
	c.logger.Info("Workflow engine initialized")

	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.server = ProvideHTTPServer(c.config, c.service, c.recorder, c.version, c.logger)

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Drains async event handlers
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	if c.tracing != nil {
		if err := c.tracing.Shutdown(context.Background()); err != nil {
			c.logger.Error("Failed to shut down tracing", zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return errors.Join(errs...)
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.database.Ping(); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.workers == nil {
		set("workers", ComponentHealth{Message: "not initialized"})
	} else {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		})
	}

	if c.automatic != nil {
		stats := c.automatic.Stats()
		set("automatic_transitions", ComponentHealth{
			Healthy: stats.LastError == "",
			Message: stats.LastError,
		})
	}

	if c.dispatcher == nil {
		set("dispatcher", ComponentHealth{Message: "not initialized"})
	} else {
		set("dispatcher", ComponentHealth{Healthy: true})
	}

	return status
}

// initDatabase opens the database and builds the repositories.
func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = bundle.DB
	c.db = bundle.TransactionMgr

	store, err := ProvideStore(c.db, c.logger)
	if err != nil {
		_ = c.database.Close()
		return err
	}

	c.store = store
	return nil
}

// initWorkers creates and starts the background workers.
func (c *Container) initWorkers() error {
	workers, automatic, err := ProvideWorkers(&c.config.Workflow, c.engine, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers
	c.automatic = automatic

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Store returns the repositories.
func (c *Container) Store() port.Store {
	return c.store
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.Engine {
	return c.engine
}

// Service returns the workflow service.
func (c *Container) Service() service.WorkflowService {
	return c.service
}

// Metrics returns the Prometheus recorder, nil when metrics are disabled.
func (c *Container) Metrics() *metrics.Recorder {
	return c.recorder
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// HTTPServer returns the HTTP adapter.
func (c *Container) HTTPServer() *httpapi.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}
