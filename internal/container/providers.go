package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/taskflow/internal/application/dispatcher"
	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/application/service"
	"github.com/garyjia/taskflow/internal/application/workflow"
	"github.com/garyjia/taskflow/internal/infrastructure/metrics"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/taskflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/taskflow/internal/infrastructure/tracing"
	"github.com/garyjia/taskflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/taskflow/internal/interfaces/http"
	"github.com/garyjia/taskflow/migrations"
	"github.com/garyjia/taskflow/pkg/database"
)

// Tracer names of the engine and the event dispatcher
const (
	tracerName           = "github.com/garyjia/taskflow/workflow"
	dispatcherTracerName = "github.com/garyjia/taskflow/dispatcher"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// ProvideDatabase opens the SQLite database and, when configured, applies
// pending migrations from MigrationsDir or the embedded set.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := Migrate(db, cfg.MigrationsDir, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// Migrate applies pending migrations from dir, or the embedded set if dir is empty
func Migrate(db *database.DB, dir string, logger *zap.Logger) error {
	migrator := database.NewMigrator(db, logger)

	var err error
	if dir != "" {
		err = migrator.RunMigrations(dir)
	} else {
		err = migrator.RunMigrationsFS(migrations.FS)
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// ProvideStore creates all repositories over the transaction manager.
func ProvideStore(db *sqlite.DB, logger *zap.Logger) (port.Store, error) {
	if db == nil {
		return port.Store{}, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return port.Store{}, fmt.Errorf("logger is required")
	}
	return repository.NewStore(db, logger), nil
}

// ProvideTracing creates the tracer provider; a disabled config yields a no-op provider.
func ProvideTracing(ctx context.Context, cfg *TracingConfig, version string) (*tracing.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("tracing config is required")
	}
	return tracing.NewProvider(ctx, tracing.Config{
		Enabled:     cfg.Enabled,
		Endpoint:    cfg.Endpoint,
		Insecure:    cfg.Insecure,
		ServiceName: cfg.ServiceName,
		Version:     version,
		SampleRatio: cfg.SampleRatio,
	})
}

// ProvideDispatcher creates the event dispatcher. Handlers run in spans of
// the tracing provider when one is given.
func ProvideDispatcher(logger *zap.Logger, tp *tracing.Provider) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{
		dispatcher.WithLogger(newLoggerAdapter(logger.Named("dispatcher"))),
	}
	if tp != nil {
		opts = append(opts, dispatcher.WithTracer(tp.Tracer(dispatcherTracerName)))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ProvideMetrics creates the Prometheus recorder and subscribes it to
// workflow events. Returns nil when metrics are disabled.
func ProvideMetrics(cfg *MetricsConfig, disp dispatcher.Dispatcher) *metrics.Recorder {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	recorder := metrics.NewRecorder()
	recorder.Subscribe(disp)
	return recorder
}

// WorkflowDeps holds dependencies for the workflow engine and service.
type WorkflowDeps struct {
	Store      port.Store
	Dispatcher dispatcher.Dispatcher
	Tracing    *tracing.Provider
	Config     *WorkflowConfig
	Logger     *zap.Logger
}

// ProvideWorkflow creates the transition engine and the boundary service.
func ProvideWorkflow(deps *WorkflowDeps) (workflow.Engine, service.WorkflowService, error) {
	if deps == nil || deps.Logger == nil {
		return nil, nil, fmt.Errorf("workflow dependencies are required")
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(newLoggerAdapter(deps.Logger.Named("workflow"))),
	}
	if deps.Tracing != nil {
		opts = append(opts, workflow.WithTracer(deps.Tracing.Tracer(tracerName)))
	}
	if deps.Config != nil {
		opts = append(opts, workflow.WithMaxConflictRetries(deps.Config.MaxConflictRetries))
	}

	engine := workflow.NewEngine(deps.Store, opts...)
	svc := service.NewWorkflowService(engine, deps.Store, newLoggerAdapter(deps.Logger.Named("service")))
	return engine, svc, nil
}

// ProvideWorkers creates the worker manager with the automatic transition
// worker registered when enabled.
func ProvideWorkers(cfg *WorkflowConfig, engine workflow.Engine, logger *zap.Logger) (*worker.WorkerManager, *worker.AutomaticTransitionWorker, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("workflow config is required")
	}

	manager := worker.NewWorkerManager(logger.Named("workers"))
	if !cfg.AutomaticEnabled {
		return manager, nil, nil
	}

	if err := worker.ValidateSchedule(cfg.AutomaticSchedule); err != nil {
		return nil, nil, err
	}

	automatic := worker.NewAutomaticTransitionWorker(worker.AutomaticWorkerConfig{
		Schedule:    cfg.AutomaticSchedule,
		PassTimeout: cfg.PassTimeout,
	}, engine, logger.Named("automatic"))
	manager.Register(automatic)

	return manager, automatic, nil
}

// ProvideHTTPServer creates the HTTP adapter.
func ProvideHTTPServer(cfg *Config, svc service.WorkflowService, recorder *metrics.Recorder, version string, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
		Version:         version,
	}, svc, recorder, newLoggerAdapter(logger.Named("http")))
}
