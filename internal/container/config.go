// Package container provides dependency injection and lifecycle management
// for the taskflow service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Server configuration
	Server ServerConfig

	// Workflow engine and automatic processing configuration
	Workflow WorkflowConfig

	// Tracing configuration
	Tracing TracingConfig

	// Metrics configuration
	Metrics MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the SQLite lock
	BusyTimeout time.Duration

	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string

	// AutoMigrate applies pending migrations on start
	AutoMigrate bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// WorkflowConfig holds transition engine settings.
type WorkflowConfig struct {
	// MaxConflictRetries bounds re-validation after a concurrent update
	MaxConflictRetries int

	// AutomaticEnabled turns the periodic automatic pass on
	AutomaticEnabled bool

	// AutomaticSchedule is the cron expression of the periodic pass
	AutomaticSchedule string

	// PassTimeout bounds one automatic pass
	PassTimeout time.Duration
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	Insecure    bool
	ServiceName string
	SampleRatio float64
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/taskflow.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			AutoMigrate:     true,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Workflow: WorkflowConfig{
			MaxConflictRetries: 3,
			AutomaticEnabled:   true,
			AutomaticSchedule:  "@every 5m",
			PassTimeout:        2 * time.Minute,
		},
		Tracing: TracingConfig{
			ServiceName: "taskflow",
			SampleRatio: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Workflow.MaxConflictRetries < 0 {
		return fmt.Errorf("workflow.max_conflict_retries must not be negative")
	}
	if c.Workflow.AutomaticEnabled && c.Workflow.AutomaticSchedule == "" {
		return fmt.Errorf("workflow.automatic_schedule is required when automatic processing is enabled")
	}
	if c.Tracing.Enabled && c.Tracing.ServiceName == "" {
		return fmt.Errorf("tracing.service_name is required when tracing is enabled")
	}
	return nil
}
