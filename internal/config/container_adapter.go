package config

import (
	"github.com/garyjia/taskflow/internal/container"
	"github.com/garyjia/taskflow/pkg/utils"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Server: container.ServerConfig{
			Host:            c.Server.Host,
			Port:            c.Server.Port,
			ReadTimeout:     c.Server.ReadTimeout,
			WriteTimeout:    c.Server.WriteTimeout,
			ShutdownTimeout: c.Server.ShutdownTimeout,
		},
		Workflow: container.WorkflowConfig{
			MaxConflictRetries: c.Workflow.MaxConflictRetries,
			AutomaticEnabled:   c.Workflow.AutomaticEnabled,
			AutomaticSchedule:  c.Workflow.AutomaticSchedule,
			PassTimeout:        c.Workflow.PassTimeout,
		},
		Tracing: container.TracingConfig{
			Enabled:     c.Tracing.Enabled,
			Endpoint:    c.Tracing.Endpoint,
			Insecure:    c.Tracing.Insecure,
			ServiceName: c.Tracing.ServiceName,
			SampleRatio: c.Tracing.SampleRatio,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
			Path:    c.Metrics.Path,
		},
	}
}

// ToLoggerConfig converts the logger section for utils.NewLogger
func (c *Config) ToLoggerConfig() utils.LoggerConfig {
	return utils.LoggerConfig{
		Level:      c.Logger.Level,
		OutputPath: c.Logger.OutputPath,
		Format:     c.Logger.Format,
	}
}
