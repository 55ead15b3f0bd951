package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/garyjia/taskflow/internal/config"
	"github.com/garyjia/taskflow/internal/container"
	"github.com/garyjia/taskflow/pkg/utils"
)

// loadConfig reads configuration using the root command's flags
func loadConfig(command *cli.Command) (*config.Config, error) {
	return config.Load(command.String("config"), command.String("env-file"))
}

// newLogger builds a console logger on stderr so command output stays clean
func newLogger(command *cli.Command) (*zap.Logger, error) {
	return utils.NewLogger(utils.LoggerConfig{
		Level:      command.String("log-level"),
		OutputPath: "stderr",
		Format:     "console",
		Service:    "taskflowctl",
	})
}

// withContainer starts a container without the scheduler or metrics, runs fn
// and closes the container
func withContainer(ctx context.Context, command *cli.Command, fn func(*container.Container) error) error {
	cfg, err := loadConfig(command)
	if err != nil {
		return err
	}

	logger, err := newLogger(command)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ccfg := cfg.ToContainerConfig()
	ccfg.Workflow.AutomaticEnabled = false
	ccfg.Metrics.Enabled = false

	c, err := container.NewContainer(ccfg, logger, "taskflowctl")
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	if err := c.Start(ctx); err != nil {
		return err
	}

	return fn(c)
}
