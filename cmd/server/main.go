package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/taskflow/internal/config"
	"github.com/garyjia/taskflow/internal/container"
	"github.com/garyjia/taskflow/pkg/utils"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := os.Getenv("TASKFLOW_CONFIG")
	if configPath == "" {
		if _, err := os.Stat("configs/config.yaml"); err == nil {
			configPath = "configs/config.yaml"
		}
	}

	// Load configuration
	cfg, err := config.Load(configPath, ".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	loggerCfg := cfg.ToLoggerConfig()
	loggerCfg.Service = "taskflow"
	logger, err := utils.NewLogger(loggerCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting taskflow workflow service",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port))

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger, version)
	if err != nil {
		return err
	}

	if err := c.Start(ctx); err != nil {
		return errors.Join(err, c.Close())
	}

	// Blocks until a signal arrives or the listener fails
	serveErr := c.HTTPServer().Start(ctx)

	logger.Info("Shutting down")
	return errors.Join(serveErr, c.Close())
}
