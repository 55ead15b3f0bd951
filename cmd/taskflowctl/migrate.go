package main

import (
	"context"
	"fmt"
	"sort"

	cli "github.com/urfave/cli/v3"

	"github.com/garyjia/taskflow/internal/container"
	"github.com/garyjia/taskflow/pkg/database"
)

func NewMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Migrations directory (embedded migrations when empty)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := loadConfig(command)
			if err != nil {
				return err
			}

			logger, err := newLogger(command)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, err := database.New(database.Config{
				Path:            cfg.Database.Path,
				MaxOpenConns:    cfg.Database.MaxOpenConns,
				MaxIdleConns:    cfg.Database.MaxIdleConns,
				ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
				BusyTimeout:     cfg.Database.BusyTimeout,
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			dir := command.String("dir")
			if dir == "" {
				dir = cfg.Database.MigrationsDir
			}
			if err := container.Migrate(db, dir, logger); err != nil {
				return err
			}

			applied, err := database.NewMigrator(db, logger).AppliedVersions()
			if err != nil {
				return err
			}
			versions := make([]int, 0, len(applied))
			for v := range applied {
				versions = append(versions, v)
			}
			sort.Ints(versions)

			fmt.Printf("Database: %s\n", cfg.Database.Path)
			fmt.Printf("Applied migrations: %v\n", versions)
			return nil
		},
	}
}
