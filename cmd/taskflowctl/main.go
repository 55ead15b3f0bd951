package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "taskflowctl",
		EnableShellCompletion: true,
		Usage:                 "Operate the taskflow workflow database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Sources: cli.EnvVars("TASKFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Env file loaded before reading TASKFLOW_* variables",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("TASKFLOW_LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewMigrateCommand(),
			NewSetupWorkflowCommand(),
			NewProcessAutomaticCommand(),
			NewHistoryCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "taskflowctl: %v\n", err)
		os.Exit(1)
	}
}
