package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/garyjia/taskflow/internal/application/port"
	"github.com/garyjia/taskflow/internal/application/workflow"
	"github.com/garyjia/taskflow/internal/container"
)

func NewSetupWorkflowCommand() *cli.Command {
	return &cli.Command{
		Name:  "setup-workflow",
		Usage: "Create the default states and transitions for a project",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "project", Usage: "Project id", Required: true},
			&cli.StringFlag{Name: "user", Usage: "Acting user id (must own the project)", Required: true},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return withContainer(ctx, command, func(c *container.Container) error {
				view, err := c.Service().SetupDefaultWorkflow(ctx, command.Int64("project"), command.String("user"))
				if err != nil {
					return err
				}

				fmt.Printf("Project %d workflow\n", command.Int64("project"))
				fmt.Println("States:")
				for _, s := range view.States {
					fmt.Printf("  [%d] %-12s %-10s %s\n", s.ID, s.Name, s.Type, s.Color)
				}
				fmt.Println("Transitions:")
				for _, t := range view.Transitions {
					fmt.Printf("  [%d] %-16s %s -> %s\n", t.ID, t.Name, t.FromStateName, t.ToStateName)
				}
				return nil
			})
		},
	}
}

func NewProcessAutomaticCommand() *cli.Command {
	return &cli.Command{
		Name:    "process-automatic",
		Aliases: []string{"auto"},
		Usage:   "Run one automatic transition pass",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "project", Usage: "Limit the pass to one project"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			var projectID *int64
			if command.IsSet("project") {
				id := command.Int64("project")
				projectID = &id
			}

			return withContainer(ctx, command, func(c *container.Container) error {
				resp, err := c.Service().ProcessAutomaticTransitions(ctx, projectID)
				if err != nil {
					return err
				}

				fmt.Printf("Processed tasks: %d\n", resp.ProcessedCount)
				for _, t := range resp.ProcessedTasks {
					fmt.Printf("  - #%d %s\n", t.ID, t.Title)
				}
				return nil
			})
		},
	}
}

func NewHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print the audit history of a task",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "task", Usage: "Task id", Required: true},
			&cli.StringFlag{Name: "user", Usage: "Acting user id (owner or assignee)", Required: true},
			&cli.StringFlag{Name: "order", Usage: "asc or desc", Value: "asc"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			order, err := port.ParseSortOrder(command.String("order"), workflow.Ascending)
			if err != nil {
				return err
			}

			return withContainer(ctx, command, func(c *container.Container) error {
				entries, err := c.Service().GetAuditHistory(ctx, command.Int64("task"), command.String("user"), order)
				if err != nil {
					return err
				}

				if len(entries) == 0 {
					fmt.Println("No transitions recorded")
					return nil
				}
				for _, e := range entries {
					fmt.Printf("%s  %s -> %s  by %s",
						e.TransitionedAt.Format("2006-01-02 15:04:05"), e.FromStateName, e.ToStateName, e.UserDisplayName)
					if e.Comment != "" {
						fmt.Printf("  %q", e.Comment)
					}
					fmt.Println()
				}
				return nil
			})
		},
	}
}
