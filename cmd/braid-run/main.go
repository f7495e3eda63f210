package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/braidflow/braid/pkg/cmd"
	"github.com/braidflow/braid/pkg/log"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

const defaultTimeout = 5 * time.Minute

func main() {
	logger := log.WithModule("run")

	command := &cli.Command{
		Name:                  "braid-run",
		Usage:                 "Execute a workflow file and print the finalized record",
		ArgsUsage:             "<workflow.json>",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Workflow input as a JSON document",
				Value:   "{}",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum time to wait for the execution to finish",
				Value: defaultTimeout,
			},
			&cli.BoolFlag{
				Name:  "branching",
				Usage: "Allow the execution to spawn branches",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Execution storage URL (defaults to a throwaway directory)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			path := command.Args().First()
			if path == "" {
				return errors.New("a workflow file argument is required")
			}

			wf, err := workflow.LoadFile(path)
			if err != nil {
				return err
			}

			var input any
			if err := json.Unmarshal([]byte(command.String("input")), &input); err != nil {
				return fmt.Errorf("parse input JSON: %w", err)
			}

			registry, err := cmd.NewRegistry(ctx, logger)
			if err != nil {
				return err
			}

			databaseURL := command.String("database-url")
			if databaseURL == "" {
				dir, err := os.MkdirTemp("", "braid-run-")
				if err != nil {
					return err
				}

				defer func() { _ = os.RemoveAll(dir) }()

				databaseURL = dir
			}

			store, err := cmd.NewExecutionStorage(ctx, logger, databaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close execution storage", "error", err)
				}
			}()

			runner := NewRunner(logger, store, registry)

			final, err := runner.Run(ctx, wf, RunOptions{
				Input:           input,
				Timeout:         command.Duration("timeout"),
				EnableBranching: command.Bool("branching"),
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			if err := encoder.Encode(final); err != nil {
				return err
			}

			if final.Status != models.ExecutionStatusCompleted {
				return fmt.Errorf("execution '%s' finished with status %s", final.ID, final.Status)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("braid-run failed", "error", err)
		os.Exit(1)
	}
}
