// Package main provides a one-shot workflow runner.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/braidflow/braid/pkg/compiler"
	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/monitor"
	"github.com/braidflow/braid/pkg/registry"
	"github.com/braidflow/braid/pkg/storage"
	"github.com/braidflow/braid/pkg/stream"
)

// cancelGrace bounds how long a timed-out run waits for the soft cancel to
// finalize the record.
const cancelGrace = 10 * time.Second

type RunOptions struct {
	Input           any
	Timeout         time.Duration
	EnableBranching bool
}

// Runner executes a single workflow to completion against its own manager.
type Runner struct {
	logger   *slog.Logger
	storage  storage.ExecutionStorage
	registry *registry.Registry
}

func NewRunner(logger *slog.Logger, store storage.ExecutionStorage, reg *registry.Registry) *Runner {
	return &Runner{
		logger:   logger,
		storage:  store,
		registry: reg,
	}
}

// Run submits the workflow and blocks until it finalizes. When the timeout
// elapses first, the execution is soft-canceled and the finalized record is
// still returned so callers can inspect how far it got.
func (r *Runner) Run(ctx context.Context, wf *models.Workflow, opts RunOptions) (*models.ExecutionRecord, error) {
	comp := compiler.NewCompiler(r.registry, r.logger)
	manager := execution.NewManager(
		comp,
		stream.NewEngine(stream.WithLogger(r.logger)),
		r.storage,
		r.logger,
		execution.WithMonitor(monitor.NewMonitor(r.logger)),
	)

	handle, err := manager.ExecuteWorkflow(ctx, wf, opts.Input, execution.ExecuteOptions{
		Type:            "cli",
		EnableBranching: opts.EnableBranching,
	})
	if err != nil {
		return nil, err
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc

		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	final, err := handle.Wait(waitCtx)
	if err == nil {
		return final, nil
	}

	r.logger.WarnContext(ctx, "Execution did not finish in time, requesting cancellation",
		"execution_id", handle.ExecutionID(), "timeout", opts.Timeout)

	detached := context.WithoutCancel(ctx)
	manager.CancelExecution(detached, handle.ExecutionID())

	graceCtx, cancel := context.WithTimeout(detached, cancelGrace)
	defer cancel()

	final, waitErr := handle.Wait(graceCtx)
	if waitErr != nil {
		return nil, fmt.Errorf("execution '%s' did not finalize after cancellation: %w", handle.ExecutionID(), err)
	}

	return final, nil
}
