// Package scheduler submits workflow executions on cron schedules. Each
// schedule runs its workflow to completion before the next tick fires;
// overlapping ticks are skipped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/braidflow/braid/pkg/execution"
	"github.com/braidflow/braid/pkg/models"
)

type Scheduler struct {
	manager *execution.Manager
	logger  *slog.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// Entry describes one registered schedule.
type Entry struct {
	ID         string    `json:"id"`
	Spec       string    `json:"spec"`
	WorkflowID string    `json:"workflow_id"`
	Next       time.Time `json:"next"`
	Prev       time.Time `json:"prev,omitempty"`
}

func NewScheduler(manager *execution.Manager, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "scheduler")
	cronLogger := &slogCronLogger{logger: logger}

	return &Scheduler{
		manager: manager,
		logger:  logger,
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		entries: make(map[string]cron.EntryID),
	}
}

// Schedule registers a workflow to run on the given cron spec. The standard
// five-field syntax and @every descriptors are accepted. The returned id
// identifies the schedule for Remove and Entries.
func (s *Scheduler) Schedule(ctx context.Context, spec string, workflow *models.Workflow, input any, opts execution.ExecuteOptions) (string, error) {
	if workflow == nil {
		return "", fmt.Errorf("schedule '%s': workflow is required", spec)
	}

	scheduleID := uuid.New().String()

	if opts.Type == "" {
		opts.Type = "scheduled"
	}

	// Every tick is its own execution.
	opts.ExecutionID = ""

	job := &scheduleJob{
		scheduler:  s,
		scheduleID: scheduleID,
		entrySpec:  spec,
		workflow:   workflow,
		input:      input,
		opts:       opts,
	}

	entryID, err := s.cron.AddJob(spec, job)
	if err != nil {
		return "", fmt.Errorf("schedule workflow '%s' with spec '%s': %w", workflow.ID, spec, err)
	}

	s.mu.Lock()
	s.entries[scheduleID] = entryID
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Registered schedule",
		"schedule_id", scheduleID,
		"workflow_id", workflow.ID,
		"spec", spec)

	return scheduleID, nil
}

// Remove drops a schedule. Returns false when the id is unknown.
func (s *Scheduler) Remove(scheduleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[scheduleID]
	if !ok {
		return false
	}

	s.cron.Remove(entryID)
	delete(s.entries, scheduleID)

	return true
}

// Entries returns a snapshot of the registered schedules.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.entries))

	for scheduleID, entryID := range s.entries {
		cronEntry := s.cron.Entry(entryID)
		if !cronEntry.Valid() {
			continue
		}

		entry := Entry{
			ID:   scheduleID,
			Next: cronEntry.Next,
			Prev: cronEntry.Prev,
		}

		if job, ok := cronEntry.Job.(*scheduleJob); ok {
			entry.Spec = job.entrySpec
			entry.WorkflowID = job.workflow.ID
		}

		entries = append(entries, entry)
	}

	return entries
}

// Start begins firing schedules on their own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for in-flight runs to finish, up to the
// context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scheduleJob runs one workflow submission per tick and blocks until the
// execution settles, so SkipIfStillRunning sees the run as busy.
type scheduleJob struct {
	scheduler  *Scheduler
	scheduleID string
	entrySpec  string
	workflow   *models.Workflow
	input      any
	opts       execution.ExecuteOptions
}

func (j *scheduleJob) Run() {
	ctx := context.Background()
	logger := j.scheduler.logger.With(
		"schedule_id", j.scheduleID,
		"workflow_id", j.workflow.ID)

	handle, err := j.scheduler.manager.ExecuteWorkflow(ctx, j.workflow, j.input, j.opts)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to submit scheduled execution", "error", err)

		return
	}

	record, err := handle.Wait(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Scheduled execution lost", "execution_id", handle.ExecutionID(), "error", err)

		return
	}

	logger.InfoContext(ctx, "Scheduled execution finished",
		"execution_id", record.ID,
		"status", record.Status)
}

// slogCronLogger adapts slog to the cron logger interface. Skipped ticks
// surface here as info logs.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l *slogCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *slogCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
