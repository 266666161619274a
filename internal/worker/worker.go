package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/gatehouse/internal/metrics"
)

// Runner manages periodic background maintenance tasks.
type Runner struct {
	tasks  []Task
	config Config
	logger *slog.Logger

	// Synchronization
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Runner with the given configuration.
// The runner must be started with Start() and stopped with Stop().
func New(config Config, logger *slog.Logger) (*Runner, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Runner{
		config: config,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Register adds a task to the runner. Call this before Start().
func (r *Runner) Register(task Task) {
	r.tasks = append(r.tasks, task)
	r.logger.Debug("Registered maintenance task", "task", task.Name(), "interval", task.Interval())
}

// Start launches one goroutine per registered task. Each task runs once
// immediately and then on its own interval.
func (r *Runner) Start(ctx context.Context) {
	for _, task := range r.tasks {
		r.wg.Add(1)
		go r.runTask(ctx, task)
	}

	r.logger.Info("Maintenance runner started", "tasks", len(r.tasks))
}

// Stop signals all tasks to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (r *Runner) Stop() {
	r.logger.Info("Stopping maintenance runner...")
	close(r.stopCh)

	// Wait for tasks with timeout
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Maintenance runner stopped gracefully")
	case <-time.After(r.config.ShutdownTimeout):
		r.logger.Warn("Maintenance runner shutdown timeout exceeded, some tasks may still be running")
	}
}

// runTask is the loop for a single task goroutine.
// It runs the task until stopCh is closed or the context is canceled.
func (r *Runner) runTask(ctx context.Context, task Task) {
	defer r.wg.Done()

	logger := r.logger.With("task", task.Name())
	logger.Debug("Task loop started")

	// Run once at startup so restarts don't delay maintenance by a full interval
	r.executeTask(ctx, task, logger)

	ticker := time.NewTicker(task.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			logger.Debug("Task loop stopping")
			return
		case <-ctx.Done():
			logger.Debug("Task loop canceled")
			return
		case <-ticker.C:
			r.executeTask(ctx, task, logger)
		}
	}
}

// executeTask runs a single iteration of a task with the configured timeout
// and records its outcome.
func (r *Runner) executeTask(ctx context.Context, task Task, logger *slog.Logger) {
	taskCtx, cancel := context.WithTimeout(ctx, r.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	if err := task.Run(taskCtx); err != nil {
		metrics.TaskFailed(task.Name())
		logger.Error("Task failed", "error", err, "duration", time.Since(start))
		return
	}

	metrics.TaskCompleted(task.Name(), time.Since(start))
	logger.Debug("Task completed", "duration", time.Since(start))
}
