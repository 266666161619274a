package worker

import (
	"context"
	"time"
)

// Task defines the interface for a periodic maintenance task.
// Each task decides its own schedule via Interval.
type Task interface {
	// Name returns the task identifier used in logs and metrics.
	Name() string

	// Interval returns how often the task should run.
	Interval() time.Duration

	// Run executes one iteration of the task. The context carries the
	// configured task timeout.
	Run(ctx context.Context) error
}
