package worker

import (
	"context"
	"log/slog"
	"time"
)

// DefaultCleanupInterval is how often expired sessions are swept when no
// interval is configured.
const DefaultCleanupInterval = time.Hour

// MinCleanupInterval bounds how aggressively the sweep can be scheduled.
const MinCleanupInterval = time.Minute

// SessionCleaner deletes expired sessions and reports how many were removed.
// service.UserService satisfies this.
type SessionCleaner interface {
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// SessionCleanupTask periodically removes expired sessions from storage.
// Expired sessions are already rejected at validation time; the sweep just
// keeps the table from growing without bound.
type SessionCleanupTask struct {
	cleaner  SessionCleaner
	interval time.Duration
	logger   *slog.Logger
}

// NewSessionCleanupTask creates the cleanup task. A zero interval means
// DefaultCleanupInterval; shorter intervals are raised to MinCleanupInterval.
func NewSessionCleanupTask(cleaner SessionCleaner, interval time.Duration, logger *slog.Logger) *SessionCleanupTask {
	if interval == 0 {
		interval = DefaultCleanupInterval
	}
	if interval < MinCleanupInterval {
		interval = MinCleanupInterval
	}

	return &SessionCleanupTask{
		cleaner:  cleaner,
		interval: interval,
		logger:   logger,
	}
}

// Name implements Task.
func (t *SessionCleanupTask) Name() string {
	return "session_cleanup"
}

// Interval implements Task.
func (t *SessionCleanupTask) Interval() time.Duration {
	return t.interval
}

// Run implements Task.
func (t *SessionCleanupTask) Run(ctx context.Context) error {
	count, err := t.cleaner.DeleteExpiredSessions(ctx)
	if err != nil {
		return err
	}

	if count > 0 {
		t.logger.Info("session cleanup swept expired sessions", "count", count)
	}

	return nil
}
