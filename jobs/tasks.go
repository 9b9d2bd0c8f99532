// Package jobs runs background maintenance over Asynq: purging expired
// token records and trimming the audit trail.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTokenPurge removes expired token records from storage.
	TaskTokenPurge = "tokens:purge"
	// TaskAuditCleanup trims audit entries past the retention window.
	TaskAuditCleanup = "audit:cleanup"
)

// NewTokenPurgeTask constructs the purge task. No payload: the cutoff is
// always "now" at execution time.
func NewTokenPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskTokenPurge, nil)
}

// NewAuditCleanupTask constructs the audit retention task.
func NewAuditCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskAuditCleanup, nil)
}

// TokenPurger removes token records that expired before the cutoff.
type TokenPurger interface {
	PurgeExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// AuditCleaner removes audit entries older than the retention period.
type AuditCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Maintenance bundles the dependencies of the periodic maintenance tasks.
type Maintenance struct {
	Tokens    TokenPurger
	Audit     AuditCleaner
	Retention time.Duration
	Logger    *slog.Logger
}

// HandleTokenPurge processes TaskTokenPurge. Revoked-but-unexpired records
// are kept; only records past their own expiry are dropped.
func (m *Maintenance) HandleTokenPurge(ctx context.Context, t *asynq.Task) error {
	purged, err := m.Tokens.PurgeExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		m.Logger.Error("token purge", slog.Any("error", err))
		return err
	}
	m.Logger.Info("token purge complete", slog.Int64("purged", purged))
	return nil
}

// HandleAuditCleanup processes TaskAuditCleanup.
func (m *Maintenance) HandleAuditCleanup(ctx context.Context, t *asynq.Task) error {
	if err := m.Audit.Cleanup(ctx, m.Retention); err != nil {
		m.Logger.Error("audit cleanup", slog.Any("error", err))
		return err
	}
	m.Logger.Info("audit cleanup complete", slog.Duration("retention", m.Retention))
	return nil
}
