package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	before time.Time
	purged int64
	err    error
}

func (f *fakePurger) PurgeExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.purged, f.err
}

type fakeCleaner struct {
	olderThan time.Duration
	err       error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	f.olderThan = olderThan
	return f.err
}

func testMaintenance(purger *fakePurger, cleaner *fakeCleaner) *Maintenance {
	return &Maintenance{
		Tokens:    purger,
		Audit:     cleaner,
		Retention: 90 * 24 * time.Hour,
		Logger:    slog.New(slog.DiscardHandler),
	}
}

func TestHandleTokenPurgeUsesCurrentCutoff(t *testing.T) {
	purger := &fakePurger{purged: 42}
	m := testMaintenance(purger, &fakeCleaner{})

	start := time.Now().UTC()
	require.NoError(t, m.HandleTokenPurge(context.Background(), NewTokenPurgeTask()))
	require.False(t, purger.before.Before(start))
	require.False(t, purger.before.After(time.Now().UTC()))
}

func TestHandleTokenPurgePropagatesStoreError(t *testing.T) {
	boom := errors.New("pg down")
	m := testMaintenance(&fakePurger{err: boom}, &fakeCleaner{})

	err := m.HandleTokenPurge(context.Background(), NewTokenPurgeTask())
	require.ErrorIs(t, err, boom)
}

func TestHandleAuditCleanupPassesRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	m := testMaintenance(&fakePurger{}, cleaner)

	require.NoError(t, m.HandleAuditCleanup(context.Background(), NewAuditCleanupTask()))
	require.Equal(t, 90*24*time.Hour, cleaner.olderThan)
}

func TestHandleAuditCleanupPropagatesError(t *testing.T) {
	boom := errors.New("pg down")
	m := testMaintenance(&fakePurger{}, &fakeCleaner{err: boom})

	err := m.HandleAuditCleanup(context.Background(), NewAuditCleanupTask())
	require.ErrorIs(t, err, boom)
}
