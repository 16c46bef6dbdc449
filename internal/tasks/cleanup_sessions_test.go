package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCleaner struct {
	retention time.Duration
	deleted   int64
	err       error
	calls     int
}

func (f *fakeCleaner) DeleteOldSessions(retention time.Duration) (int64, error) {
	f.calls++
	f.retention = retention
	return f.deleted, f.err
}

func TestCleanupSessionsProcessor(t *testing.T) {
	cleaner := &fakeCleaner{deleted: 4}
	processor := CleanupSessionsProcessor(cleaner)

	err := processor(context.Background(), CleanupSessionsTask{RetentionDays: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, cleaner.calls)
	assert.Equal(t, 7*24*time.Hour, cleaner.retention)
}

func TestCleanupSessionsProcessor_DefaultRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	processor := CleanupSessionsProcessor(cleaner)

	require.NoError(t, processor(context.Background(), CleanupSessionsTask{}))
	assert.Equal(t, 30*24*time.Hour, cleaner.retention)
}

func TestCleanupSessionsProcessor_Errors(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("locked")}
	processor := CleanupSessionsProcessor(cleaner)

	err := processor(context.Background(), CleanupSessionsTask{RetentionDays: 7})
	assert.Error(t, err)

	err = CleanupSessionsProcessor(nil)(context.Background(), CleanupSessionsTask{})
	assert.Error(t, err)
}
