package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// SessionCleaner provides the ability to delete old import sessions.
type SessionCleaner interface {
	DeleteOldSessions(retention time.Duration) (int64, error)
}

// CleanupSessionsTask removes import sessions older than the
// configured retention period.
type CleanupSessionsTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for session cleanup tasks.
func (t CleanupSessionsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "cleanup_import_sessions",
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupSessionsProcessor creates a processor function for CleanupSessionsTask.
func CleanupSessionsProcessor(cleaner SessionCleaner) backlite.QueueProcessor[CleanupSessionsTask] {
	return func(ctx context.Context, task CleanupSessionsTask) error {
		if cleaner == nil {
			return fmt.Errorf("session cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = 30
		}
		retention := time.Duration(retentionDays) * 24 * time.Hour

		deleted, err := cleaner.DeleteOldSessions(retention)
		if err != nil {
			return fmt.Errorf("cleanup import sessions: %w", err)
		}

		log.Printf("[TASK] Cleaned up %d import sessions older than %d days", deleted, retentionDays)
		return nil
	}
}

// NewCleanupSessionsQueue creates a backlite queue for session cleanup tasks.
func NewCleanupSessionsQueue(cleaner SessionCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupSessionsProcessor(cleaner))
}
