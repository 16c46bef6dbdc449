package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rglservice/mediation-strapi-import-export/internal/tasks"
)

// SessionCleanupScheduler periodically purges old import sessions.
// When a task client is available the work is enqueued so a worker
// runs it; otherwise the cleaner is called inline.
type SessionCleanupScheduler struct {
	cleaner       tasks.SessionCleaner
	taskClient    *tasks.Client
	schedule      string
	retentionDays int

	cron      *cron.Cron
	entryID   cron.EntryID
	mu        sync.Mutex
	isRunning bool
}

func NewSessionCleanupScheduler(cleaner tasks.SessionCleaner, taskClient *tasks.Client, schedule string, retentionDays int) *SessionCleanupScheduler {
	return &SessionCleanupScheduler{
		cleaner:       cleaner,
		taskClient:    taskClient,
		schedule:      schedule,
		retentionDays: retentionDays,
		cron:          cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start schedules the cleanup job.
func (s *SessionCleanupScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, s.runCleanup)
	if err != nil {
		return fmt.Errorf("failed to schedule session cleanup '%s': %w", s.schedule, err)
	}
	s.entryID = entryID

	s.cron.Start()
	s.isRunning = true
	log.Printf("Session cleanup scheduled: %s (retention %d days)", s.schedule, s.retentionDays)
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (s *SessionCleanupScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.isRunning = false
}

func (s *SessionCleanupScheduler) runCleanup() {
	if s.taskClient != nil {
		_, err := s.taskClient.Add(tasks.CleanupSessionsTask{RetentionDays: s.retentionDays}).Save()
		if err != nil {
			log.Printf("Failed to enqueue session cleanup: %v", err)
		}
		return
	}

	retention := time.Duration(s.retentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.DeleteOldSessions(retention)
	if err != nil {
		log.Printf("Session cleanup failed: %v", err)
		return
	}
	log.Printf("Session cleanup removed %d sessions", deleted)
}
