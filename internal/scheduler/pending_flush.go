// Package scheduler runs recurring background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/readalong/internal/progress"
)

// DefaultFlushSchedule retries the offline queue every five minutes.
const DefaultFlushSchedule = "*/5 * * * *"

// PendingFlushScheduler periodically drains the offline progress queue
// so updates stranded by a dead network eventually reach the server
// without user action.
type PendingFlushScheduler struct {
	engine   *progress.Engine
	schedule string

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	isFlushing bool
	cancelFunc context.CancelFunc
}

// NewPendingFlushScheduler creates a new scheduler instance. An empty
// schedule falls back to DefaultFlushSchedule.
func NewPendingFlushScheduler(engine *progress.Engine, schedule string) *PendingFlushScheduler {
	if schedule == "" {
		schedule = DefaultFlushSchedule
	}
	return &PendingFlushScheduler{
		engine:   engine,
		schedule: schedule,
		cron:     cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler.
func (s *PendingFlushScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		s.runFlush()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule pending flush job with '%s': %w", s.schedule, err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	log.Printf("Pending flush scheduler: started with schedule '%s'", s.schedule)

	// Monitor for context cancellation
	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler.
func (s *PendingFlushScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	// Stop accepting new jobs and wait for running jobs to complete
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Pending flush scheduler: stopped")
}

// RunNow triggers an immediate flush.
func (s *PendingFlushScheduler) RunNow() {
	go s.runFlush()
}

// IsRunning returns whether the scheduler is active.
func (s *PendingFlushScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next flush will occur.
func (s *PendingFlushScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

// runFlush performs the actual flush operation.
func (s *PendingFlushScheduler) runFlush() {
	s.mu.Lock()
	if s.isFlushing {
		s.mu.Unlock()
		log.Printf("Pending flush: skipped (already flushing)")
		return
	}
	s.isFlushing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isFlushing = false
		s.mu.Unlock()
	}()

	pending, err := s.engine.GetPendingProgressSyncs()
	if err != nil {
		log.Printf("Pending flush: failed to read queue: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}

	log.Printf("Pending flush: %d queued updates", len(pending))
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := s.engine.FlushPending(ctx)
	if err != nil {
		log.Printf("Pending flush: failed: %v", err)
		return
	}

	log.Printf("Pending flush: %d synced, %d failed in %v",
		len(report.Synced), len(report.Failed), time.Since(startTime).Round(time.Millisecond))
}
