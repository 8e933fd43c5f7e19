// Package tasks wires background jobs onto a SQLite-backed queue.
package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/readalong/internal/progress"
)

// PendingFlusher drains the offline progress queue.
type PendingFlusher interface {
	FlushPending(ctx context.Context) (progress.Report, error)
}

// FlushPendingSyncsTask pushes queued progress updates to the server.
// Enqueued by the scheduler on a connectivity cadence and on demand
// over the API.
type FlushPendingSyncsTask struct{}

// Config returns the queue configuration for pending flush tasks.
func (t FlushPendingSyncsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "flush_pending_syncs",
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

// FlushPendingSyncsProcessor creates a processor function for
// FlushPendingSyncsTask.
func FlushPendingSyncsProcessor(flusher PendingFlusher) backlite.QueueProcessor[FlushPendingSyncsTask] {
	return func(ctx context.Context, task FlushPendingSyncsTask) error {
		if flusher == nil {
			return fmt.Errorf("pending flusher not configured")
		}

		report, err := flusher.FlushPending(ctx)
		if err != nil {
			return fmt.Errorf("flush pending syncs: %w", err)
		}

		if len(report.Synced) == 0 && len(report.Failed) == 0 {
			log.Printf("[TASK] No queued progress updates to flush")
			return nil
		}
		log.Printf("[TASK] Flushed queued progress: %d synced, %d failed", len(report.Synced), len(report.Failed))
		return nil
	}
}

// NewFlushPendingSyncsQueue creates a backlite queue for pending flush
// tasks.
func NewFlushPendingSyncsQueue(flusher PendingFlusher) backlite.Queue {
	return backlite.NewQueue(FlushPendingSyncsProcessor(flusher))
}
