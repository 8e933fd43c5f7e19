package progress

import (
	"context"

	"github.com/mrlokans/readalong/internal/entities"
)

// RemoteStore pushes and pulls reading positions against the progress
// server. Implementations translate transport failures into the
// remote package's sentinel errors so the sync engine can tell
// "queue and retry later" apart from "drop".
type RemoteStore interface {
	Put(ctx context.Context, p entities.SavedProgress) error
	Get(ctx context.Context, bookID string) (*entities.SavedProgress, error)
}

// CacheStore is the device-local progress store: the last saved
// position per book plus the queue of pushes that could not reach the
// server. The cache is written on every sync attempt, so an offline
// session never loses position.
type CacheStore interface {
	GetProgress(bookID string) (*entities.SavedProgress, error)
	SetProgress(p entities.SavedProgress) error
	ListProgress() ([]entities.SavedProgress, error)

	// EnqueuePending upserts the pending push for a book; a newer
	// position replaces an older queued one.
	EnqueuePending(p entities.PendingProgressSync) error
	ListPending() ([]entities.PendingProgressSync, error)
	DeletePending(bookID string) error
	RecordPendingFailure(bookID string, lastError string) error
}
