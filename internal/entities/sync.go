package entities

import "time"

// SyncReason tags why a progress update is being sent. It is used for
// logging and for deciding whether a send bypasses the debounce window;
// it does not affect conflict resolution.
type SyncReason string

const (
	SyncReasonUserPaused        SyncReason = "user_paused"
	SyncReasonPeriodic          SyncReason = "periodic"
	SyncReasonBookClosed        SyncReason = "book_closed"
	SyncReasonBackgroundHandoff SyncReason = "background_handoff"
)

// Forced reports whether the reason demands an immediate flush that
// bypasses debouncing.
func (r SyncReason) Forced() bool {
	return r == SyncReasonBookClosed || r == SyncReasonBackgroundHandoff
}

// SavedProgress is a cached or fetched "where did this book last get
// read" record, with the locator and the metadata needed for conflict
// resolution and logging.
type SavedProgress struct {
	BookID    string    `json:"book_id"`
	Locator   Locator   `json:"locator"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`   // originating device identifier
	Location  string    `json:"location,omitempty"` // human-readable position description
}

// PendingProgressSync is a queued, not-yet-delivered progress update,
// held per book while the remote store is unreachable. A newer sync
// attempt for the same book supersedes it rather than stacking.
type PendingProgressSync struct {
	BookID    string     `json:"book_id"`
	Locator   Locator    `json:"locator"`
	Timestamp time.Time  `json:"timestamp"`
	Reason    SyncReason `json:"reason"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
}
