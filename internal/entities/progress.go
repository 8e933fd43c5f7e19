package entities

import "time"

// BookProgress is the persisted "last known position" for a book.
// The same table backs the local cache and the server-side store;
// BookID is unique so there is exactly one row per book.
type BookProgress struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BookID    string    `gorm:"uniqueIndex;size:256" json:"book_id"`
	Locator   string    `gorm:"type:text" json:"locator"` // JSON-encoded Locator
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	Source    string    `gorm:"size:128" json:"source,omitempty"`
	Location  string    `gorm:"size:512" json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (BookProgress) TableName() string {
	return "book_progress"
}

// PendingSync persists an undelivered progress update so the offline
// queue survives restarts. At most one row per book; a newer attempt
// replaces the existing row.
type PendingSync struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BookID    string    `gorm:"uniqueIndex;size:256" json:"book_id"`
	Locator   string    `gorm:"type:text" json:"locator"` // JSON-encoded Locator
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `gorm:"size:32" json:"reason"`
	Attempts  int       `json:"attempts"`
	LastError string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PendingSync) TableName() string {
	return "pending_syncs"
}
