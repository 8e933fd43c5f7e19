// Package progress provides database operations for reading positions
// and the offline sync queue. The same repository backs the client's
// local cache and the server's authoritative store.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/readalong/internal/entities"
)

// ErrStaleTimestamp is returned by Upsert when the stored position is
// newer than the incoming one. The caller inspects the returned record
// for the winning timestamp.
var ErrStaleTimestamp = errors.New("stored progress is newer")

// Repository handles all progress database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new progress repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetProgress retrieves the saved position for a book, or nil when the
// book has never been opened.
func (r *Repository) GetProgress(bookID string) (*entities.SavedProgress, error) {
	var row entities.BookProgress
	err := r.db.Where("book_id = ?", bookID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

// SetProgress unconditionally stores the position for a book. This is
// the device-local cache write; the latest local position always wins.
func (r *Repository) SetProgress(p entities.SavedProgress) error {
	row, err := toRow(p)
	if err != nil {
		return err
	}

	var existing entities.BookProgress
	result := r.db.Where("book_id = ?", p.BookID).First(&existing)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return r.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.ID = existing.ID
	return r.db.Save(&row).Error
}

// ListProgress returns every saved position, most recent first.
func (r *Repository) ListProgress() ([]entities.SavedProgress, error) {
	var rows []entities.BookProgress
	if err := r.db.Order("timestamp DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]entities.SavedProgress, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// Upsert stores a position only if it is at least as recent as the
// stored one. This is the server-side write; older updates are
// rejected with ErrStaleTimestamp and the winning record.
func (r *Repository) Upsert(p entities.SavedProgress) (*entities.SavedProgress, error) {
	var existing entities.BookProgress
	result := r.db.Where("book_id = ?", p.BookID).First(&existing)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		row, err := toRow(p)
		if err != nil {
			return nil, err
		}
		if err := r.db.Create(&row).Error; err != nil {
			return nil, err
		}
		return &p, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	if existing.Timestamp.After(p.Timestamp) {
		winner, err := fromRow(existing)
		if err != nil {
			return nil, err
		}
		return winner, ErrStaleTimestamp
	}

	row, err := toRow(p)
	if err != nil {
		return nil, err
	}
	row.ID = existing.ID
	if err := r.db.Save(&row).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// EnqueuePending stores an undelivered update, replacing any earlier
// queued one for the same book.
func (r *Repository) EnqueuePending(p entities.PendingProgressSync) error {
	locator, err := json.Marshal(p.Locator)
	if err != nil {
		return fmt.Errorf("failed to encode locator: %w", err)
	}
	row := entities.PendingSync{
		BookID:    p.BookID,
		Locator:   string(locator),
		Timestamp: p.Timestamp,
		Reason:    string(p.Reason),
		Attempts:  p.Attempts,
		LastError: p.LastError,
	}

	var existing entities.PendingSync
	result := r.db.Where("book_id = ?", p.BookID).First(&existing)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return r.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	row.ID = existing.ID
	return r.db.Save(&row).Error
}

// ListPending returns the offline queue, oldest first.
func (r *Repository) ListPending() ([]entities.PendingProgressSync, error) {
	var rows []entities.PendingSync
	if err := r.db.Order("timestamp ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]entities.PendingProgressSync, 0, len(rows))
	for _, row := range rows {
		var locator entities.Locator
		if err := json.Unmarshal([]byte(row.Locator), &locator); err != nil {
			return nil, fmt.Errorf("failed to decode locator for %s: %w", row.BookID, err)
		}
		out = append(out, entities.PendingProgressSync{
			BookID:    row.BookID,
			Locator:   locator,
			Timestamp: row.Timestamp,
			Reason:    entities.SyncReason(row.Reason),
			Attempts:  row.Attempts,
			LastError: row.LastError,
		})
	}
	return out, nil
}

// CountPending returns the offline queue depth.
func (r *Repository) CountPending() (int64, error) {
	var count int64
	err := r.db.Model(&entities.PendingSync{}).Count(&count).Error
	return count, err
}

// DeletePending removes a book's queued update after delivery.
func (r *Repository) DeletePending(bookID string) error {
	return r.db.Where("book_id = ?", bookID).Delete(&entities.PendingSync{}).Error
}

// RecordPendingFailure bumps the attempt counter and stores the error
// for a queued update that failed to deliver.
func (r *Repository) RecordPendingFailure(bookID, lastError string) error {
	return r.db.Model(&entities.PendingSync{}).
		Where("book_id = ?", bookID).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}

func toRow(p entities.SavedProgress) (entities.BookProgress, error) {
	locator, err := json.Marshal(p.Locator)
	if err != nil {
		return entities.BookProgress{}, fmt.Errorf("failed to encode locator: %w", err)
	}
	return entities.BookProgress{
		BookID:    p.BookID,
		Locator:   string(locator),
		Timestamp: p.Timestamp,
		Source:    p.Source,
		Location:  p.Location,
	}, nil
}

func fromRow(row entities.BookProgress) (*entities.SavedProgress, error) {
	var locator entities.Locator
	if err := json.Unmarshal([]byte(row.Locator), &locator); err != nil {
		return nil, fmt.Errorf("failed to decode locator for %s: %w", row.BookID, err)
	}
	return &entities.SavedProgress{
		BookID:    row.BookID,
		Locator:   locator,
		Timestamp: row.Timestamp,
		Source:    row.Source,
		Location:  row.Location,
	}, nil
}
