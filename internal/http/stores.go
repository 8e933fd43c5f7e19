package http

import (
	"github.com/mrlokans/readalong/internal/entities"
)

// ProgressStore is the server-side position store consumed by the
// progress controller.
type ProgressStore interface {
	GetProgress(bookID string) (*entities.SavedProgress, error)
	ListProgress() ([]entities.SavedProgress, error)
	Upsert(p entities.SavedProgress) (*entities.SavedProgress, error)
}

// PendingCounter reports the offline sync queue depth, surfaced on the
// health endpoint.
type PendingCounter interface {
	CountPending() (int64, error)
}

// DeviceAuthenticator resolves presented tokens to devices.
type DeviceAuthenticator interface {
	Authenticate(token string) (*entities.Device, error)
}

// DeviceStore manages registered devices.
type DeviceStore interface {
	List() ([]entities.Device, error)
	Delete(id string) error
}
