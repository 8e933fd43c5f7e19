// Package devices provides database operations for registered client
// devices and their API tokens.
package devices

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/readalong/internal/auth"
	"github.com/mrlokans/readalong/internal/entities"
)

// ErrDeviceNotFound indicates an unknown device id.
var ErrDeviceNotFound = errors.New("device not found")

// Repository handles all device database operations.
type Repository struct {
	db         *gorm.DB
	bcryptCost int
}

// NewRepository creates a new device repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, bcryptCost: auth.DefaultBcryptCost}
}

// Register creates a device and returns it together with the plaintext
// token. The token cannot be recovered later; only its hash is stored.
func (r *Repository) Register(name string) (*entities.Device, string, error) {
	secret, err := auth.GenerateSecret()
	if err != nil {
		return nil, "", err
	}
	hash, err := auth.HashSecret(secret, r.bcryptCost)
	if err != nil {
		return nil, "", err
	}

	device := entities.Device{
		ID:         uuid.NewString(),
		Name:       name,
		SecretHash: hash,
	}
	if err := r.db.Create(&device).Error; err != nil {
		return nil, "", err
	}
	return &device, auth.FormatToken(device.ID, secret), nil
}

// Authenticate resolves a presented token to its device, checking the
// secret against the stored hash and stamping last-seen.
func (r *Repository) Authenticate(token string) (*entities.Device, error) {
	deviceID, secret, err := auth.ParseToken(token)
	if err != nil {
		return nil, err
	}

	var device entities.Device
	if err := r.db.Where("id = ?", deviceID).First(&device).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	if err := auth.CheckSecret(secret, device.SecretHash); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	device.LastSeenAt = &now
	if err := r.db.Model(&device).Update("last_seen_at", now).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// List returns all registered devices.
func (r *Repository) List() ([]entities.Device, error) {
	var devices []entities.Device
	err := r.db.Order("created_at ASC").Find(&devices).Error
	return devices, err
}

// Delete revokes a device by id.
func (r *Repository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&entities.Device{}).Error
}
