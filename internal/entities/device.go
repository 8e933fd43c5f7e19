package entities

import "time"

// Device is a registered client of the progress-store server. The API
// token is stored as a bcrypt hash of its secret half; the plaintext
// token is shown once at registration.
type Device struct {
	ID         string     `gorm:"primaryKey;size:64" json:"id"`
	Name       string     `gorm:"size:128" json:"name"`
	SecretHash string     `gorm:"size:128" json:"-"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (Device) TableName() string {
	return "devices"
}
