// Package auth implements device-token authentication for the
// progress server. A token is "<device-id>.<secret>"; only the bcrypt
// hash of the secret half is stored, and the plaintext token is shown
// once at registration.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost balances hashing time against login latency for
// per-request token checks.
const DefaultBcryptCost = 10

var (
	ErrInvalidToken  = errors.New("invalid token format")
	ErrInvalidSecret = errors.New("invalid device secret")
)

// GenerateSecret creates the cryptographically random secret half of a
// device token.
func GenerateSecret() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HashSecret creates a bcrypt hash of the secret for storage.
func HashSecret(secret string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckSecret compares a presented secret with its stored hash.
func CheckSecret(secret, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidSecret
		}
		return err
	}
	return nil
}

// FormatToken assembles the plaintext token handed to a device.
func FormatToken(deviceID, secret string) string {
	return deviceID + "." + secret
}

// ParseToken splits a presented token into its device id and secret.
func ParseToken(token string) (deviceID, secret string, err error) {
	deviceID, secret, ok := strings.Cut(token, ".")
	if !ok || deviceID == "" || secret == "" {
		return "", "", ErrInvalidToken
	}
	return deviceID, secret, nil
}
