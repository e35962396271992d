package credentials

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means no record is stored.
	ErrNotFound = errors.New("credentials: not found")

	// ErrCorrupt means a record exists but cannot be decoded.
	ErrCorrupt = errors.New("credentials: corrupt record")

	// ErrStoreUnavailable wraps backend failures (I/O errors, Redis
	// connection loss).
	ErrStoreUnavailable = errors.New("credentials: store unavailable")
)

// Record is the persisted session snapshot.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	FirstName    string    `json:"first_name,omitempty"`
	LastName     string    `json:"last_name,omitempty"`
	Degraded     bool      `json:"degraded,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Store persists session records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Load returns the stored record, ErrNotFound when empty, or
	// ErrCorrupt when the stored bytes cannot be decoded.
	Load(ctx context.Context) (*Record, error)

	// Save replaces the stored record atomically.
	Save(ctx context.Context, rec Record) error

	// Clear removes the stored record. Clearing an empty store is not
	// an error.
	Clear(ctx context.Context) error
}
