package interfaces

import (
	"context"
	"time"

	"github.com/balduz84/passdoo/internal/models"
)

// SessionStorage persists the single Session Record.
// A stored record means the user is provisionally authenticated.
type SessionStorage interface {
	// GetSession returns nil, nil when no session is stored
	GetSession(ctx context.Context) (*models.SessionRecord, error)
	SaveSession(ctx context.Context, record *models.SessionRecord) error
	DeleteSession(ctx context.Context) error

	// DeleteSessionIf removes the record only while it still carries cred.
	// Returns true when a record was removed.
	DeleteSessionIf(ctx context.Context, cred models.AuthCredential) (bool, error)
}

// SettingsStorage persists user preferences
type SettingsStorage interface {
	// GetSettings returns defaults when nothing was saved
	GetSettings(ctx context.Context) (models.Settings, error)
	SaveSettings(ctx context.Context, settings models.Settings) error
}

// CacheStorage is a durable, per-key TTL cache
type CacheStorage interface {
	SetCache(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// GetCache decodes the entry into dest. An expired entry is removed and reported as a miss.
	GetCache(ctx context.Context, key string, dest interface{}) (bool, error)

	DeleteCache(ctx context.Context, key string) error
	ClearCache(ctx context.Context) error

	// CleanExpired removes every expired entry and returns how many were removed
	CleanExpired(ctx context.Context) (int, error)
}

// PendingStorage holds at most one credential captured before login
type PendingStorage interface {
	// SetPending overwrites any previously captured credential
	SetPending(ctx context.Context, pending *models.PendingCredential) error
	// GetPending returns nil, nil when nothing is pending
	GetPending(ctx context.Context) (*models.PendingCredential, error)
	ClearPending(ctx context.Context) error
}

// StorageManager bundles the durable stores
type StorageManager interface {
	SessionStorage() SessionStorage
	SettingsStorage() SettingsStorage
	CacheStorage() CacheStorage
	PendingStorage() PendingStorage
	Close() error
}
