package interfaces

import (
	"context"

	"github.com/balduz84/passdoo/internal/models"
)

// SessionProvider is the Session Manager as seen by components that
// only need to read the current credential and report backend rejections.
type SessionProvider interface {
	// CurrentCredential is a pure read of durable storage
	CurrentCredential(ctx context.Context) (*models.AuthCredential, error)

	// HandleAPIError tears the session down when err says the backend rejected cred
	HandleAPIError(ctx context.Context, cred models.AuthCredential, err error)
}
