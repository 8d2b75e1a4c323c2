package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

const pendingKey = "pendingCredentials"

// PendingStorage implements the PendingStorage interface for Badger
type PendingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPendingStorage creates a new PendingStorage instance
func NewPendingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PendingStorage {
	return &PendingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PendingStorage) SetPending(ctx context.Context, pending *models.PendingCredential) error {
	if pending == nil {
		return fmt.Errorf("pending credential is required")
	}
	if err := s.db.Store().Upsert(pendingKey, pending); err != nil {
		return fmt.Errorf("failed to save pending credential: %w", err)
	}
	s.logger.Debug().Str("url", pending.URL).Msg("Pending credential stored")
	return nil
}

func (s *PendingStorage) GetPending(ctx context.Context) (*models.PendingCredential, error) {
	var pending models.PendingCredential
	err := s.db.Store().Get(pendingKey, &pending)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending credential: %w", err)
	}
	return &pending, nil
}

func (s *PendingStorage) ClearPending(ctx context.Context) error {
	err := s.db.Store().Delete(pendingKey, &models.PendingCredential{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to clear pending credential: %w", err)
	}
	return nil
}
