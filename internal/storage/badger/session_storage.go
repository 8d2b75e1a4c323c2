package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/balduz84/passdoo/internal/models"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

const sessionKey = "session"

// SessionStorage implements the SessionStorage interface for Badger
type SessionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSessionStorage creates a new SessionStorage instance
func NewSessionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SessionStorage {
	return &SessionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SessionStorage) GetSession(ctx context.Context) (*models.SessionRecord, error) {
	var record models.SessionRecord
	err := s.db.Store().Get(sessionKey, &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &record, nil
}

func (s *SessionStorage) SaveSession(ctx context.Context, record *models.SessionRecord) error {
	if record == nil || !record.Credential.Valid() {
		return fmt.Errorf("session record requires a valid credential")
	}
	if err := s.db.Store().Upsert(sessionKey, record); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.logger.Debug().Str("kind", string(record.Credential.Kind)).Msg("Session record saved")
	return nil
}

func (s *SessionStorage) DeleteSession(ctx context.Context) error {
	err := s.db.Store().Delete(sessionKey, &models.SessionRecord{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SessionStorage) DeleteSessionIf(ctx context.Context, cred models.AuthCredential) (bool, error) {
	store := s.db.Store()
	removed := false

	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		var current models.SessionRecord
		if err := store.TxGet(tx, sessionKey, &current); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return nil
			}
			return err
		}
		if current.Credential != cred {
			return nil
		}
		if err := store.TxDelete(tx, sessionKey, &current); err != nil {
			return err
		}
		removed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	return removed, nil
}
