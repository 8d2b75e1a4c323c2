package badger

import (
	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db       *BadgerDB
	session  interfaces.SessionStorage
	settings interfaces.SettingsStorage
	cache    interfaces.CacheStorage
	pending  interfaces.PendingStorage
	logger   arbor.ILogger
}

// NewManager opens the database and builds every store on top of it
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)
	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:       db,
		session:  NewSessionStorage(db, logger),
		settings: NewSettingsStorage(db, logger),
		cache:    NewCacheStorage(db, logger),
		pending:  NewPendingStorage(db, logger),
		logger:   logger,
	}
}

// SessionStorage returns the Session storage interface
func (m *Manager) SessionStorage() interfaces.SessionStorage {
	return m.session
}

// SettingsStorage returns the Settings storage interface
func (m *Manager) SettingsStorage() interfaces.SettingsStorage {
	return m.settings
}

// CacheStorage returns the durable cache interface
func (m *Manager) CacheStorage() interfaces.CacheStorage {
	return m.cache
}

// PendingStorage returns the pending credential storage interface
func (m *Manager) PendingStorage() interfaces.PendingStorage {
	return m.pending
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
