package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// DefaultCacheTTL applies when SetCache is called without a ttl
const DefaultCacheTTL = 5 * time.Minute

// CacheStorage implements the CacheStorage interface for Badger
type CacheStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewCacheStorage creates a new CacheStorage instance
func NewCacheStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CacheStorage {
	return &CacheStorage{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// normalizeKey makes cache keys case-insensitive
func (s *CacheStorage) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (s *CacheStorage) SetCache(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}

	entry := models.CacheEntry{
		Key:     s.normalizeKey(key),
		Data:    data,
		Expires: s.now().Add(ttl),
	}
	if err := s.db.Store().Upsert(entry.Key, &entry); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

func (s *CacheStorage) GetCache(ctx context.Context, key string, dest interface{}) (bool, error) {
	normalizedKey := s.normalizeKey(key)

	var entry models.CacheEntry
	err := s.db.Store().Get(normalizedKey, &entry)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	if entry.Expired(s.now()) {
		if err := s.DeleteCache(ctx, normalizedKey); err != nil {
			s.logger.Warn().Err(err).Str("key", normalizedKey).Msg("Failed to delete expired cache entry")
		}
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, dest); err != nil {
		return false, fmt.Errorf("failed to decode cache entry %s: %w", normalizedKey, err)
	}
	return true, nil
}

func (s *CacheStorage) DeleteCache(ctx context.Context, key string) error {
	err := s.db.Store().Delete(s.normalizeKey(key), &models.CacheEntry{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

func (s *CacheStorage) ClearCache(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.CacheEntry{}, nil); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (s *CacheStorage) CleanExpired(ctx context.Context) (int, error) {
	var entries []models.CacheEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return 0, fmt.Errorf("failed to list cache entries: %w", err)
	}

	now := s.now()
	removed := 0
	for _, entry := range entries {
		if !entry.Expired(now) {
			continue
		}
		if err := s.DeleteCache(ctx, entry.Key); err != nil {
			s.logger.Warn().Str("key", entry.Key).Err(err).Msg("Failed to delete expired cache entry")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Debug().Int("count", removed).Msg("Removed expired cache entries")
	}
	return removed, nil
}
