package passwords

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/balduz84/passdoo/internal/metrics"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"github.com/ternarybob/arbor"
)

const (
	// DefaultTTL bounds how long a fetched list is served without a refetch
	DefaultTTL = 5 * time.Minute

	mirrorKey = "passwords"
)

// mirrorEntry is the durable copy of the in-memory list
type mirrorEntry struct {
	Records   []models.PasswordRecord `json:"records"`
	FetchedAt time.Time               `json:"fetched_at"`
}

// Service is the Credential Cache. It serves password records for the
// current session and forwards backend rejections to the Session Manager.
type Service struct {
	api     interfaces.PassdooAPI
	session interfaces.SessionProvider
	mirror  interfaces.CacheStorage // nil disables the durable mirror
	ttl     time.Duration
	logger  arbor.ILogger
	now     func() time.Time

	mu         sync.Mutex
	records    []models.PasswordRecord
	fetchedAt  time.Time
	populated  bool
	generation uint64
}

// NewService creates the Credential Cache
func NewService(api interfaces.PassdooAPI, session interfaces.SessionProvider, mirror interfaces.CacheStorage, ttl time.Duration, logger arbor.ILogger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		api:     api,
		session: session,
		mirror:  mirror,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// credential returns the stored credential or SessionInvalid when absent
func (s *Service) credential(ctx context.Context) (models.AuthCredential, error) {
	cred, err := s.session.CurrentCredential(ctx)
	if err != nil {
		return models.AuthCredential{}, &passdoo.Error{Kind: passdoo.KindSessionInvalid, Message: "failed to read session", Err: err}
	}
	if cred == nil {
		return models.AuthCredential{}, passdoo.NewError(passdoo.KindSessionInvalid, "not authenticated")
	}
	return *cred, nil
}

// reject lets the Session Manager react to a failed call made with cred
func (s *Service) reject(ctx context.Context, cred models.AuthCredential, err error) error {
	s.session.HandleAPIError(ctx, cred, err)
	return err
}

// GetAll returns the records matching search. A valid cache is served
// unless force is set; filtering never triggers a fetch by itself.
func (s *Service) GetAll(ctx context.Context, search string, force bool) ([]models.PasswordRecord, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	if !force {
		if records, ok := s.cached(ctx); ok {
			metrics.RecordCacheLookup("hit")
			return Filter(records, search), nil
		}
	}
	metrics.RecordCacheLookup("miss")

	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	records, err := s.api.ListPasswords(ctx, cred)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}

	s.store(ctx, generation, records)

	s.logger.Debug().
		Int("count", len(records)).
		Bool("forced", force).
		Msg("Password list fetched")

	return Filter(records, search), nil
}

// cached returns a copy of the valid in-memory list, warming it from the
// durable mirror when memory is empty.
func (s *Service) cached(ctx context.Context) ([]models.PasswordRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.populated && now.Sub(s.fetchedAt) < s.ttl {
		return append([]models.PasswordRecord(nil), s.records...), true
	}
	if s.mirror == nil {
		return nil, false
	}

	var entry mirrorEntry
	hit, err := s.mirror.GetCache(ctx, mirrorKey, &entry)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to read cache mirror")
		return nil, false
	}
	if !hit || now.Sub(entry.FetchedAt) >= s.ttl {
		return nil, false
	}

	s.records = entry.Records
	s.fetchedAt = entry.FetchedAt
	s.populated = true
	s.logger.Debug().Int("count", len(entry.Records)).Msg("Cache warmed from mirror")
	return append([]models.PasswordRecord(nil), entry.Records...), true
}

// store replaces the cache unless an invalidation happened since the
// fetch started.
func (s *Service) store(ctx context.Context, generation uint64, records []models.PasswordRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		s.logger.Debug().Msg("Discarding fetch that predates an invalidation")
		return
	}

	s.records = records
	s.fetchedAt = s.now()
	s.populated = true

	if s.mirror != nil {
		entry := mirrorEntry{Records: records, FetchedAt: s.fetchedAt}
		if err := s.mirror.SetCache(ctx, mirrorKey, entry, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to write cache mirror")
		}
	}
}

// Invalidate empties the cache and its mirror
func (s *Service) Invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.records = nil
	s.fetchedAt = time.Time{}
	s.populated = false

	if s.mirror != nil {
		if err := s.mirror.DeleteCache(ctx, mirrorKey); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to clear cache mirror")
		}
	}

	metrics.RecordCacheInvalidation()
}

// GetByID always fetches the detail, secret included, and records the
// access for audit in the background.
func (s *Service) GetByID(ctx context.Context, id int64) (*models.PasswordDetail, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	detail, err := s.api.GetPassword(ctx, cred, id)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}

	common.SafeGo(s.logger, "password-audit", func() {
		auditCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.api.LogAccess(auditCtx, cred, id, "view"); err != nil {
			s.logger.Debug().Err(err).Int64("password_id", id).Msg("Failed to record password access")
		}
	})

	return detail, nil
}

// Search runs a server-side search without touching the cache
func (s *Service) Search(ctx context.Context, query string) ([]models.PasswordRecord, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	records, err := s.api.SearchPasswords(ctx, cred, strings.TrimSpace(query))
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}
	return records, nil
}

// Create stores a new record and invalidates the cache
func (s *Service) Create(ctx context.Context, input models.PasswordInput) (*models.PasswordRecord, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.api.CreatePassword(ctx, cred, input)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}

	s.Invalidate(ctx)
	s.logger.Info().Int64("password_id", record.ID).Msg("Password created")
	return record, nil
}

// Update changes an existing record and invalidates the cache
func (s *Service) Update(ctx context.Context, id int64, input models.PasswordInput) (*models.PasswordRecord, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.api.UpdatePassword(ctx, cred, id, input)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}

	s.Invalidate(ctx)
	s.logger.Info().Int64("password_id", id).Msg("Password updated")
	return record, nil
}

// GetUser returns the signed-in user's profile
func (s *Service) GetUser(ctx context.Context) (*models.UserInfo, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.api.GetUser(ctx, cred)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}
	return user, nil
}

// GetClients lists the clients the user can assign passwords to
func (s *Service) GetClients(ctx context.Context) ([]models.Client, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	clients, err := s.api.GetClients(ctx, cred)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}
	return clients, nil
}

// GetCategories lists the password categories defined on the server
func (s *Service) GetCategories(ctx context.Context) ([]models.Category, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	categories, err := s.api.GetCategories(ctx, cred)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}
	return categories, nil
}

// GetClientGroups returns the permission groups of a client
func (s *Service) GetClientGroups(ctx context.Context, partnerID int64) (*models.ClientGroups, error) {
	cred, err := s.credential(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.api.GetClientGroups(ctx, cred, partnerID)
	if err != nil {
		return nil, s.reject(ctx, cred, err)
	}
	return groups, nil
}
