package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/balduz84/passdoo/internal/metrics"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

const refreshTimeout = 2 * time.Minute

// AuthChecker validates the stored session
type AuthChecker interface {
	CheckAuthStatus(ctx context.Context) bool
}

// CacheRefresher reloads the password list
type CacheRefresher interface {
	GetAll(ctx context.Context, search string, force bool) ([]models.PasswordRecord, error)
}

// Service keeps the session and the password cache warm in the background
type Service struct {
	auth   AuthChecker
	cache  CacheRefresher
	store  interfaces.CacheStorage
	cron   *cron.Cron
	logger arbor.ILogger

	mu         sync.Mutex
	running    bool
	refreshing atomic.Bool
	lastRun    time.Time
	lastError  string
}

// NewService creates the refresh scheduler
func NewService(auth AuthChecker, cache CacheRefresher, store interfaces.CacheStorage, logger arbor.ILogger) *Service {
	cronLog := cronLogger{logger: logger}
	return &Service{
		auth:   auth,
		cache:  cache,
		store:  store,
		logger: logger,
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
}

// Start schedules Refresh with the given cron expression
func (s *Service) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	if err := common.ValidateSchedule(schedule); err != nil {
		return err
	}

	if _, err := s.cron.AddFunc(schedule, s.runScheduledTask); err != nil {
		return fmt.Errorf("failed to add refresh job: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", schedule).Msg("Refresh scheduler started")
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Refresh scheduler stopped")
}

// IsRunning reports whether the scheduler was started
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the completion time and error text of the last refresh
func (s *Service) LastRun() (time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastError
}

func (s *Service) runScheduledTask() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Scheduled refresh failed")
	}
}

// Refresh validates the session, reloads the cache and purges expired
// durable cache entries. Overlapping calls are skipped.
func (s *Service) Refresh(ctx context.Context) error {
	if !s.refreshing.CompareAndSwap(false, true) {
		metrics.RecordRefresh("skipped")
		s.logger.Debug().Msg("Refresh already in progress, skipping")
		return nil
	}
	defer s.refreshing.Store(false)

	start := time.Now()
	err := s.refresh(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastError = ""
	if err != nil {
		s.lastError = err.Error()
	}
	s.mu.Unlock()

	s.logger.Debug().
		Dur("duration", time.Since(start)).
		Bool("success", err == nil).
		Msg("Refresh cycle finished")
	return err
}

func (s *Service) refresh(ctx context.Context) error {
	if s.store != nil {
		removed, err := s.store.CleanExpired(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Failed to purge expired cache entries")
		} else if removed > 0 {
			s.logger.Debug().Int("removed", removed).Msg("Purged expired cache entries")
		}
	}

	if !s.auth.CheckAuthStatus(ctx) {
		metrics.RecordRefresh("unauthenticated")
		return nil
	}

	records, err := s.cache.GetAll(ctx, "", true)
	if err != nil {
		metrics.RecordRefresh("failed")
		return fmt.Errorf("failed to refresh password cache: %w", err)
	}

	metrics.RecordRefresh("success")
	s.logger.Debug().Int("count", len(records)).Msg("Password cache refreshed")
	return nil
}

// cronLogger routes cron's own logging through arbor
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}
