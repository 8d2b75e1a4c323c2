package auth

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

const remoteLogoutTimeout = 10 * time.Second

// Config holds the login and expiry settings of the Session Manager
type Config struct {
	BaseURL        string
	LoginPath      string
	RedirectPath   string
	CallbackPath   string
	LandingPath    string
	SessionCookie  string
	SessionTimeout time.Duration // Cookie sessions only
	LoginTimeout   time.Duration
	FallbackDelay  time.Duration
}

// NewConfig derives the Session Manager settings from the agent config
func NewConfig(cfg *common.Config) Config {
	return Config{
		BaseURL:        strings.TrimRight(cfg.Passdoo.BaseURL, "/"),
		LoginPath:      cfg.Auth.LoginPath,
		RedirectPath:   cfg.Auth.RedirectPath,
		CallbackPath:   cfg.Auth.CallbackPath,
		LandingPath:    cfg.Auth.LandingPath,
		SessionCookie:  cfg.Auth.SessionCookie,
		SessionTimeout: cfg.Auth.SessionTimeoutDuration(),
		LoginTimeout:   cfg.Auth.LoginTimeoutDuration(),
		FallbackDelay:  cfg.Auth.FallbackDelayDuration(),
	}
}

// Service is the Session Manager: the sole authority for session validity.
// Durable storage is the source of truth; state mirrors it for subscribers.
type Service struct {
	api      interfaces.PassdooAPI
	sessions interfaces.SessionStorage
	surface  LoginSurface
	config   Config
	logger   arbor.ILogger
	now      func() time.Time

	mu          sync.Mutex
	state       State
	loginActive bool
	nextSubID   int
	subscribers map[int]Subscriber
}

// NewService creates the Session Manager. The initial state comes from
// storage alone; the first CheckAuthStatus performs remote validation.
func NewService(api interfaces.PassdooAPI, sessions interfaces.SessionStorage, surface LoginSurface, config Config, logger arbor.ILogger) *Service {
	s := &Service{
		api:         api,
		sessions:    sessions,
		surface:     surface,
		config:      config,
		logger:      logger,
		now:         time.Now,
		state:       StateUnauthenticated,
		subscribers: make(map[int]Subscriber),
	}

	record, err := sessions.GetSession(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read stored session, starting unauthenticated")
	} else if record != nil {
		s.state = StateAuthenticated
	}

	logger.Debug().Str("state", string(s.state)).Msg("Session manager initialized")
	return s
}

// State returns the current lifecycle state
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes and returns its unsubscribe func
func (s *Service) Subscribe(fn Subscriber) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// setState records a transition and notifies subscribers outside the lock.
// always forces a notification when the state did not change, which marks
// a session switch or a teardown.
func (s *Service) setState(state State, always bool) {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	subscribers := make([]Subscriber, 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	if !changed && !always {
		return
	}

	metrics.RecordAuthTransition(string(state))
	s.logger.Debug().Str("state", string(state)).Msg("Session state changed")

	for _, fn := range subscribers {
		fn(state)
	}
}

// settle applies a storage-derived state unless a login owns the state
func (s *Service) settle(authenticated bool, always bool) {
	s.mu.Lock()
	active := s.loginActive
	s.mu.Unlock()
	if active {
		// Teardowns still reach subscribers so the cache is dropped
		if always {
			s.setState(StateAuthenticating, true)
		}
		return
	}

	if authenticated {
		s.setState(StateAuthenticated, always)
	} else {
		s.setState(StateUnauthenticated, always)
	}
}

// Login runs one interactive login. A second call while one is pending
// fails with AuthInProgress.
func (s *Service) Login(ctx context.Context) error {
	s.mu.Lock()
	if s.loginActive {
		s.mu.Unlock()
		metrics.RecordLoginAttempt("in_progress")
		return passdoo.NewError(passdoo.KindAuthInProgress, "a login is already in progress")
	}
	s.loginActive = true
	s.mu.Unlock()

	s.setState(StateAuthenticating, false)

	cred, err := s.loginOnce(ctx)

	s.mu.Lock()
	s.loginActive = false
	s.mu.Unlock()

	if err != nil {
		metrics.RecordLoginAttempt(strings.ToLower(string(passdoo.KindOf(err))))
		s.logger.Warn().Err(err).Msg("Login failed")

		// A failed login leaves any earlier session untouched
		record, readErr := s.sessions.GetSession(ctx)
		s.settle(readErr == nil && record != nil, false)
		return err
	}

	metrics.RecordLoginAttempt("success")
	s.logger.Info().Str("kind", string(cred.Kind)).Msg("Login succeeded")
	s.setState(StateAuthenticated, true)
	return nil
}

func (s *Service) loginOnce(ctx context.Context) (models.AuthCredential, error) {
	loginCtx, cancel := context.WithTimeout(ctx, s.config.LoginTimeout)
	defer cancel()

	s.logger.Info().Str("url", s.LoginURL()).Dur("timeout", s.config.LoginTimeout).Msg("Opening login window")

	cred, err := s.capture(loginCtx)
	if err != nil {
		return models.AuthCredential{}, err
	}

	record := &models.SessionRecord{Credential: cred, IssuedAt: s.now()}
	if err := s.sessions.SaveSession(ctx, record); err != nil {
		return models.AuthCredential{}, &passdoo.Error{Kind: passdoo.KindAuthFailed, Message: "failed to store session", Err: err}
	}
	return cred, nil
}

// CheckAuthStatus never fails. It clears a session that expired locally
// or that the backend no longer accepts, so callers must tolerate the
// record disappearing.
func (s *Service) CheckAuthStatus(ctx context.Context) bool {
	record, err := s.sessions.GetSession(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read session")
		return false
	}
	if record == nil {
		s.settle(false, false)
		return false
	}

	if record.Expired(s.now(), s.config.SessionTimeout) {
		s.expire(ctx, record.Credential, "local session timeout")
		return false
	}

	valid, err := s.api.Validate(ctx, record.Credential)
	if ctx.Err() != nil {
		// The caller went away; the answer says nothing about the session
		s.logger.Debug().Err(ctx.Err()).Msg("Session validation abandoned by caller")
		return false
	}
	if err != nil {
		if passdoo.IsKind(err, passdoo.KindVersionOutdated) {
			s.logger.Warn().Err(err).Msg("Client version outdated, forcing logout")
			s.Logout(ctx)
			return false
		}
		s.expire(ctx, record.Credential, "validation failed: "+err.Error())
		return false
	}
	if !valid {
		s.expire(ctx, record.Credential, "credential rejected by server")
		return false
	}

	s.settle(true, false)
	return true
}

// Logout revokes the credential remotely (best effort) and always clears
// the local session.
func (s *Service) Logout(ctx context.Context) {
	record, err := s.sessions.GetSession(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read session during logout")
	}

	if record != nil {
		remoteCtx, cancel := context.WithTimeout(ctx, remoteLogoutTimeout)
		if err := s.api.Logout(remoteCtx, record.Credential); err != nil {
			s.logger.Debug().Err(err).Msg("Remote logout failed, clearing local session anyway")
		}
		cancel()
	}

	if err := s.sessions.DeleteSession(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete session record")
	}

	s.logger.Info().Msg("Logged out")
	s.settle(false, true)
}

// CurrentCredential is a pure read of the stored credential, nil when absent
func (s *Service) CurrentCredential(ctx context.Context) (*models.AuthCredential, error) {
	record, err := s.sessions.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	cred := record.Credential
	return &cred, nil
}

// HandleAPIError tears the session down when err shows the backend
// rejected cred. VersionOutdated forces a full logout.
func (s *Service) HandleAPIError(ctx context.Context, cred models.AuthCredential, err error) {
	kind := passdoo.KindOf(err)
	switch {
	case kind == passdoo.KindVersionOutdated:
		s.logger.Warn().Msg("Client version outdated, forcing logout")
		s.Logout(ctx)
	case kind.SessionRejected():
		s.expire(ctx, cred, string(kind))
	}
}

// Adopt validates a credential obtained out of band and stores it
func (s *Service) Adopt(ctx context.Context, cred models.AuthCredential) error {
	if !cred.Valid() {
		return passdoo.NewError(passdoo.KindInvalidRequest, "credential is empty")
	}

	valid, err := s.api.Validate(ctx, cred)
	if err != nil {
		return err
	}
	if !valid {
		return passdoo.NewError(passdoo.KindAuthFailed, "credential rejected by server")
	}

	if err := s.sessions.SaveSession(ctx, &models.SessionRecord{Credential: cred, IssuedAt: s.now()}); err != nil {
		return &passdoo.Error{Kind: passdoo.KindAuthFailed, Message: "failed to store session", Err: err}
	}

	s.logger.Info().Str("kind", string(cred.Kind)).Msg("Credential adopted")
	s.settle(true, true)
	return nil
}

// expire removes the session only while it still holds cred, so a late
// failure for an old credential never destroys a newer session.
func (s *Service) expire(ctx context.Context, cred models.AuthCredential, reason string) {
	removed, err := s.sessions.DeleteSessionIf(ctx, cred)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to delete expired session")
		return
	}
	if !removed {
		return
	}

	s.logger.Info().Str("reason", reason).Msg("Session expired")
	s.settle(false, true)
}
