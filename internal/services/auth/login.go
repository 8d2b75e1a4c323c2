package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
)

// LoginSurface opens the interactive authorization window
type LoginSurface interface {
	Open(ctx context.Context, loginURL string) (Window, error)
}

// Window is one open login surface. Close releases every listener
// and must be safe to call more than once.
type Window interface {
	// Navigations delivers every top-level URL the window visits
	Navigations() <-chan string
	// Closed is closed when the user closes the window
	Closed() <-chan struct{}
	CurrentURL(ctx context.Context) (string, error)
	Cookies(ctx context.Context, rawURL string) ([]*http.Cookie, error)
	Close() error
}

type navigationKind int

const (
	navigationIgnored navigationKind = iota
	navigationCredential
	navigationCallbackEmpty
)

type recheckResult struct {
	cred models.AuthCredential
	kind navigationKind
	err  error
}

// LoginURL is the backend login entry point carrying the redirect target
func (s *Service) LoginURL() string {
	return s.config.BaseURL + s.config.LoginPath + "?redirect=" + s.config.RedirectPath
}

// capture waits for the window to yield a credential. Navigation events and
// a delayed URL re-read race; the first credential wins and the other is
// cancelled. The window is closed on every exit path.
func (s *Service) capture(ctx context.Context) (models.AuthCredential, error) {
	window, err := s.surface.Open(ctx, s.LoginURL())
	if err != nil {
		return models.AuthCredential{}, &passdoo.Error{Kind: passdoo.KindAuthFailed, Message: "failed to open login window", Err: err}
	}
	defer func() {
		if err := window.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to close login window")
		}
	}()

	recheckCtx, cancelRecheck := context.WithCancel(ctx)
	defer cancelRecheck()

	var recheck chan recheckResult
	navigations := window.Navigations()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return models.AuthCredential{}, &passdoo.Error{Kind: passdoo.KindAuthTimeout, Message: "login timed out", Err: ctx.Err()}
			}
			return models.AuthCredential{}, &passdoo.Error{Kind: passdoo.KindAuthFailed, Message: "login cancelled", Err: ctx.Err()}

		case <-window.Closed():
			return models.AuthCredential{}, passdoo.NewError(passdoo.KindAuthFailed, "login window closed")

		case rawURL, ok := <-navigations:
			if !ok {
				navigations = nil
				continue
			}
			cred, kind := s.inspect(ctx, window, rawURL)
			switch kind {
			case navigationCredential:
				s.logger.Debug().Str("kind", string(cred.Kind)).Msg("Credential captured from navigation")
				return cred, nil
			case navigationCallbackEmpty:
				if recheck == nil {
					recheck = make(chan recheckResult, 1)
					go s.recheck(recheckCtx, window, recheck)
				}
			}

		case result := <-recheck:
			recheck = nil
			if result.kind == navigationCredential {
				s.logger.Debug().Str("kind", string(result.cred.Kind)).Msg("Credential captured from delayed URL read")
				return result.cred, nil
			}
			return models.AuthCredential{}, &passdoo.Error{Kind: passdoo.KindAuthFailed, Message: "callback carried no credential", Err: result.err}
		}
	}
}

// recheck re-reads the window URL after the fallback delay
func (s *Service) recheck(ctx context.Context, window Window, out chan<- recheckResult) {
	timer := time.NewTimer(s.config.FallbackDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	current, err := window.CurrentURL(ctx)
	if err != nil {
		out <- recheckResult{err: fmt.Errorf("failed to read window URL: %w", err)}
		return
	}

	cred, kind := s.inspect(ctx, window, current)
	out <- recheckResult{cred: cred, kind: kind}
}

// inspect recognizes the callback URL or the post-login landing page
func (s *Service) inspect(ctx context.Context, window Window, rawURL string) (models.AuthCredential, navigationKind) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return models.AuthCredential{}, navigationIgnored
	}

	if strings.Contains(u.Path, s.config.CallbackPath) {
		if cred, ok := credentialFromQuery(u.Query()); ok {
			return cred, navigationCredential
		}
		// Some deployments put the parameters after the fragment
		if fragment, err := url.ParseQuery(u.Fragment); err == nil {
			if cred, ok := credentialFromQuery(fragment); ok {
				return cred, navigationCredential
			}
		}
		return models.AuthCredential{}, navigationCallbackEmpty
	}

	if s.isLanding(rawURL) {
		cookies, err := window.Cookies(ctx, s.config.BaseURL)
		if err != nil {
			s.logger.Debug().Err(err).Msg("Failed to read login window cookies")
			return models.AuthCredential{}, navigationIgnored
		}
		for _, cookie := range cookies {
			if cookie.Name == s.config.SessionCookie && cookie.Value != "" {
				return models.NewSessionCookie(cookie.Value), navigationCredential
			}
		}
	}

	return models.AuthCredential{}, navigationIgnored
}

func (s *Service) isLanding(rawURL string) bool {
	if strings.Contains(rawURL, s.config.LandingPath+"#") {
		return true
	}
	return strings.TrimRight(rawURL, "/") == s.config.BaseURL+s.config.LandingPath
}

func credentialFromQuery(values url.Values) (models.AuthCredential, bool) {
	if token := values.Get("token"); token != "" {
		return models.NewBearerToken(token), true
	}
	if sessionID := values.Get("session_id"); sessionID != "" {
		return models.NewSessionCookie(sessionID), true
	}
	return models.AuthCredential{}, false
}
