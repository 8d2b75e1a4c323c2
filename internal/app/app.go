package app

import (
	"context"
	"fmt"
	"net/http"
	"path"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/handlers"
	"github.com/balduz84/passdoo/internal/interfaces"
	"github.com/balduz84/passdoo/internal/models"
	"github.com/balduz84/passdoo/internal/passdoo"
	"github.com/balduz84/passdoo/internal/router"
	"github.com/balduz84/passdoo/internal/services/auth"
	"github.com/balduz84/passdoo/internal/services/passwords"
	"github.com/balduz84/passdoo/internal/services/scheduler"
	"github.com/balduz84/passdoo/internal/storage"
	"github.com/ternarybob/arbor"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Remote API
	Client *passdoo.Client

	// Session Manager and Credential Cache
	AuthService      *auth.Service
	PasswordService  *passwords.Service
	SchedulerService *scheduler.Service

	// Message Router
	Router *router.Router

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	MessageHandler *handlers.MessageHandler
	WSHandler      *handlers.WebSocketHandler

	unsubscribeCache func()
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.StorageManager.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("base_url", cfg.Passdoo.BaseURL).
		Str("state", string(app.AuthService.State())).
		Bool("refresh_enabled", cfg.Refresh.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices wires the client, the Session Manager and the Credential Cache
func (a *App) initServices() error {
	cfg := a.Config

	a.Client = passdoo.NewClient(cfg.Passdoo.BaseURL,
		passdoo.WithLogger(a.Logger),
		passdoo.WithTimeout(cfg.Passdoo.RequestTimeoutDuration()),
		passdoo.WithRateLimit(cfg.Passdoo.RateLimitInterval()),
		passdoo.WithClientVersion(cfg.Passdoo.Version()),
		passdoo.WithClientType(cfg.Passdoo.ClientType),
	)

	surface := auth.NewBrowserSurface(cfg.Auth.Browser, a.Logger)
	a.AuthService = auth.NewService(a.Client, a.StorageManager.SessionStorage(), surface, auth.NewConfig(cfg), a.Logger)

	var mirror interfaces.CacheStorage
	if cfg.Cache.Mirror {
		mirror = a.StorageManager.CacheStorage()
	}
	a.PasswordService = passwords.NewService(a.Client, a.AuthService, mirror, cfg.Cache.TTLDuration(), a.Logger)

	// Any session change makes the cached list untrustworthy
	a.unsubscribeCache = a.AuthService.Subscribe(func(state auth.State) {
		a.PasswordService.Invalidate(context.Background())
	})

	a.Router = router.New(a.AuthService, a.PasswordService, a.StorageManager, cfg, a.Logger)

	a.SchedulerService = scheduler.NewService(a.AuthService, a.PasswordService, a.StorageManager.CacheStorage(), a.Logger)
	if cfg.Refresh.Enabled {
		if err := a.SchedulerService.Start(cfg.Refresh.Schedule); err != nil {
			return fmt.Errorf("failed to start refresh scheduler: %w", err)
		}
	}

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.AuthService, a.Logger)
	a.MessageHandler = handlers.NewMessageHandler(a.Router, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.Router, a.AuthService, a.OriginAllowed, a.Logger)
}

// Login runs the interactive sign-in and then saves any credential the
// user captured while signed out
func (a *App) Login(ctx context.Context) error {
	if err := a.AuthService.Login(ctx); err != nil {
		return err
	}
	a.Router.PromotePending(ctx)
	return nil
}

// Adopt stores an API token as the session, with the same follow-up as Login
func (a *App) Adopt(ctx context.Context, cred models.AuthCredential) error {
	if err := a.AuthService.Adopt(ctx, cred); err != nil {
		return err
	}
	a.Router.PromotePending(ctx)
	return nil
}

// OriginAllowed reports whether a request comes from a permitted front-end.
// Requests without an Origin header are local tools and always allowed.
func (a *App) OriginAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return MatchOrigin(a.Config.Server.AllowedOrigins, origin)
}

// MatchOrigin tests origin against glob patterns such as "chrome-extension://*"
func MatchOrigin(patterns []string, origin string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, origin); err == nil && ok {
			return true
		}
	}
	return false
}

// Close stops background work and releases storage
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.WSHandler != nil {
		a.WSHandler.Close()
	}

	if a.unsubscribeCache != nil {
		a.unsubscribeCache()
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
