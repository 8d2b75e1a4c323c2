package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the agent configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Passdoo     PassdooConfig `toml:"passdoo"`
	Auth        AuthConfig    `toml:"auth"`
	Cache       CacheConfig   `toml:"cache"`
	Refresh     RefreshConfig `toml:"refresh"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port           int      `toml:"port" validate:"min=1,max=65535"`
	Host           string   `toml:"host" validate:"required"`
	AllowedOrigins []string `toml:"allowed_origins"` // Glob patterns, e.g. "chrome-extension://*"
}

// PassdooConfig describes the remote backend
type PassdooConfig struct {
	BaseURL        string `toml:"base_url" validate:"required,url"`
	ClientVersion  string `toml:"client_version"` // Empty = build version
	ClientType     string `toml:"client_type" validate:"required"`
	RequestTimeout string `toml:"request_timeout"` // e.g. "30s"
	RateLimit      string `toml:"rate_limit"`      // Minimum spacing between calls, e.g. "100ms". Empty disables.
}

// AuthConfig controls the interactive login and local session expiry
type AuthConfig struct {
	LoginPath      string        `toml:"login_path" validate:"required"`
	RedirectPath   string        `toml:"redirect_path" validate:"required"`
	CallbackPath   string        `toml:"callback_path" validate:"required"`
	LandingPath    string        `toml:"landing_path" validate:"required"`
	SessionCookie  string        `toml:"session_cookie" validate:"required"`
	SessionTimeout string        `toml:"session_timeout"` // Cookie sessions only
	LoginTimeout   string        `toml:"login_timeout"`
	FallbackDelay  string        `toml:"fallback_delay"` // Delay before re-reading the window URL
	Browser        BrowserConfig `toml:"browser"`
}

// BrowserConfig configures the chromedp-driven login window
type BrowserConfig struct {
	ExecPath    string `toml:"exec_path"`
	UserDataDir string `toml:"user_data_dir"`
	Headless    bool   `toml:"headless"`
	Width       int    `toml:"width" validate:"min=200"`
	Height      int    `toml:"height" validate:"min=200"`
}

type CacheConfig struct {
	TTL    string `toml:"ttl"`
	Mirror bool   `toml:"mirror"` // Mirror the credential list into the durable store
}

type RefreshConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron expression or descriptor, e.g. "@every 5m"
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8765,
			Host: "127.0.0.1",
			AllowedOrigins: []string{
				"chrome-extension://*",
				"moz-extension://*",
				"http://localhost:*",
				"http://127.0.0.1:*",
			},
		},
		Passdoo: PassdooConfig{
			BaseURL:        "https://portal.novacs.net",
			ClientType:     "browser-extension",
			RequestTimeout: "30s",
			RateLimit:      "100ms",
		},
		Auth: AuthConfig{
			LoginPath:      "/web/login",
			RedirectPath:   "/passdoo/api/extension/auth",
			CallbackPath:   "/passdoo/api/extension/callback",
			LandingPath:    "/web",
			SessionCookie:  "session_id",
			SessionTimeout: "30m",
			LoginTimeout:   "5m",
			FallbackDelay:  "1s",
			Browser: BrowserConfig{
				Width:  500,
				Height: 700,
			},
		},
		Cache: CacheConfig{
			TTL:    "5m",
			Mirror: true,
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Schedule: "@every 5m",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/passdoo",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// CLI flags are applied afterwards by the caller via ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies PASSDOO_* environment variables to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PASSDOO_ENV"); env != "" {
		config.Environment = env
	}

	// Server
	if port := os.Getenv("PASSDOO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PASSDOO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if origins := os.Getenv("PASSDOO_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = splitList(origins)
	}

	// Backend
	if baseURL := os.Getenv("PASSDOO_BASE_URL"); baseURL != "" {
		config.Passdoo.BaseURL = baseURL
	}
	if clientVersion := os.Getenv("PASSDOO_CLIENT_VERSION"); clientVersion != "" {
		config.Passdoo.ClientVersion = clientVersion
	}
	if requestTimeout := os.Getenv("PASSDOO_REQUEST_TIMEOUT"); requestTimeout != "" {
		config.Passdoo.RequestTimeout = requestTimeout
	}
	if rateLimit := os.Getenv("PASSDOO_RATE_LIMIT"); rateLimit != "" {
		config.Passdoo.RateLimit = rateLimit
	}

	// Auth
	if sessionTimeout := os.Getenv("PASSDOO_SESSION_TIMEOUT"); sessionTimeout != "" {
		config.Auth.SessionTimeout = sessionTimeout
	}
	if loginTimeout := os.Getenv("PASSDOO_LOGIN_TIMEOUT"); loginTimeout != "" {
		config.Auth.LoginTimeout = loginTimeout
	}
	if execPath := os.Getenv("PASSDOO_BROWSER_EXEC_PATH"); execPath != "" {
		config.Auth.Browser.ExecPath = execPath
	}
	if userDataDir := os.Getenv("PASSDOO_BROWSER_USER_DATA_DIR"); userDataDir != "" {
		config.Auth.Browser.UserDataDir = userDataDir
	}
	if headless := os.Getenv("PASSDOO_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Auth.Browser.Headless = h
		}
	}

	// Cache and refresh
	if ttl := os.Getenv("PASSDOO_CACHE_TTL"); ttl != "" {
		config.Cache.TTL = ttl
	}
	if mirror := os.Getenv("PASSDOO_CACHE_MIRROR"); mirror != "" {
		if m, err := strconv.ParseBool(mirror); err == nil {
			config.Cache.Mirror = m
		}
	}
	if enabled := os.Getenv("PASSDOO_REFRESH_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Refresh.Enabled = e
		}
	}
	if schedule := os.Getenv("PASSDOO_REFRESH_SCHEDULE"); schedule != "" {
		config.Refresh.Schedule = schedule
	}

	// Storage
	if badgerPath := os.Getenv("PASSDOO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging
	if level := os.Getenv("PASSDOO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PASSDOO_LOG_OUTPUT"); output != "" {
		config.Logging.Output = splitList(output)
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, baseURL string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if baseURL != "" {
		config.Passdoo.BaseURL = baseURL
	}
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Refresh.Enabled {
		if err := ValidateSchedule(c.Refresh.Schedule); err != nil {
			return fmt.Errorf("invalid refresh schedule: %w", err)
		}
	}
	return nil
}

// ValidateSchedule validates a cron expression or descriptor such as "@every 5m"
func ValidateSchedule(schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return fmt.Errorf("schedule is empty")
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// Version returns the client version reported to the backend
func (c *PassdooConfig) Version() string {
	if c.ClientVersion != "" {
		return c.ClientVersion
	}
	return GetVersion()
}

func (c *PassdooConfig) RequestTimeoutDuration() time.Duration {
	return ParseDuration(c.RequestTimeout, 30*time.Second)
}

// RateLimitInterval returns zero when throttling is disabled
func (c *PassdooConfig) RateLimitInterval() time.Duration {
	if strings.TrimSpace(c.RateLimit) == "" {
		return 0
	}
	return ParseDuration(c.RateLimit, 0)
}

func (c *AuthConfig) SessionTimeoutDuration() time.Duration {
	return ParseDuration(c.SessionTimeout, 30*time.Minute)
}

func (c *AuthConfig) LoginTimeoutDuration() time.Duration {
	return ParseDuration(c.LoginTimeout, 5*time.Minute)
}

func (c *AuthConfig) FallbackDelayDuration() time.Duration {
	return ParseDuration(c.FallbackDelay, time.Second)
}

func (c *CacheConfig) TTLDuration() time.Duration {
	return ParseDuration(c.TTL, 5*time.Minute)
}

// ParseDuration parses s, returning fallback when s is empty or invalid
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
