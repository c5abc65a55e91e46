package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/inneros/inneros/internal/ratelimit"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App          ApplicationConfig  `yaml:"app"`
	Vault        VaultConfig        `yaml:"vault"`
	SQLite       SQLiteConfig       `yaml:"sqlite"`
	Auth         AuthConfig         `yaml:"auth"`
	Daemon       DaemonConfig       `yaml:"daemon"`
	FileWatching FileWatchingConfig `yaml:"file_watching"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
	Handlers     HandlersConfig     `yaml:"handlers"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Daemon.Validate(); err != nil {
		return err
	}
	if err := c.FileWatching.Validate(); err != nil {
		return err
	}
	return c.Enrichment.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the layout of the Markdown vault.
type VaultConfig struct {
	Path      string `yaml:"path"`
	InboxDir  string `yaml:"inbox_dir"`
	BackupDir string `yaml:"backup_dir"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// JobConfig defines one scheduled automation job.
type JobConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Enabled  bool   `yaml:"enabled"`
}

// Validate validates a job definition. Schedule syntax is checked by the
// scheduler at definition time.
func (c *JobConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Schedule, validation.Required),
	)
}

// DaemonConfig holds automation daemon configuration.
type DaemonConfig struct {
	ShutdownTimeoutSeconds int         `yaml:"shutdown_timeout_seconds"`
	Jobs                   []JobConfig `yaml:"jobs"`
}

// ShutdownTimeout returns the in-flight drain bound for Stop.
func (c *DaemonConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// Validate validates the daemon configuration.
func (c *DaemonConfig) Validate() error {
	for i := range c.Jobs {
		if err := c.Jobs[i].Validate(); err != nil {
			return fmt.Errorf("daemon: job %d: %w", i, err)
		}
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.ShutdownTimeoutSeconds, validation.Min(0)),
	)
}

// FileWatchingConfig controls event filtering and debounce.
type FileWatchingConfig struct {
	DebounceSeconds float64  `yaml:"debounce_seconds"`
	IncludePatterns []string `yaml:"include_patterns"`
	IgnorePatterns  []string `yaml:"ignore_patterns"`
}

// Debounce returns the per-path quiet window.
func (c *FileWatchingConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds * float64(time.Second))
}

// Validate validates the file watching configuration.
func (c *FileWatchingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceSeconds, validation.Min(0.0)),
	)
}

// EnrichmentConfig holds the local LLM endpoint configuration.
type EnrichmentConfig struct {
	Endpoint         string  `yaml:"endpoint"`
	Model            string  `yaml:"model"`
	TimeoutSeconds   int     `yaml:"timeout_seconds"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// Timeout returns the per-request enrichment deadline.
func (c *EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the enrichment configuration.
func (c *EnrichmentConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.QualityThreshold, validation.Min(0.0), validation.Max(1.0)),
	)
}

// RateLimitConfig is the per-handler retry policy.
type RateLimitConfig struct {
	MaxRetries        int     `yaml:"max_retries"`
	BaseDelaySeconds  float64 `yaml:"base_delay_seconds"`
	MaxDelaySeconds   float64 `yaml:"max_delay_seconds"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// Limits converts the YAML fields to a ratelimit.Config. Zero fields fall
// back to the ratelimit defaults.
func (c *RateLimitConfig) Limits() ratelimit.Config {
	return ratelimit.Config{
		MaxRetries: c.MaxRetries,
		BaseDelay:  time.Duration(c.BaseDelaySeconds * float64(time.Second)),
		MaxDelay:   time.Duration(c.MaxDelaySeconds * float64(time.Second)),
		Multiplier: c.BackoffMultiplier,
	}
}

// HandlerConfig enables one feature handler and sets its retry policy.
type HandlerConfig struct {
	Enabled   bool            `yaml:"enabled"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// HandlersConfig holds per-feature handler configuration.
type HandlersConfig struct {
	Screenshot HandlerConfig `yaml:"screenshot"`
	SmartLink  HandlerConfig `yaml:"smart_link"`
	YouTube    HandlerConfig `yaml:"youtube"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	enabled := HandlerConfig{
		Enabled: true,
		RateLimit: RateLimitConfig{
			MaxRetries:        3,
			BaseDelaySeconds:  5,
			MaxDelaySeconds:   60,
			BackoffMultiplier: 2,
		},
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:      "./vault",
			InboxDir:  "Inbox",
			BackupDir: ".backups",
		},
		SQLite: SQLiteConfig{
			Path: "./inneros.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Daemon: DaemonConfig{
			ShutdownTimeoutSeconds: 30,
			Jobs: []JobConfig{
				{Name: "auto_promote", Schedule: "@hourly", Enabled: true},
				{Name: "index_sync", Schedule: "@every 15m", Enabled: true},
			},
		},
		FileWatching: FileWatchingConfig{
			DebounceSeconds: 2,
			IncludePatterns: []string{"*.md"},
		},
		Enrichment: EnrichmentConfig{
			Endpoint:         "http://localhost:11434",
			Model:            "llama3",
			TimeoutSeconds:   60,
			QualityThreshold: 0.7,
		},
		Handlers: HandlersConfig{
			Screenshot: enabled,
			SmartLink:  enabled,
			YouTube:    enabled,
		},
	}
}
