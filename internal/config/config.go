package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/papapumpkin/alka/internal/settings"
	"github.com/papapumpkin/alka/internal/telemetry"
)

// CatalogConfig holds settings for the remote catalog API client.
type CatalogConfig struct {
	BaseURL       string        `mapstructure:"base_url" validate:"required,url"`
	RatePerSecond float64       `mapstructure:"rate_per_second" validate:"gt=0"`
	MaxRetries    int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// SearchConfig holds settings for the catalog search box.
type SearchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" validate:"min=0"`
}

// UpdateConfig holds settings for the self-update check.
type UpdateConfig struct {
	ManifestURL    string        `mapstructure:"manifest_url" validate:"omitempty,url"`
	CurrentVersion string        `mapstructure:"current_version" validate:"required"`
	InitialDelay   time.Duration `mapstructure:"initial_delay" validate:"min=0"`
	Interval       time.Duration `mapstructure:"interval" validate:"gt=0"`
}

// BlurConfig holds the default cover blur threshold.
type BlurConfig struct {
	Threshold float64 `mapstructure:"threshold" validate:"min=0,max=2"`
}

// PresenceConfig holds the Discord application rich presence is shown
// under. An empty AppID turns presence off.
type PresenceConfig struct {
	AppID string `mapstructure:"app_id" validate:"omitempty,numeric"`
}

// TelemetryConfig toggles the local event log.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config holds all runtime configuration for an alka session.
// Values are populated from .alka.yaml, ALKA_* env vars, and CLI flags.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" validate:"required"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Search    SearchConfig    `mapstructure:"search"`
	Update    UpdateConfig    `mapstructure:"update"`
	Blur      BlurConfig      `mapstructure:"blur"`
	Presence  PresenceConfig  `mapstructure:"presence"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Verbose   bool            `mapstructure:"verbose"`
}

// DefaultPresenceAppID is the Discord application presence is shown under.
const DefaultPresenceAppID = "1454731999637147732"

// Version is stamped at build time with -ldflags.
var Version = "0.1.0"

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "alka")
	}
	return ".alka"
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("catalog.base_url", "https://api.vndb.org/kana")
	v.SetDefault("catalog.rate_per_second", 2.0)
	v.SetDefault("catalog.max_retries", 3)
	v.SetDefault("catalog.timeout", 15*time.Second)
	v.SetDefault("search.debounce", 300*time.Millisecond)
	v.SetDefault("update.manifest_url", "")
	v.SetDefault("update.current_version", Version)
	v.SetDefault("update.initial_delay", 3*time.Second)
	v.SetDefault("update.interval", 6*time.Hour)
	v.SetDefault("blur.threshold", 1.0)
	v.SetDefault("presence.app_id", DefaultPresenceAppID)
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("verbose", false)
}

// Load reads configuration from the global viper instance, applying
// built-in defaults for any values not set by config file, environment,
// or flags, and validates the result.
func Load() (Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom is Load over an explicit viper instance.
func LoadFrom(v *viper.Viper) (Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: validate: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q (got %v)", fieldKey(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
}

// fieldKey turns "Config.Catalog.BaseURL" into "Catalog.BaseURL".
func fieldKey(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

// DatabasePath is the SQLite file under the data directory.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "alka.db")
}

// SettingsPath is the user settings file under the data directory.
func (c Config) SettingsPath() string {
	return filepath.Join(c.DataDir, settings.FileName)
}

// EventsPath is the telemetry log under the data directory.
func (c Config) EventsPath() string {
	return filepath.Join(c.DataDir, telemetry.FileName)
}

// UpdatesDir is where downloaded update artifacts are staged.
func (c Config) UpdatesDir() string {
	return filepath.Join(c.DataDir, "updates")
}
