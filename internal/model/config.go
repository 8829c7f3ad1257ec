package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// OAuthClientConfig holds the registered OAuth application for one provider.
type OAuthClientConfig struct {
	// ClientID is the application identifier issued by the provider.
	ClientID string `mapstructure:"client_id" yaml:"client_id"`

	// ClientSecret is the application secret issued by the provider.
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`

	// RedirectURL is the callback the provider redirects to after consent.
	RedirectURL string `mapstructure:"redirect_url" yaml:"redirect_url"`
}

// CacheConfig holds sync cache tuning.
type CacheConfig struct {
	// TTLSec is the freshness window applied to each account's entry.
	TTLSec int `mapstructure:"ttl_sec" yaml:"ttl_sec"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	// Listen is the HTTP listen address.
	Listen string `mapstructure:"listen" yaml:"listen"`

	// DatabasePath is the SQLite database file location.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	// Secret is the process-wide secret the token encryption key is
	// derived from. Must be set to a non-default value in production.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// Timezone is the IANA zone used to slot items into board days.
	Timezone string `mapstructure:"timezone" yaml:"timezone"`

	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// OAuth maps provider type to its registered OAuth application.
	OAuth map[string]OAuthClientConfig `mapstructure:"oauth" yaml:"oauth"`
}

// CacheTTL returns the configured freshness window as a duration.
func (c *AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSec) * time.Second
}

// Location resolves the configured timezone.
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/email-kanban/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "email-kanban", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Listen:       "127.0.0.1:8001",
		DatabasePath: filepath.Join("data", "kanban.db"),
		Secret:       "change-me-in-production",
		Timezone:     "Europe/Paris",
		Cache:        CacheConfig{TTLSec: 300},
		OAuth:        map[string]OAuthClientConfig{},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("listen", "127.0.0.1:8001")
	v.SetDefault("database_path", filepath.Join("data", "kanban.db"))
	v.SetDefault("secret", "change-me-in-production")
	v.SetDefault("timezone", "Europe/Paris")
	v.SetDefault("cache.ttl_sec", 300)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("listen", cfg.Listen)
	v.Set("database_path", cfg.DatabasePath)
	v.Set("secret", cfg.Secret)
	v.Set("timezone", cfg.Timezone)
	v.Set("cache", cfg.Cache)
	v.Set("oauth", cfg.OAuth)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
