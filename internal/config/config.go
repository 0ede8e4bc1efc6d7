// Package config loads scribe's settings from a YAML file, the environment and .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const tokenPlaceholder = "${SCRIBE_API_TOKEN}"

type Config struct {
	API      APIConfig      `yaml:"api"`
	Autosave AutosaveConfig `yaml:"autosave"`
	Limits   Limits         `yaml:"limits"`
	Paths    PathsConfig    `yaml:"paths"`
}

// APIConfig points at the document backend. An empty BaseURL means offline mode.
type APIConfig struct {
	BaseURL   string          `yaml:"base_url" validate:"omitempty,url"`
	Token     string          `yaml:"token"`
	Timeout   time.Duration   `yaml:"timeout" validate:"min=1s,max=10m"`
	Retries   int             `yaml:"retries" validate:"min=0,max=10"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"required,min=1,max=6000"`
	BurstSize         int `yaml:"burst_size" validate:"required,min=1,max=200"`
}

type AutosaveConfig struct {
	Debounce       time.Duration `yaml:"debounce" validate:"min=50ms,max=1m"`
	LongFormWindow time.Duration `yaml:"long_form_window" validate:"min=1s,max=24h"`
	EchoGrace      time.Duration `yaml:"echo_grace" validate:"min=0,max=10s"`
	SaveTimeout    time.Duration `yaml:"save_timeout" validate:"min=1s,max=10m"`
}

type PathsConfig struct {
	DataDir string `yaml:"data_dir" validate:"required"`
}

// Offline reports whether no backend is configured
func (c *Config) Offline() bool {
	return c.API.BaseURL == ""
}

// DefaultConfig returns a complete offline configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Timeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 600,
				BurstSize:         20,
			},
		},
		Autosave: AutosaveConfig{
			Debounce:       500 * time.Millisecond,
			LongFormWindow: 20 * time.Minute,
			EchoGrace:      150 * time.Millisecond,
			SaveTimeout:    30 * time.Second,
		},
		Limits: DefaultLimits(),
		Paths:  PathsConfig{DataDir: defaultDataDir()},
	}
}

// Load reads the config file at path, or the default location when path is empty.
// A missing file yields the defaults. Environment variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = getConfigPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if url := os.Getenv("SCRIBE_API_URL"); url != "" {
		c.API.BaseURL = url
	}
	if c.API.Token == "" || c.API.Token == tokenPlaceholder {
		c.API.Token = os.Getenv("SCRIBE_API_TOKEN")
	}
	if dir := os.Getenv("SCRIBE_DATA_DIR"); dir != "" {
		c.Paths.DataDir = dir
	}
}

func getConfigPath() string {
	if path := os.Getenv("SCRIBE_CONFIG"); path != "" {
		return path
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "scribe", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "scribe", "config.yaml")
}

func defaultDataDir() string {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "scribe")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "scribe")
}

// expandTilde expands a tilde (~) at the beginning of a path to the user's home directory
func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func (c *Config) validate() error {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = defaultDataDir()
	} else {
		c.Paths.DataDir = expandTilde(c.Paths.DataDir)
	}
	if c.Limits.MaxSnapshots == 0 {
		c.Limits = DefaultLimits()
	}

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Save writes cfg to path, creating the directory. The token is never written;
// a placeholder naming the environment variable takes its place.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = getConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	cfgToSave := *cfg
	cfgToSave.API.Token = tokenPlaceholder

	data, err := yaml.Marshal(&cfgToSave)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Path returns the config file location Load uses when given no path
func Path() string {
	return getConfigPath()
}
