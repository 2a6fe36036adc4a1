package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the mirror.
type Config struct {
	// Remote platform settings
	Pixiv PixivConfig `yaml:"pixiv" json:"pixiv"`

	// Rate limiting for catalog page fetches
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Download worker settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Traversal / persistence settings
	Mirror MirrorConfig `yaml:"mirror" json:"mirror"`

	// Local storage locations
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Dashboard web service
	Web WebConfig `yaml:"web" json:"web"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PixivConfig holds remote-platform specific configuration.
type PixivConfig struct {
	Language    string `yaml:"language" json:"language"`
	UserAgent   string `yaml:"user_agent" json:"user_agent"`
	AccessToken string `yaml:"access_token" json:"access_token"`
	// Account name under which the refresh token is stored in pkg/session
	Account string `yaml:"account" json:"account"`
}

// RateLimitConfig holds rate limiting configuration for API calls.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DownloadConfig holds download-worker configuration.
type DownloadConfig struct {
	Concurrency     int           `yaml:"concurrency" json:"concurrency"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	RetryAttempts   int           `yaml:"retry_attempts" json:"retry_attempts"`
}

// MirrorConfig holds traversal and commit configuration.
type MirrorConfig struct {
	// BatchSize is the number of upserted works per metadata commit
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// PageRetries bounds retries of a single catalog page fetch
	PageRetries int `yaml:"page_retries" json:"page_retries"`
}

// StorageConfig holds local file and database locations.
type StorageConfig struct {
	WorksDirectory string `yaml:"works_directory" json:"works_directory"`
	DatabasePath   string `yaml:"database_path" json:"database_path"`
}

// WebConfig holds the dashboard listen address.
type WebConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	root := filepath.Join(home, ".pixmirror")

	return &Config{
		Pixiv: PixivConfig{
			Language:  "en",
			UserAgent: "PixivAndroidApp/5.0.234 (Android 11; Pixel 5)",
			Account:   "default",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Download: DownloadConfig{
			Concurrency:     4,
			DownloadTimeout: 60 * time.Second,
			RetryAttempts:   4,
		},
		Mirror: MirrorConfig{
			BatchSize:   30,
			PageRetries: 3,
		},
		Storage: StorageConfig{
			WorksDirectory: filepath.Join(root, "works"),
			DatabasePath:   filepath.Join(root, "mirror.db"),
		},
		Web: WebConfig{
			Addr: "127.0.0.1:8675",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and environment
// overrides, in that order.
func Load(path string) (*Config, error) {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file. An empty path falls back
// to the default locations; a missing default file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// findConfigFile checks the default config locations.
func (c *Config) findConfigFile() string {
	candidates := []string{"pixmirror.yaml", "pixmirror.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".pixmirror", "config.yaml"),
			filepath.Join(home, ".pixmirror.yaml"),
		)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadFromEnv loads configuration overrides from environment variables.
func (c *Config) LoadFromEnv() {
	if tok := os.Getenv("PIXMIRROR_ACCESS_TOKEN"); tok != "" {
		c.Pixiv.AccessToken = tok
	}
	if lang := os.Getenv("PIXMIRROR_LANGUAGE"); lang != "" {
		c.Pixiv.Language = lang
	}
	if ua := os.Getenv("PIXMIRROR_USER_AGENT"); ua != "" {
		c.Pixiv.UserAgent = ua
	}
	if v := os.Getenv("PIXMIRROR_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("PIXMIRROR_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Download.Concurrency = n
		}
	}
	if v := os.Getenv("PIXMIRROR_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Mirror.BatchSize = n
		}
	}
	if dir := os.Getenv("PIXMIRROR_WORKS_DIR"); dir != "" {
		c.Storage.WorksDirectory = dir
	}
	if p := os.Getenv("PIXMIRROR_DB_PATH"); p != "" {
		c.Storage.DatabasePath = p
	}
	if addr := os.Getenv("PIXMIRROR_WEB_ADDR"); addr != "" {
		c.Web.Addr = addr
	}
	if lvl := os.Getenv("PIXMIRROR_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Download.Concurrency < 1 {
		return fmt.Errorf("download concurrency must be at least 1, got %d", c.Download.Concurrency)
	}
	if c.Mirror.BatchSize < 1 {
		return fmt.Errorf("mirror batch size must be at least 1, got %d", c.Mirror.BatchSize)
	}
	if c.Download.RetryAttempts < 1 {
		return fmt.Errorf("download retry attempts must be at least 1, got %d", c.Download.RetryAttempts)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}
