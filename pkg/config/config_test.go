package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "en", cfg.Pixiv.Language)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 4, cfg.Download.Concurrency)
	assert.Equal(t, 60*time.Second, cfg.Download.DownloadTimeout)
	assert.Equal(t, 30, cfg.Mirror.BatchSize)
	assert.Equal(t, 3, cfg.Mirror.PageRetries)
	assert.NotEmpty(t, cfg.Storage.WorksDirectory)
	assert.NotEmpty(t, cfg.Storage.DatabasePath)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixmirror.yaml")
	content := `
pixiv:
  language: zh-cn
download:
  concurrency: 8
mirror:
  batch_size: 10
storage:
  works_directory: /data/works
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "zh-cn", cfg.Pixiv.Language)
	assert.Equal(t, 8, cfg.Download.Concurrency)
	assert.Equal(t, 10, cfg.Mirror.BatchSize)
	assert.Equal(t, "/data/works", cfg.Storage.WorksDirectory)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched sections keep defaults
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pixiv: [not a map"), 0o644))

	cfg := DefaultConfig()
	assert.Error(t, cfg.LoadFromFile(path))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PIXMIRROR_ACCESS_TOKEN", "env-token")
	t.Setenv("PIXMIRROR_LANGUAGE", "de")
	t.Setenv("PIXMIRROR_CONCURRENCY", "12")
	t.Setenv("PIXMIRROR_BATCH_SIZE", "5")
	t.Setenv("PIXMIRROR_DB_PATH", "/tmp/m.db")
	t.Setenv("PIXMIRROR_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, "env-token", cfg.Pixiv.AccessToken)
	assert.Equal(t, "de", cfg.Pixiv.Language)
	assert.Equal(t, 12, cfg.Download.Concurrency)
	assert.Equal(t, 5, cfg.Mirror.BatchSize)
	assert.Equal(t, "/tmp/m.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv("PIXMIRROR_CONCURRENCY", "not-a-number")
	t.Setenv("PIXMIRROR_BATCH_SIZE", "-2")

	cfg := DefaultConfig()
	cfg.LoadFromEnv()

	assert.Equal(t, 4, cfg.Download.Concurrency)
	assert.Equal(t, 30, cfg.Mirror.BatchSize)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Download.Concurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Mirror.BatchSize = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Download.RetryAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Logging.Level = "chatty"
	assert.Error(t, cfg.Validate())
}
