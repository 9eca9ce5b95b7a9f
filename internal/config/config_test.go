package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8585", cfg.ServerPort)
	assert.Equal(t, StoreSurreal, cfg.StoreBackend)
	assert.Equal(t, ProviderOllama, cfg.LLMProvider)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.SkipInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORTAL_STORE", "sqlite")
	t.Setenv("PORTAL_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("PORTAL_RETRY_BASE_DELAY", "1s")
	t.Setenv("PORTAL_CACHE_SIZE", "not-a-number")
	t.Setenv("PORTAL_LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, StoreSQLite, cfg.StoreBackend)
	assert.Equal(t, 5, cfg.RetryMaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, 256, cfg.CacheSize, "invalid ints fall back to default")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.in))
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cat, err := LoadCatalog("")
		require.NoError(t, err)
		assert.Equal(t, "Mindfulness Meditation", cat.Podcast.DefaultTopic)
		assert.Len(t, cat.Stocks.Filters, 4)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		yml := `
podcast:
  default_topic: Deep Sea Creatures
stocks:
  filters:
    - name: Wide Moats
      metric: moat
      op: ">="
      threshold: 80
`
		require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

		cat, err := LoadCatalog(path)
		require.NoError(t, err)
		assert.Equal(t, "Deep Sea Creatures", cat.Podcast.DefaultTopic)
		require.Len(t, cat.Stocks.Filters, 1)
		assert.Equal(t, 80.0, cat.Stocks.Filters[0].Threshold)
		assert.Equal(t, "Global Markets Overview", cat.Markets.DefaultTopic, "untouched sections keep defaults")
	})

	t.Run("rejects unknown operator", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		yml := "stocks:\n  filters:\n    - name: X\n      metric: moat\n      op: \"==\"\n      threshold: 1\n"
		require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

		_, err := LoadCatalog(path)
		assert.Error(t, err)
	})
}

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("hello", "k", "v")
	logger.Debug("hidden")

	assert.Contains(t, stderr.String(), "msg=hello")
	assert.Contains(t, file.String(), `"msg":"hello"`)
	assert.NotContains(t, file.String(), "hidden")
}
