package paragraf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 0.5, cfg.FTSWeight)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Retry.BackoffMax)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PARAGRAF_CACHE_DIR", "/tmp/paragraf-test")
	t.Setenv("DATABASE_URL", "postgres://localhost/paragraf")
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("PARAGRAF_FTS_WEIGHT", "0.7")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("BACKOFF_BASE", "1s")
	t.Setenv("BACKOFF_MAX", "10s")
	t.Setenv("JITTER", "0.2")

	cfg := FromEnv()
	assert.Equal(t, "/tmp/paragraf-test", cfg.CacheDir)
	assert.Equal(t, "postgres://localhost/paragraf", cfg.DatabaseURL)
	assert.Equal(t, "key-123", cfg.EmbeddingAPIKey)
	assert.Equal(t, 0.7, cfg.FTSWeight)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BackoffBase)
	assert.Equal(t, 10*time.Second, cfg.Retry.BackoffMax)
	assert.Equal(t, 0.2, cfg.Retry.Jitter)
}

func TestFromEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("PARAGRAF_FTS_WEIGHT", "seven")
	t.Setenv("MAX_ATTEMPTS", "-2")
	t.Setenv("BACKOFF_BASE", "nonsense")

	cfg := FromEnv()
	assert.Equal(t, DefaultConfig().FTSWeight, cfg.FTSWeight)
	assert.Equal(t, DefaultConfig().Retry.MaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, DefaultConfig().Retry.BackoffBase, cfg.Retry.BackoffBase)
}

func TestResolveCacheDir(t *testing.T) {
	cfg := Config{CacheDir: "/data/paragraf"}
	assert.Equal(t, "/data/paragraf", cfg.resolveCacheDir())

	cfg = Config{}
	dir := cfg.resolveCacheDir()
	assert.Contains(t, dir, ".paragraf")
}
