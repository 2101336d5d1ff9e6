package paragraf

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/khjohns/paragraf/ingest"
)

// Config holds all configuration for the paragraf service.
type Config struct {
	// CacheDir holds the embedded database and the per-dataset
	// extracted document files. Defaults to ~/.paragraf.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// DatabaseURL enables the relational backend when set; otherwise
	// the embedded SQLite database under CacheDir is used.
	DatabaseURL string `json:"database_url" yaml:"database_url"`

	// LovdataBaseURL overrides the public-data API root (tests).
	LovdataBaseURL string `json:"lovdata_base_url" yaml:"lovdata_base_url"`

	// EmbeddingAPIKey enables hybrid search when set.
	EmbeddingAPIKey string `json:"embedding_api_key" yaml:"embedding_api_key"`

	// FTSWeight balances lexical rank against cosine similarity in
	// hybrid search (0..1).
	FTSWeight float64 `json:"fts_weight" yaml:"fts_weight"`

	// Retry tunes the ingest retry loop.
	Retry ingest.RetryConfig `json:"retry" yaml:"retry"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		FTSWeight: 0.5,
		Retry:     ingest.DefaultRetryConfig(),
	}
}

// FromEnv builds a Config from the environment.
func FromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("PARAGRAF_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LOVDATA_BASE_URL"); v != "" {
		cfg.LovdataBaseURL = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.EmbeddingAPIKey = v
	}
	if v := os.Getenv("PARAGRAF_FTS_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(v, 64); err == nil && w >= 0 && w <= 1 {
			cfg.FTSWeight = w
		}
	}

	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("BACKOFF_BASE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Retry.BackoffBase = d
		}
	}
	if v := os.Getenv("BACKOFF_MAX"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Retry.BackoffMax = d
		}
	}
	if v := os.Getenv("JITTER"); v != "" {
		if j, err := strconv.ParseFloat(v, 64); err == nil && j >= 0 && j <= 1 {
			cfg.Retry.Jitter = j
		}
	}
	return cfg
}

// resolveCacheDir computes the cache directory, defaulting to
// ~/.paragraf with a working-directory fallback.
func (c *Config) resolveCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paragraf"
	}
	return filepath.Join(home, ".paragraf")
}
