// Package embedder generates query and section embeddings through the
// Gemini embedContent REST API. Results for queries are memoized in a
// bounded LRU keyed by the raw input string, since assistants tend to
// repeat searches verbatim.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Defaults matching the production embedding setup.
const (
	DefaultModel   = "gemini-embedding-001"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// Dim is the embedding dimension used across the store schema.
	Dim = 1536

	cacheSize      = 1000
	requestTimeout = 30 * time.Second
)

// Task types accepted by the API.
const (
	TaskQuery    = "RETRIEVAL_QUERY"
	TaskDocument = "RETRIEVAL_DOCUMENT"
)

// ErrNoAPIKey is returned by New when no API key is configured.
var ErrNoAPIKey = errors.New("embedder: api key not set")

// Config configures the client.
type Config struct {
	APIKey  string
	Model   string // defaults to DefaultModel
	BaseURL string // defaults to DefaultBaseURL
	Dim     int    // defaults to Dim
}

// Client is a thread-safe embedding client with an LRU query cache.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	dim     int
	httpc   *http.Client
	cache   *lru.Cache[string, []float32]
}

// New creates a client. The cache is shared by all callers; the LRU
// serializes its own access.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dim == 0 {
		cfg.Dim = Dim
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Client{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: cfg.BaseURL,
		dim:     cfg.Dim,
		httpc:   &http.Client{Timeout: requestTimeout},
		cache:   cache,
	}, nil
}

type embedRequest struct {
	Model   string `json:"model"`
	Content struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"content"`
	TaskType             string `json:"taskType"`
	OutputDimensionality int    `json:"outputDimensionality"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// EmbedQuery embeds a search query, memoizing by the raw string.
func (c *Client) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	if v, ok := c.cache.Get(query); ok {
		return v, nil
	}
	v, err := c.Embed(ctx, query, TaskQuery)
	if err != nil {
		return nil, err
	}
	c.cache.Add(query, v)
	return v, nil
}

// Embed calls the embedContent endpoint and returns a unit-norm vector
// of the configured dimension.
func (c *Client) Embed(ctx context.Context, text, task string) ([]float32, error) {
	req := embedRequest{
		Model:                "models/" + c.model,
		TaskType:             task,
		OutputDimensionality: c.dim,
	}
	req.Content.Parts = []struct {
		Text string `json:"text"`
	}{{Text: text}}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:embedContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedder: status %d: %s", resp.StatusCode, b)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("embedder: decoding response: %w", err)
	}
	if len(er.Embedding.Values) != c.dim {
		return nil, fmt.Errorf("embedder: got %d dims, want %d", len(er.Embedding.Values), c.dim)
	}
	return Normalize(er.Embedding.Values), nil
}

// Normalize scales a vector to unit length. Zero vectors pass through.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
