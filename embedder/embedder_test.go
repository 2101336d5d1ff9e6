package embedder

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, calls *atomic.Int64, values []float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "models/"+DefaultModel, req.Model)
		assert.NotEmpty(t, req.Content.Parts)

		resp := embedResponse{}
		resp.Embedding.Values = values
		json.NewEncoder(w).Encode(resp)
	}))
}

func testClient(t *testing.T, baseURL string, dim int) *Client {
	t.Helper()
	c, err := New(Config{APIKey: "test-key", BaseURL: baseURL, Dim: dim})
	require.NoError(t, err)
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestEmbedNormalizes(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, &calls, []float32{3, 4, 0, 0})
	defer srv.Close()

	c := testClient(t, srv.URL, 4)
	vec, err := c.Embed(context.Background(), "husleie", TaskQuery)
	require.NoError(t, err)
	require.Len(t, vec, 4)

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, float64(vec[0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vec[1]), 1e-6)
}

func TestEmbedQueryCaches(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, &calls, []float32{1, 0, 0, 0})
	defer srv.Close()

	c := testClient(t, srv.URL, 4)
	ctx := context.Background()

	first, err := c.EmbedQuery(ctx, "oppsigelse arbeid")
	require.NoError(t, err)
	second, err := c.EmbedQuery(ctx, "oppsigelse arbeid")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), calls.Load(), "repeat query must hit the cache")

	_, err = c.EmbedQuery(ctx, "annet søk")
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestEmbedDimensionMismatch(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, &calls, []float32{1, 0})
	defer srv.Close()

	c := testClient(t, srv.URL, 4)
	_, err := c.Embed(context.Background(), "x", TaskQuery)
	assert.Error(t, err)
}

func TestEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 4)
	_, err := c.Embed(context.Background(), "x", TaskQuery)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestEmbedErrorNotCached(t *testing.T) {
	var calls atomic.Int64
	fail := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		resp := embedResponse{}
		resp.Embedding.Values = []float32{0, 1, 0, 0}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 4)
	ctx := context.Background()

	_, err := c.EmbedQuery(ctx, "q")
	require.Error(t, err)

	fail = false
	vec, err := c.EmbedQuery(ctx, "q")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, int64(2), calls.Load())
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	assert.Equal(t, v, Normalize(v))
}

func TestNormalizeIdempotent(t *testing.T) {
	v := Normalize([]float32{1, 2, 2})
	w := Normalize(v)
	for i := range v {
		assert.InDelta(t, float64(v[i]), float64(w[i]), 1e-6)
	}
}
