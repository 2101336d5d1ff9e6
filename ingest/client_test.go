package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientListRetriesTransient(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[{"filename": "gjeldende-lover.tar.bz2", "lastModified": "2025-11-20T03:00:00Z"}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry(3))
	files, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, time.Date(2025, 11, 20, 3, 0, 0, 0, time.UTC), files[0].LastModified)
}

func TestClientListPermanentFailure(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry(3))
	_, err := c.List(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "4xx must not be retried")
}

func TestClientRemoteModifiedMissingArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, fastRetry(2))
	_, err := c.RemoteModified(context.Background(), "gjeldende-lover.tar.bz2")
	assert.Error(t, err)
}

func TestClientDownloadWritesBody(t *testing.T) {
	body := "pretend archive bytes"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/publicData/get/gjeldende-lover.tar.bz2", r.URL.Path)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	f, err := os.Create(filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, err)
	defer f.Close()

	c := NewClient(srv.URL, fastRetry(2))
	n, err := c.Download(context.Background(), "gjeldende-lover.tar.bz2", f)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), n)

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestClientDownloadRetryOverwrites(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// A longer, failing first response body must not survive
			// into the retried download.
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, "garbage garbage garbage")
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f, err := os.Create(filepath.Join(t.TempDir(), "archive"))
	require.NoError(t, err)
	defer f.Close()

	c := NewClient(srv.URL, fastRetry(3))
	n, err := c.Download(context.Background(), "gjeldende-lover.tar.bz2", f)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(got))
}
