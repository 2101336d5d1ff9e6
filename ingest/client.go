package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// DefaultBaseURL is Lovdata's public-data API root.
const DefaultBaseURL = "https://api.lovdata.no"

// Listing calls are quick; archive downloads run to hundreds of
// megabytes and get a much longer budget.
const (
	listTimeout     = 30 * time.Second
	downloadTimeout = 300 * time.Second
)

// Dataset names map to the bulk archives Lovdata publishes.
var DatasetArchives = map[string]string{
	"lover":       "gjeldende-lover.tar.bz2",
	"forskrifter": "gjeldende-sentrale-forskrifter.tar.bz2",
}

// DatasetDocTypes maps dataset names to the doc_type they carry.
var DatasetDocTypes = map[string]string{
	"lover":       "lov",
	"forskrifter": "forskrift",
}

// FileInfo is one entry of the public-data listing.
type FileInfo struct {
	Filename     string    `json:"filename"`
	LastModified time.Time `json:"lastModified"`
}

// Client talks to the Lovdata public-data endpoints.
type Client struct {
	baseURL string
	listc   *http.Client
	downc   *http.Client
	retry   RetryConfig
}

// NewClient creates a client; baseURL "" selects the production API.
func NewClient(baseURL string, retry RetryConfig) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		listc:   &http.Client{Timeout: listTimeout},
		downc:   &http.Client{Timeout: downloadTimeout},
		retry:   retry,
	}
}

// List fetches the public-data file listing, retrying transient
// failures.
func (c *Client) List(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo
	err := withRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/publicData/list", nil)
		if err != nil {
			return Permanent(err)
		}
		resp, err := c.listc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := classifyStatus(resp); err != nil {
			return err
		}

		var raw []struct {
			Filename     string `json:"filename"`
			LastModified string `json:"lastModified"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return Permanent(fmt.Errorf("decoding listing: %w", err))
		}
		files = files[:0]
		for _, f := range raw {
			t, err := time.Parse(time.RFC3339, f.LastModified)
			if err != nil {
				return Permanent(fmt.Errorf("parsing lastModified %q: %w", f.LastModified, err))
			}
			files = append(files, FileInfo{Filename: f.Filename, LastModified: t.UTC()})
		}
		return nil
	})
	return files, err
}

// RemoteModified returns the listing timestamp for one archive.
func (c *Client) RemoteModified(ctx context.Context, filename string) (time.Time, error) {
	files, err := c.List(ctx)
	if err != nil {
		return time.Time{}, err
	}
	for _, f := range files {
		if f.Filename == filename {
			return f.LastModified, nil
		}
	}
	return time.Time{}, Permanent(fmt.Errorf("archive %q not in listing", filename))
}

// Download streams one archive into f, retrying transient failures
// from the start. Progress is reported on stderr when it is a
// terminal. Returns the number of bytes written.
func (c *Client) Download(ctx context.Context, filename string, f *os.File) (int64, error) {
	var written int64
	err := withRetry(ctx, c.retry, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Permanent(err)
		}
		if err := f.Truncate(0); err != nil {
			return Permanent(err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.baseURL+"/v1/publicData/get/"+filename, nil)
		if err != nil {
			return Permanent(err)
		}
		resp, err := c.downc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := classifyStatus(resp); err != nil {
			return err
		}

		var dst io.Writer = f
		if isatty.IsTerminal(os.Stderr.Fd()) {
			bar := progressbar.DefaultBytes(resp.ContentLength, filename)
			dst = io.MultiWriter(f, bar)
			defer bar.Close()
		}
		written, err = io.Copy(dst, resp.Body)
		if err != nil {
			return fmt.Errorf("streaming %s: %w", filename, err)
		}
		return nil
	})
	return written, err
}
