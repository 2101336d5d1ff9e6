// Package ingest drives per-dataset synchronization: freshness check
// against the Lovdata listing, streaming archive download, parsing of
// each entry, document upsert, and reconciliation of the current set.
package ingest

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/khjohns/paragraf/parser"
	"github.com/khjohns/paragraf/store"
)

// Datasets lists the sync order. Laws first: regulations reference
// them through based_on.
var Datasets = []string{"lover", "forskrifter"}

// Result reports the outcome of one dataset sync.
type Result struct {
	Dataset  string `json:"dataset"`
	Docs     int    `json:"docs"`
	UpToDate bool   `json:"up_to_date"`
	Skipped  int    `json:"skipped"`
	Err      error  `json:"-"`
}

// Syncer runs dataset syncs against a store.
type Syncer struct {
	store    store.Store
	client   *Client
	cacheDir string
}

// NewSyncer creates a syncer. cacheDir holds the extracted documents;
// "" disables the extraction cache.
func NewSyncer(s store.Store, c *Client, cacheDir string) *Syncer {
	return &Syncer{store: s, client: c, cacheDir: cacheDir}
}

// Sync synchronizes every dataset. A failed dataset does not stop the
// others; cancellation is honoured between datasets.
func (s *Syncer) Sync(ctx context.Context, force bool) map[string]Result {
	results := make(map[string]Result, len(Datasets))
	for _, dataset := range Datasets {
		if ctx.Err() != nil {
			results[dataset] = Result{Dataset: dataset, Err: ctx.Err()}
			continue
		}
		res := s.syncDataset(ctx, dataset, force)
		if res.Err != nil {
			slog.Error("sync: dataset failed", "dataset", dataset, "error", res.Err)
		}
		results[dataset] = res
	}
	return results
}

func (s *Syncer) syncDataset(ctx context.Context, dataset string, force bool) Result {
	res := Result{Dataset: dataset}
	archive, ok := DatasetArchives[dataset]
	if !ok {
		res.Err = fmt.Errorf("unknown dataset %q", dataset)
		return res
	}
	docType := DatasetDocTypes[dataset]

	remote, err := s.client.RemoteModified(ctx, archive)
	if err != nil {
		res.Err = fmt.Errorf("checking remote freshness: %w", err)
		return res
	}

	if !force {
		status, err := s.store.GetSyncStatus(ctx)
		if err == nil {
			if meta, ok := status[dataset]; ok && !meta.LastModified.Before(remote) {
				slog.Info("sync: up to date", "dataset", dataset, "last_modified", meta.LastModified)
				res.UpToDate = true
				res.Docs = meta.FileCount
				return res
			}
		}
	}

	tmp, err := os.CreateTemp("", "paragraf-"+dataset+"-*.tar.bz2")
	if err != nil {
		res.Err = fmt.Errorf("creating temp file: %w", err)
		return res
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	slog.Info("sync: downloading archive", "dataset", dataset, "archive", archive)
	size, err := s.client.Download(ctx, archive, tmp)
	if err != nil {
		res.Err = fmt.Errorf("downloading %s: %w", archive, err)
		return res
	}
	slog.Info("sync: download complete", "dataset", dataset, "bytes", size)

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		res.Err = err
		return res
	}

	presentIDs, ingested, skipped, err := s.ingestArchive(ctx, docType, dataset, bzip2.NewReader(tmp))
	if err != nil {
		res.Err = err
		return res
	}
	res.Docs = ingested
	res.Skipped = skipped

	if err := s.store.ReconcileCurrent(ctx, docType, presentIDs); err != nil {
		res.Err = fmt.Errorf("reconciling current set: %w", err)
		return res
	}
	if err := s.store.RebuildFTS(ctx); err != nil {
		res.Err = fmt.Errorf("rebuilding fts index: %w", err)
		return res
	}
	if err := s.store.SetSyncStatus(ctx, dataset, remote, ingested); err != nil {
		res.Err = fmt.Errorf("writing sync metadata: %w", err)
		return res
	}

	// New sections land without embeddings; the backfill job picks
	// them up later. Hybrid search degrades to lexical until then.
	if total, embedded, err := s.store.EmbeddingStats(ctx); err == nil && embedded < total {
		slog.Info("sync: sections queued for embedding backfill", "pending", total-embedded)
	}

	slog.Info("sync: dataset complete",
		"dataset", dataset, "docs", ingested, "skipped", skipped)
	return res
}

// ingestArchive walks a decompressed tar stream, parsing and upserting
// every XML entry. Malformed entries are logged and skipped.
func (s *Syncer) ingestArchive(ctx context.Context, docType, dataset string, r io.Reader) (present []string, ingested, skipped int, err error) {
	tr := tar.NewReader(r)
	start := time.Now()

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ingested, skipped, fmt.Errorf("reading archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(strings.ToLower(hdr.Name), ".xml") {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, ingested, skipped, fmt.Errorf("reading entry %s: %w", hdr.Name, err)
		}

		parsed, err := parser.ParseEntry(hdr.Name, bytes.NewReader(data))
		if err != nil {
			slog.Warn("sync: skipping malformed entry", "entry", hdr.Name, "error", err)
			skipped++
			continue
		}
		if parsed.Document.DocType != docType {
			slog.Warn("sync: entry doc_type mismatch",
				"entry", hdr.Name, "got", parsed.Document.DocType, "want", docType)
			skipped++
			continue
		}

		if err := s.store.UpsertDocument(ctx, parsed.Document, parsed.Structures, parsed.Sections); err != nil {
			slog.Warn("sync: skipping failed upsert",
				"dok_id", parsed.Document.DokID, "error", err)
			skipped++
			continue
		}
		s.cacheEntry(dataset, hdr.Name, data)

		present = append(present, parsed.Document.DokID)
		ingested++
		if ingested%1000 == 0 {
			slog.Info("sync: progress", "dataset", dataset, "docs", ingested,
				"elapsed", time.Since(start).Round(time.Second))
		}
	}
	return present, ingested, skipped, nil
}

// cacheEntry writes the raw extracted entry to the cache directory.
func (s *Syncer) cacheEntry(dataset, entryName string, data []byte) {
	if s.cacheDir == "" {
		return
	}
	dir := filepath.Join(s.cacheDir, dataset)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Warn("sync: cache directory unavailable", "dir", dir, "error", err)
		return
	}
	path := filepath.Join(dir, filepath.Base(entryName))
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("sync: caching entry failed", "path", path, "error", err)
	}
}
