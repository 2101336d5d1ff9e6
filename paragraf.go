// Package paragraf is a lookup and search service for Norwegian laws
// and regulations published through Lovdata's public-data API. It
// ingests the bulk archives into a document/section store, indexes
// sections for lexical and semantic search, and answers identifier
// and free-text queries with assistant-ready text.
package paragraf

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/khjohns/paragraf/embedder"
	"github.com/khjohns/paragraf/ingest"
	"github.com/khjohns/paragraf/query"
	"github.com/khjohns/paragraf/resolver"
	"github.com/khjohns/paragraf/store"
)

// Service owns the store handle, the embedder cache and the query
// engine. Construct one at program start and share it by reference;
// all query methods are safe for concurrent use.
type Service struct {
	cfg      Config
	store    store.Store
	embedder *embedder.Client
	syncer   *ingest.Syncer
	engine   *query.Engine
	backend  string
}

// New wires a Service from configuration. The relational backend is
// selected when DatabaseURL is set; the embedded database lives under
// the cache directory otherwise.
func New(ctx context.Context, cfg Config) (*Service, error) {
	cacheDir := cfg.resolveCacheDir()

	var (
		st      store.Store
		backend string
		err     error
	)
	if cfg.DatabaseURL != "" {
		st, err = store.OpenPostgres(ctx, cfg.DatabaseURL, embedder.Dim)
		backend = "postgres"
	} else {
		st, err = store.OpenSQLite(filepath.Join(cacheDir, "paragraf.db"), embedder.Dim)
		backend = "sqlite"
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", backend, err)
	}

	var emb *embedder.Client
	if cfg.EmbeddingAPIKey != "" {
		emb, err = embedder.New(embedder.Config{APIKey: cfg.EmbeddingAPIKey})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	} else {
		slog.Info("no embedding api key; hybrid search disabled")
	}

	client := ingest.NewClient(cfg.LovdataBaseURL, cfg.Retry)
	res := resolver.New(st)

	return &Service{
		cfg:      cfg,
		store:    st,
		embedder: emb,
		syncer:   ingest.NewSyncer(st, client, cacheDir),
		engine: query.New(st, res, query.Options{
			Embedder:  emb,
			FTSWeight: cfg.FTSWeight,
		}),
		backend: backend,
	}, nil
}

// Backend names the active store backend ("sqlite" or "postgres").
func (s *Service) Backend() string {
	return s.backend
}

// Store exposes the store for diagnostic access.
func (s *Service) Store() store.Store {
	return s.store
}

// Lookup returns a section, or the document overview when section is
// empty. maxTokens <= 0 disables the token budget.
func (s *Service) Lookup(ctx context.Context, id, section string, maxTokens int) string {
	return s.engine.Lookup(ctx, id, section, maxTokens)
}

// LookupBatch returns several sections of one document.
func (s *Service) LookupBatch(ctx context.Context, id string, sections []string, maxTokens int) string {
	return s.engine.LookupBatch(ctx, id, sections, maxTokens)
}

// Overview returns a document's table of contents.
func (s *Service) Overview(ctx context.Context, id string) string {
	return s.engine.Overview(ctx, id)
}

// Search runs a ranked search over the synced corpus.
func (s *Service) Search(ctx context.Context, q string, params query.SearchParams) string {
	return s.engine.Search(ctx, q, params)
}

// Related lists regulations grounded in the given law.
func (s *Service) Related(ctx context.Context, lovID string) string {
	return s.engine.Related(ctx, lovID)
}

// ListMinistries enumerates distinct ministries.
func (s *Service) ListMinistries(ctx context.Context) string {
	return s.engine.ListMinistries(ctx)
}

// ListLegalAreas enumerates distinct legal areas.
func (s *Service) ListLegalAreas(ctx context.Context) string {
	return s.engine.ListLegalAreas(ctx)
}

// ListAliases renders the seed alias table.
func (s *Service) ListAliases() string {
	return s.engine.ListAliases()
}

// GetSectionSize reports a section's size without its body.
func (s *Service) GetSectionSize(ctx context.Context, id, section string) string {
	return s.engine.GetSectionSize(ctx, id, section)
}

// Sync synchronizes every dataset from the Lovdata API.
func (s *Service) Sync(ctx context.Context, force bool) map[string]ingest.Result {
	return s.syncer.Sync(ctx, force)
}

// BackfillEmbeddings embeds sections that have none. Requires an
// embedding API key.
func (s *Service) BackfillEmbeddings(ctx context.Context, limit int) (int, error) {
	if s.embedder == nil {
		return 0, ErrInvalidConfig
	}
	return ingest.BackfillEmbeddings(ctx, s.store, s.embedder, limit)
}

// SyncStatus returns per-dataset sync metadata.
func (s *Service) SyncStatus(ctx context.Context) (map[string]store.SyncMeta, error) {
	return s.store.GetSyncStatus(ctx)
}

// Close shuts down the service.
func (s *Service) Close() error {
	return s.store.Close()
}
