package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Postgres is the networked relational backend. It carries the same
// contract as SQLite plus trigram short-title matching and hybrid
// FTS+vector search over a pgvector ivfflat index.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects a pool to the given URL and ensures the schema
// exists. The vector and pg_trgm extensions are created on a separate
// connection first, so the pgvector type can be registered on every
// pooled connection.
func OpenPostgres(ctx context.Context, url string, embeddingDim int) (*Postgres, error) {
	setup, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if _, err := setup.Exec(ctx,
		"CREATE EXTENSION IF NOT EXISTS vector; CREATE EXTENSION IF NOT EXISTS pg_trgm"); err != nil {
		setup.Close(ctx)
		return nil, fmt.Errorf("creating extensions: %w", err)
	}
	if _, err := setup.Exec(ctx, postgresSchema(embeddingDim)); err != nil {
		setup.Close(ctx)
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	setup.Close(ctx)

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

const pgDocCols = `dok_id, COALESCE(ref_id, ''), title, COALESCE(short_title, ''), COALESCE(date_in_force, ''),
	COALESCE(ministry, ''), doc_type, is_amendment, COALESCE(legal_area, ''), COALESCE(based_on, ''), is_current,
	to_char(indexed_at, 'YYYY-MM-DD"T"HH24:MI:SS"Z"')`

func scanPgDoc(row pgx.Row) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.DokID, &d.RefID, &d.Title, &d.ShortTitle, &d.DateInForce,
		&d.Ministry, &d.DocType, &d.IsAmendment, &d.LegalArea, &d.BasedOn, &d.IsCurrent, &d.IndexedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocument accepts a canonical id, ref_id or exact short title.
func (p *Postgres) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+pgDocCols+` FROM documents
		WHERE dok_id = lower($1) OR lower(ref_id) = lower($1) OR lower(short_title) = lower($1)
		ORDER BY is_current DESC, dok_id
		LIMIT 1
	`, id)
	return scanPgDoc(row)
}

// FindDocument tries progressively looser matches; every candidate set
// is ordered by is_current DESC, then dok_id.
func (p *Postgres) FindDocument(ctx context.Context, freeText string) (*Document, error) {
	queries := []struct {
		where string
		arg   string
	}{
		{"dok_id = lower($1)", freeText},
		{"lower(short_title) = lower($1)", freeText},
		{"lower(short_title) LIKE lower($1)", freeText + "%"},
		{"lower(short_title) LIKE lower($1)", "%" + freeText + "%"},
		{"dok_id LIKE lower($1)", "%" + freeText + "%"},
	}
	for _, q := range queries {
		row := p.pool.QueryRow(ctx, `
			SELECT `+pgDocCols+` FROM documents WHERE `+q.where+`
			ORDER BY is_current DESC, dok_id LIMIT 1`, q.arg)
		doc, err := scanPgDoc(row)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
	return nil, ErrNotFound
}

// FindSimilar returns the best trigram match on short_title with
// similarity at or above the threshold.
func (p *Postgres) FindSimilar(ctx context.Context, freeText string, threshold float64) (*Document, float64, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+pgDocCols+`, similarity(short_title, $1) AS sim
		FROM documents
		WHERE short_title IS NOT NULL AND similarity(short_title, $1) >= $2
		ORDER BY sim DESC, is_current DESC, dok_id
		LIMIT 1
	`, freeText, threshold)
	d := &Document{}
	var sim float64
	err := row.Scan(&d.DokID, &d.RefID, &d.Title, &d.ShortTitle, &d.DateInForce,
		&d.Ministry, &d.DocType, &d.IsAmendment, &d.LegalArea, &d.BasedOn, &d.IsCurrent, &d.IndexedAt, &sim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return d, sim, nil
}

// GetSection fetches one section; the id is normalized first.
func (p *Postgres) GetSection(ctx context.Context, dokID, sectionID string) (*Section, error) {
	sec := &Section{}
	err := p.pool.QueryRow(ctx, `
		SELECT dok_id, section_id, COALESCE(title, ''), content, COALESCE(address, ''), char_count, position
		FROM sections WHERE dok_id = $1 AND section_id = $2
	`, strings.ToLower(dokID), NormalizeSectionID(sectionID)).Scan(
		&sec.DokID, &sec.SectionID, &sec.Title, &sec.Content, &sec.Address, &sec.CharCount, &sec.Position)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sec, nil
}

// GetSectionsBatch returns found sections in request order.
func (p *Postgres) GetSectionsBatch(ctx context.Context, dokID string, sectionIDs []string) ([]Section, error) {
	var out []Section
	for _, id := range sectionIDs {
		sec, err := p.GetSection(ctx, dokID, id)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *sec)
	}
	return out, nil
}

// ListSections returns summaries in natural section-id order.
func (p *Postgres) ListSections(ctx context.Context, dokID string) ([]SectionSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT section_id, COALESCE(title, ''), char_count, COALESCE(address, '')
		FROM sections WHERE dok_id = $1
	`, strings.ToLower(dokID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SectionSummary
	for rows.Next() {
		var sum SectionSummary
		if err := rows.Scan(&sum.SectionID, &sum.Title, &sum.CharCount, &sum.Address); err != nil {
			return nil, err
		}
		sum.EstimatedTokens = EstimateTokens(sum.CharCount)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortSectionSummaries(summaries)
	return summaries, nil
}

// ListStructures returns structure nodes in document order.
func (p *Postgres) ListStructures(ctx context.Context, dokID string) ([]StructureNode, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT dok_id, structure_type, COALESCE(structure_id, ''), COALESCE(title, ''), address, position
		FROM structures WHERE dok_id = $1 ORDER BY position
	`, strings.ToLower(dokID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []StructureNode
	for rows.Next() {
		var n StructureNode
		if err := rows.Scan(&n.DokID, &n.Type, &n.StructureID, &n.Title, &n.Address, &n.Position); err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// tsquery builds a to_tsquery input from tokens joined with op.
func tsquery(tokens []string, op string) string {
	clean := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.Map(func(r rune) rune {
			if r == '\'' || r == '\\' || r == ':' || r == '&' || r == '|' || r == '!' || r == '(' || r == ')' {
				return -1
			}
			return r
		}, t)
		if t != "" {
			clean = append(clean, t)
		}
	}
	return strings.Join(clean, " "+op+" ")
}

func pgFilterClauses(filters SearchFilters, args []any) ([]string, []any) {
	var where []string
	if filters.ExcludeAmendments {
		where = append(where, "NOT d.is_amendment")
	}
	if filters.DocType != "" {
		args = append(args, filters.DocType)
		where = append(where, fmt.Sprintf("d.doc_type = $%d", len(args)))
	}
	if filters.Ministry != "" {
		args = append(args, "%"+filters.Ministry+"%")
		where = append(where, fmt.Sprintf("d.ministry ILIKE $%d", len(args)))
	}
	if filters.LegalArea != "" {
		args = append(args, "%"+filters.LegalArea+"%")
		where = append(where, fmt.Sprintf("d.legal_area ILIKE $%d", len(args)))
	}
	return where, args
}

// SearchFTS runs a ts_rank search with filters; zero AND hits retry as
// OR with search_mode "or_fallback".
func (p *Postgres) SearchFTS(ctx context.Context, query string, limit int, filters SearchFilters) ([]SearchResult, error) {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	results, err := p.searchFTSExpr(ctx, tsquery(tokens, "&"), limit, filters, "fts")
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && len(tokens) > 1 {
		return p.searchFTSExpr(ctx, tsquery(tokens, "|"), limit, filters, "or_fallback")
	}
	return results, nil
}

func (p *Postgres) searchFTSExpr(ctx context.Context, tsq string, limit int, filters SearchFilters, mode string) ([]SearchResult, error) {
	args := []any{tsq, limit}
	where, args := pgFilterClauses(filters, args)
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " AND " + strings.Join(where, " AND ")
	}

	rows, err := p.pool.Query(ctx, `
		SELECT s.dok_id, s.section_id, COALESCE(s.title, ''),
			COALESCE(d.short_title, ''), d.doc_type, COALESCE(d.based_on, ''), COALESCE(d.legal_area, ''),
			ts_headline('norwegian', s.content, to_tsquery('norwegian', $1),
				'StartSel=**, StopSel=**, MaxWords=30, MinWords=10'),
			ts_rank(s.fts, to_tsquery('norwegian', $1))
		FROM sections s
		JOIN documents d ON d.dok_id = s.dok_id
		WHERE s.fts @@ to_tsquery('norwegian', $1)`+whereSQL+`
		ORDER BY ts_rank(s.fts, to_tsquery('norwegian', $1)) DESC, s.dok_id, s.section_id
		LIMIT $2
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DokID, &r.SectionID, &r.Title,
			&r.ShortTitle, &r.DocType, &r.BasedOn, &r.LegalArea, &r.Snippet, &r.Rank); err != nil {
			return nil, err
		}
		r.Combined = r.Rank
		r.SearchMode = mode
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchVector performs a pure ANN search over the ivfflat index.
func (p *Postgres) SearchVector(ctx context.Context, embedding []float32, limit, probes int) ([]SearchResult, error) {
	if probes <= 0 {
		probes = 10
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		SELECT s.dok_id, s.section_id, COALESCE(s.title, ''),
			COALESCE(d.short_title, ''), d.doc_type, COALESCE(d.based_on, ''), COALESCE(d.legal_area, ''),
			left(s.content, 200),
			1 - (s.embedding <=> $1) AS similarity
		FROM sections s
		JOIN documents d ON d.dok_id = s.dok_id
		WHERE s.embedding IS NOT NULL
		ORDER BY s.embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DokID, &r.SectionID, &r.Title,
			&r.ShortTitle, &r.DocType, &r.BasedOn, &r.LegalArea, &r.Snippet, &r.Similarity); err != nil {
			return nil, err
		}
		r.Combined = r.Similarity
		r.SearchMode = "vector"
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, tx.Commit(ctx)
}

// SearchHybrid combines normalized FTS rank with cosine similarity:
// combined = w * rank_norm + (1 - w) * (1 + cos) / 2. Sections without
// embeddings still surface through the FTS leg, so hybrid degrades to
// lexical search during an embedding backfill.
func (p *Postgres) SearchHybrid(ctx context.Context, query string, embedding []float32, limit int, ftsWeight float64, probes int, filters SearchFilters) ([]SearchResult, error) {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return p.SearchVector(ctx, embedding, limit, probes)
	}
	if probes <= 0 {
		probes = 10
	}
	if ftsWeight < 0 {
		ftsWeight = 0
	}
	if ftsWeight > 1 {
		ftsWeight = 1
	}

	args := []any{tsquery(tokens, "&"), pgvector.NewVector(embedding), ftsWeight, limit}
	where, args := pgFilterClauses(filters, args)
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " AND " + strings.Join(where, " AND ")
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", probes)); err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
		WITH fts AS (
			SELECT s.dok_id, s.section_id,
				ts_rank(s.fts, to_tsquery('norwegian', $1)) AS rank
			FROM sections s
			JOIN documents d ON d.dok_id = s.dok_id
			WHERE s.fts @@ to_tsquery('norwegian', $1)`+whereSQL+`
			ORDER BY rank DESC
			LIMIT $4 * 4
		),
		vec AS (
			SELECT s.dok_id, s.section_id,
				1 - (s.embedding <=> $2) AS similarity
			FROM sections s
			JOIN documents d ON d.dok_id = s.dok_id
			WHERE s.embedding IS NOT NULL`+whereSQL+`
			ORDER BY s.embedding <=> $2
			LIMIT $4 * 4
		),
		merged AS (
			SELECT COALESCE(f.dok_id, v.dok_id) AS dok_id,
				COALESCE(f.section_id, v.section_id) AS section_id,
				COALESCE(f.rank, 0) AS rank,
				COALESCE(v.similarity, 0) AS similarity
			FROM fts f
			FULL OUTER JOIN vec v ON f.dok_id = v.dok_id AND f.section_id = v.section_id
		)
		SELECT m.dok_id, m.section_id, COALESCE(s.title, ''),
			COALESCE(d.short_title, ''), d.doc_type, COALESCE(d.based_on, ''), COALESCE(d.legal_area, ''),
			left(s.content, 300),
			m.rank, m.similarity,
			$3 * (m.rank / GREATEST(MAX(m.rank) OVER (), 1e-9))
				+ (1 - $3) * ((1 + m.similarity) / 2) AS combined
		FROM merged m
		JOIN sections s ON s.dok_id = m.dok_id AND s.section_id = m.section_id
		JOIN documents d ON d.dok_id = m.dok_id
		ORDER BY combined DESC, m.dok_id, m.section_id
		LIMIT $4
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.DokID, &r.SectionID, &r.Title,
			&r.ShortTitle, &r.DocType, &r.BasedOn, &r.LegalArea, &r.Snippet,
			&r.Rank, &r.Similarity, &r.Combined); err != nil {
			return nil, err
		}
		r.SearchMode = "hybrid"
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, tx.Commit(ctx)
}

// FindRelated lists regulations whose based_on references the law.
func (p *Postgres) FindRelated(ctx context.Context, lovID string) ([]Document, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+pgDocCols+` FROM documents
		WHERE doc_type = $1 AND based_on LIKE $2
		ORDER BY is_current DESC, dok_id
	`, DocTypeRegulation, "%"+strings.ToLower(lovID)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		d := Document{}
		if err := rows.Scan(&d.DokID, &d.RefID, &d.Title, &d.ShortTitle, &d.DateInForce,
			&d.Ministry, &d.DocType, &d.IsAmendment, &d.LegalArea, &d.BasedOn, &d.IsCurrent, &d.IndexedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListMinistries returns distinct non-null ministries, sorted.
func (p *Postgres) ListMinistries(ctx context.Context) ([]string, error) {
	return p.distinctColumn(ctx, "ministry")
}

// ListLegalAreas returns distinct non-null legal areas, sorted.
func (p *Postgres) ListLegalAreas(ctx context.Context) ([]string, error) {
	return p.distinctColumn(ctx, "legal_area")
}

func (p *Postgres) distinctColumn(ctx context.Context, col string) ([]string, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT DISTINCT `+col+` FROM documents WHERE `+col+` IS NOT NULL AND `+col+` != '' ORDER BY `+col)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vals []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, rows.Err()
}

// UpsertDocument replaces the document and all of its structures and
// sections in one transaction.
func (p *Postgres) UpsertDocument(ctx context.Context, doc Document, structures []StructureNode, sections []Section) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO documents (dok_id, ref_id, title, short_title, date_in_force, ministry,
			doc_type, is_amendment, legal_area, based_on, is_current, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE, now())
		ON CONFLICT (dok_id) DO UPDATE SET
			ref_id = EXCLUDED.ref_id,
			title = EXCLUDED.title,
			short_title = EXCLUDED.short_title,
			date_in_force = EXCLUDED.date_in_force,
			ministry = EXCLUDED.ministry,
			doc_type = EXCLUDED.doc_type,
			is_amendment = EXCLUDED.is_amendment,
			legal_area = EXCLUDED.legal_area,
			based_on = EXCLUDED.based_on,
			is_current = TRUE,
			indexed_at = now()
	`, doc.DokID, doc.RefID, doc.Title, doc.ShortTitle, doc.DateInForce, doc.Ministry,
		doc.DocType, doc.IsAmendment, doc.LegalArea, doc.BasedOn); err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM sections WHERE dok_id = $1", doc.DokID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "DELETE FROM structures WHERE dok_id = $1", doc.DokID); err != nil {
		return err
	}

	for i, n := range structures {
		if _, err := tx.Exec(ctx, `
			INSERT INTO structures (dok_id, structure_type, structure_id, title, address, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, doc.DokID, n.Type, n.StructureID, n.Title, n.Address, i); err != nil {
			return fmt.Errorf("inserting structure %s: %w", n.Address, err)
		}
	}

	for i, sec := range sections {
		var emb *pgvector.Vector
		if len(sec.Embedding) > 0 {
			v := pgvector.NewVector(sec.Embedding)
			emb = &v
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO sections (dok_id, section_id, title, content, address, char_count, position, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, doc.DokID, sec.SectionID, sec.Title, sec.Content, sec.Address, utf8.RuneCountInString(sec.Content), i, emb); err != nil {
			return fmt.Errorf("inserting section %s: %w", sec.SectionID, err)
		}
	}

	return tx.Commit(ctx)
}

// ReconcileCurrent marks exactly the present ids as current for the
// given doc_type, in one statement.
func (p *Postgres) ReconcileCurrent(ctx context.Context, docType string, presentIDs []string) error {
	if presentIDs == nil {
		presentIDs = []string{}
	}
	_, err := p.pool.Exec(ctx,
		"UPDATE documents SET is_current = (dok_id = ANY($2)) WHERE doc_type = $1",
		docType, presentIDs)
	return err
}

// RebuildFTS is a no-op: the tsvector column is generated and the GIN
// index is maintained by the engine.
func (p *Postgres) RebuildFTS(ctx context.Context) error {
	return nil
}

// ListSectionsMissingEmbeddings returns sections queued for backfill.
func (p *Postgres) ListSectionsMissingEmbeddings(ctx context.Context, limit int) ([]Section, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT dok_id, section_id, COALESCE(title, ''), content, COALESCE(address, ''), char_count, position
		FROM sections WHERE embedding IS NULL
		ORDER BY dok_id, position
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var secs []Section
	for rows.Next() {
		var sec Section
		if err := rows.Scan(&sec.DokID, &sec.SectionID, &sec.Title, &sec.Content,
			&sec.Address, &sec.CharCount, &sec.Position); err != nil {
			return nil, err
		}
		secs = append(secs, sec)
	}
	return secs, rows.Err()
}

// SetSectionEmbedding backfills one embedding.
func (p *Postgres) SetSectionEmbedding(ctx context.Context, dokID, sectionID string, embedding []float32) error {
	tag, err := p.pool.Exec(ctx,
		"UPDATE sections SET embedding = $3 WHERE dok_id = $1 AND section_id = $2",
		strings.ToLower(dokID), NormalizeSectionID(sectionID), pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// EmbeddingStats counts sections and embedded sections.
func (p *Postgres) EmbeddingStats(ctx context.Context) (int, int, error) {
	var total, embedded int
	err := p.pool.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(embedding) FROM sections").Scan(&total, &embedded)
	if err != nil {
		return 0, 0, err
	}
	return total, embedded, nil
}

// GetSyncStatus returns sync metadata for every dataset.
func (p *Postgres) GetSyncStatus(ctx context.Context) (map[string]SyncMeta, error) {
	rows, err := p.pool.Query(ctx,
		"SELECT dataset, last_modified, synced_at, file_count FROM sync_meta")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	status := make(map[string]SyncMeta)
	for rows.Next() {
		var m SyncMeta
		if err := rows.Scan(&m.Dataset, &m.LastModified, &m.SyncedAt, &m.FileCount); err != nil {
			return nil, err
		}
		status[m.Dataset] = m
	}
	return status, rows.Err()
}

// SetSyncStatus records a successful dataset sync.
func (p *Postgres) SetSyncStatus(ctx context.Context, dataset string, remoteMtime time.Time, fileCount int) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO sync_meta (dataset, last_modified, synced_at, file_count)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (dataset) DO UPDATE SET
			last_modified = EXCLUDED.last_modified,
			synced_at = now(),
			file_count = EXCLUDED.file_count
	`, dataset, remoteMtime.UTC(), fileCount)
	return err
}

// IsSynced reports whether at least one dataset has been synced.
func (p *Postgres) IsSynced(ctx context.Context) (bool, error) {
	var n int
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM sync_meta").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}
