package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// SQLite is the embedded single-file backend. It carries the full
// document/section model, an FTS5 lexical index and a sqlite-vec ANN
// index. Trigram similarity and hybrid search are not available here;
// FindSimilar and SearchHybrid return ErrUnsupported.
type SQLite struct {
	db           *sql.DB
	embeddingDim int
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at dbPath and initialises
// the schema including the vec0 and FTS5 virtual tables.
func OpenSQLite(dbPath string, embeddingDim int) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &SQLite{db: db, embeddingDim: embeddingDim}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

const sqliteDocCols = `dok_id, COALESCE(ref_id, ''), title, COALESCE(short_title, ''), COALESCE(date_in_force, ''),
	COALESCE(ministry, ''), doc_type, is_amendment, COALESCE(legal_area, ''), COALESCE(based_on, ''), is_current, indexed_at`

func scanSQLiteDoc(row interface{ Scan(...any) error }) (*Document, error) {
	d := &Document{}
	err := row.Scan(&d.DokID, &d.RefID, &d.Title, &d.ShortTitle, &d.DateInForce,
		&d.Ministry, &d.DocType, &d.IsAmendment, &d.LegalArea, &d.BasedOn, &d.IsCurrent, &d.IndexedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetDocument accepts a canonical id, ref_id or exact short title.
func (s *SQLite) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteDocCols+` FROM documents
		WHERE dok_id = lower(?1) OR lower(ref_id) = lower(?1) OR lower(short_title) = lower(?1)
		ORDER BY is_current DESC, dok_id
		LIMIT 1
	`, id)
	return scanSQLiteDoc(row)
}

// FindDocument tries progressively looser matches, each candidate set
// ordered by is_current DESC then dok_id for reproducibility.
func (s *SQLite) FindDocument(ctx context.Context, freeText string) (*Document, error) {
	queries := []struct {
		where string
		arg   string
	}{
		{"dok_id = lower(?1)", freeText},
		{"lower(short_title) = lower(?1)", freeText},
		{"lower(short_title) LIKE lower(?1)", freeText + "%"},
		{"lower(short_title) LIKE lower(?1)", "%" + freeText + "%"},
		{"dok_id LIKE lower(?1)", "%" + freeText + "%"},
	}
	for _, q := range queries {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+sqliteDocCols+` FROM documents WHERE `+q.where+`
			ORDER BY is_current DESC, dok_id LIMIT 1`, q.arg)
		doc, err := scanSQLiteDoc(row)
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

// FindSimilar needs trigram support, which SQLite does not provide.
func (s *SQLite) FindSimilar(ctx context.Context, freeText string, threshold float64) (*Document, float64, error) {
	return nil, 0, ErrUnsupported
}

// GetSection fetches one section; the id is normalized first.
func (s *SQLite) GetSection(ctx context.Context, dokID, sectionID string) (*Section, error) {
	sec := &Section{}
	err := s.db.QueryRowContext(ctx, `
		SELECT dok_id, section_id, COALESCE(title, ''), content, COALESCE(address, ''), char_count, position
		FROM sections WHERE dok_id = ? AND section_id = ?
	`, strings.ToLower(dokID), NormalizeSectionID(sectionID)).Scan(
		&sec.DokID, &sec.SectionID, &sec.Title, &sec.Content, &sec.Address, &sec.CharCount, &sec.Position)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sec, nil
}

// GetSectionsBatch returns the found sections in request order;
// missing ids are dropped and reconciled by the caller.
func (s *SQLite) GetSectionsBatch(ctx context.Context, dokID string, sectionIDs []string) ([]Section, error) {
	var out []Section
	for _, id := range sectionIDs {
		sec, err := s.GetSection(ctx, dokID, id)
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
func (s *SQLite) ListSections(ctx context.Context, dokID string) ([]SectionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT section_id, COALESCE(title, ''), char_count, COALESCE(address, '')
		FROM sections WHERE dok_id = ?
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

// ListStructures returns the structure nodes in document order.
func (s *SQLite) ListStructures(ctx context.Context, dokID string) ([]StructureNode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dok_id, structure_type, COALESCE(structure_id, ''), COALESCE(title, ''), address, position
		FROM structures WHERE dok_id = ? ORDER BY position
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

// ftsMatchExpr builds an FTS5 MATCH expression from query tokens.
func ftsMatchExpr(tokens []string, op string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"`
	}
	return strings.Join(quoted, " "+op+" ")
}

// SearchFTS runs a BM25-ranked search with filters. When the AND of
// all tokens yields zero rows the query is retried as OR and hits are
// tagged with search_mode "or_fallback".
func (s *SQLite) SearchFTS(ctx context.Context, query string, limit int, filters SearchFilters) ([]SearchResult, error) {
	tokens := tokenizeQuery(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	results, err := s.searchFTSExpr(ctx, ftsMatchExpr(tokens, "AND"), limit, filters, "fts")
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && len(tokens) > 1 {
		return s.searchFTSExpr(ctx, ftsMatchExpr(tokens, "OR"), limit, filters, "or_fallback")
	}
	return results, nil
}

func (s *SQLite) searchFTSExpr(ctx context.Context, match string, limit int, filters SearchFilters, mode string) ([]SearchResult, error) {
	where := []string{"sections_fts MATCH ?"}
	args := []any{match}
	if filters.ExcludeAmendments {
		where = append(where, "d.is_amendment = 0")
	}
	if filters.DocType != "" {
		where = append(where, "d.doc_type = ?")
		args = append(args, filters.DocType)
	}
	if filters.Ministry != "" {
		where = append(where, "lower(d.ministry) LIKE lower(?)")
		args = append(args, "%"+filters.Ministry+"%")
	}
	if filters.LegalArea != "" {
		where = append(where, "lower(d.legal_area) LIKE lower(?)")
		args = append(args, "%"+filters.LegalArea+"%")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT sec.dok_id, sec.section_id, COALESCE(sec.title, ''),
			COALESCE(d.short_title, ''), d.doc_type, COALESCE(d.based_on, ''), COALESCE(d.legal_area, ''),
			snippet(sections_fts, 0, '**', '**', '…', 16), f.rank
		FROM sections_fts f
		JOIN sections sec ON sec.rowid = f.rowid
		JOIN documents d ON d.dok_id = sec.dok_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY f.rank
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var rank float64
		if err := rows.Scan(&r.DokID, &r.SectionID, &r.Title,
			&r.ShortTitle, &r.DocType, &r.BasedOn, &r.LegalArea, &r.Snippet, &rank); err != nil {
			return nil, err
		}
		// FTS5 rank is negative (lower = better); flip to positive.
		r.Rank = -rank
		r.Combined = r.Rank
		r.SearchMode = mode
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchVector performs a KNN search over the sqlite-vec index.
func (s *SQLite) SearchVector(ctx context.Context, embedding []float32, limit, probes int) ([]SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sec.dok_id, sec.section_id, COALESCE(sec.title, ''),
			COALESCE(d.short_title, ''), d.doc_type, COALESCE(d.based_on, ''), COALESCE(d.legal_area, ''),
			substr(sec.content, 1, 200), v.distance
		FROM vec_sections v
		JOIN sections sec ON sec.rowid = v.section_rowid
		JOIN documents d ON d.dok_id = sec.dok_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var distance float64
		if err := rows.Scan(&r.DokID, &r.SectionID, &r.Title,
			&r.ShortTitle, &r.DocType, &r.BasedOn, &r.LegalArea, &r.Snippet, &distance); err != nil {
			return nil, err
		}
		r.Similarity = 1.0 - distance
		r.Combined = r.Similarity
		r.SearchMode = "vector"
		results = append(results, r)
	}
	return results, rows.Err()
}

// SearchHybrid requires the relational backend.
func (s *SQLite) SearchHybrid(ctx context.Context, query string, embedding []float32, limit int, ftsWeight float64, probes int, filters SearchFilters) ([]SearchResult, error) {
	return nil, ErrUnsupported
}

// FindRelated lists regulations whose based_on references the law,
// current ones first.
func (s *SQLite) FindRelated(ctx context.Context, lovID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteDocCols+` FROM documents
		WHERE doc_type = ? AND based_on LIKE ?
		ORDER BY is_current DESC, dok_id
	`, DocTypeRegulation, "%"+strings.ToLower(lovID)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocs(rows)
}

func collectDocs(rows *sql.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		d, err := scanSQLiteDoc(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// ListMinistries returns distinct non-empty ministries, sorted.
func (s *SQLite) ListMinistries(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "ministry")
}

// ListLegalAreas returns distinct non-empty legal areas, sorted.
func (s *SQLite) ListLegalAreas(ctx context.Context) ([]string, error) {
	return s.distinctColumn(ctx, "legal_area")
}

func (s *SQLite) distinctColumn(ctx context.Context, col string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
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

// UpsertDocument replaces the document row and all of its structures
// and sections in a single transaction, so readers never observe a
// half-written mix of old and new.
func (s *SQLite) UpsertDocument(ctx context.Context, doc Document, structures []StructureNode, sections []Section) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (dok_id, ref_id, title, short_title, date_in_force, ministry,
				doc_type, is_amendment, legal_area, based_on, is_current, indexed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, CURRENT_TIMESTAMP)
			ON CONFLICT(dok_id) DO UPDATE SET
				ref_id = excluded.ref_id,
				title = excluded.title,
				short_title = excluded.short_title,
				date_in_force = excluded.date_in_force,
				ministry = excluded.ministry,
				doc_type = excluded.doc_type,
				is_amendment = excluded.is_amendment,
				legal_area = excluded.legal_area,
				based_on = excluded.based_on,
				is_current = 1,
				indexed_at = CURRENT_TIMESTAMP
		`, doc.DokID, doc.RefID, doc.Title, doc.ShortTitle, doc.DateInForce, doc.Ministry,
			doc.DocType, doc.IsAmendment, doc.LegalArea, doc.BasedOn); err != nil {
			return fmt.Errorf("upserting document: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM vec_sections WHERE section_rowid IN (
				SELECT rowid FROM sections WHERE dok_id = ?
			)`, doc.DokID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sections WHERE dok_id = ?", doc.DokID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM structures WHERE dok_id = ?", doc.DokID); err != nil {
			return err
		}

		stStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO structures (dok_id, structure_type, structure_id, title, address, position)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stStmt.Close()
		for i, n := range structures {
			if _, err := stStmt.ExecContext(ctx, doc.DokID, n.Type, n.StructureID, n.Title, n.Address, i); err != nil {
				return fmt.Errorf("inserting structure %s: %w", n.Address, err)
			}
		}

		secStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO sections (dok_id, section_id, title, content, address, char_count, position)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer secStmt.Close()
		for i, sec := range sections {
			res, err := secStmt.ExecContext(ctx, doc.DokID, sec.SectionID, sec.Title, sec.Content,
				sec.Address, utf8.RuneCountInString(sec.Content), i)
			if err != nil {
				return fmt.Errorf("inserting section %s: %w", sec.SectionID, err)
			}
			if len(sec.Embedding) == 0 {
				continue
			}
			rowid, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR REPLACE INTO vec_sections (section_rowid, embedding) VALUES (?, ?)",
				rowid, serializeFloat32(sec.Embedding)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReconcileCurrent marks exactly the present ids as current for the
// given doc_type. Runs as one transaction.
func (s *SQLite) ReconcileCurrent(ctx context.Context, docType string, presentIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"UPDATE documents SET is_current = 0 WHERE doc_type = ?", docType); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx,
			"UPDATE documents SET is_current = 1 WHERE dok_id = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range presentIDs {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// RebuildFTS rebuilds the external-content FTS index from the sections
// table. Called once per dataset after reconciliation.
func (s *SQLite) RebuildFTS(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO sections_fts(sections_fts) VALUES ('rebuild')")
	return err
}

// ListSectionsMissingEmbeddings returns sections with no vector row.
func (s *SQLite) ListSectionsMissingEmbeddings(ctx context.Context, limit int) ([]Section, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dok_id, section_id, COALESCE(title, ''), content, COALESCE(address, ''), char_count, position
		FROM sections
		WHERE rowid NOT IN (SELECT section_rowid FROM vec_sections)
		ORDER BY dok_id, position
		LIMIT ?
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

// SetSectionEmbedding writes one embedding into the vec index.
func (s *SQLite) SetSectionEmbedding(ctx context.Context, dokID, sectionID string, embedding []float32) error {
	var rowid int64
	err := s.db.QueryRowContext(ctx,
		"SELECT rowid FROM sections WHERE dok_id = ? AND section_id = ?",
		strings.ToLower(dokID), NormalizeSectionID(sectionID)).Scan(&rowid)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_sections (section_rowid, embedding) VALUES (?, ?)",
		rowid, serializeFloat32(embedding))
	return err
}

// EmbeddingStats counts sections and embedded sections.
func (s *SQLite) EmbeddingStats(ctx context.Context) (int, int, error) {
	var total, embedded int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sections").Scan(&total); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vec_sections").Scan(&embedded); err != nil {
		return 0, 0, err
	}
	return total, embedded, nil
}

// GetSyncStatus returns sync metadata for every dataset.
func (s *SQLite) GetSyncStatus(ctx context.Context) (map[string]SyncMeta, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLite) SetSyncStatus(ctx context.Context, dataset string, remoteMtime time.Time, fileCount int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_meta (dataset, last_modified, synced_at, file_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(dataset) DO UPDATE SET
			last_modified = excluded.last_modified,
			synced_at = excluded.synced_at,
			file_count = excluded.file_count
	`, dataset, remoteMtime.UTC(), time.Now().UTC(), fileCount)
	return err
}

// IsSynced reports whether at least one dataset has been synced.
func (s *SQLite) IsSynced(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_meta").Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for
// sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
