package store

import "fmt"

// postgresSchema returns the DDL for the relational backend. Requires
// the vector and pg_trgm extensions; embeddingDim controls the vector
// column dimension.
func postgresSchema(embeddingDim int) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS documents (
    dok_id TEXT PRIMARY KEY,
    ref_id TEXT,
    title TEXT NOT NULL,
    short_title TEXT,
    date_in_force TEXT,
    ministry TEXT,
    doc_type TEXT NOT NULL,
    is_amendment BOOLEAN NOT NULL DEFAULT FALSE,
    legal_area TEXT,
    based_on TEXT,
    is_current BOOLEAN NOT NULL DEFAULT TRUE,
    indexed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS structures (
    dok_id TEXT NOT NULL REFERENCES documents(dok_id) ON DELETE CASCADE,
    structure_type TEXT NOT NULL,
    structure_id TEXT,
    title TEXT,
    address TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (dok_id, address)
);

CREATE TABLE IF NOT EXISTS sections (
    dok_id TEXT NOT NULL REFERENCES documents(dok_id) ON DELETE CASCADE,
    section_id TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    address TEXT,
    char_count INTEGER NOT NULL,
    position INTEGER NOT NULL,
    embedding vector(%d),
    fts tsvector GENERATED ALWAYS AS (
        to_tsvector('norwegian', coalesce(title, '') || ' ' || content)
    ) STORED,
    PRIMARY KEY (dok_id, section_id)
);

CREATE TABLE IF NOT EXISTS sync_meta (
    dataset TEXT PRIMARY KEY,
    last_modified TIMESTAMPTZ NOT NULL,
    synced_at TIMESTAMPTZ NOT NULL,
    file_count INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sections_fts ON sections USING gin (fts);
CREATE INDEX IF NOT EXISTS idx_sections_embedding ON sections
    USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
CREATE INDEX IF NOT EXISTS idx_sections_dok ON sections (dok_id);
CREATE INDEX IF NOT EXISTS idx_documents_short_title_trgm ON documents
    USING gin (short_title gin_trgm_ops);
CREATE INDEX IF NOT EXISTS idx_documents_short_title ON documents (doc_type, lower(short_title));
CREATE INDEX IF NOT EXISTS idx_documents_type_current ON documents (doc_type, is_current);
`, embeddingDim)
}
