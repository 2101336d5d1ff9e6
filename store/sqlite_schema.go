package store

import "fmt"

// sqliteSchema returns the DDL for the embedded backend. embeddingDim
// controls the vec0 virtual table dimension.
func sqliteSchema(embeddingDim int) string {
	return fmt.Sprintf(`
-- Laws and regulations
CREATE TABLE IF NOT EXISTS documents (
    dok_id TEXT PRIMARY KEY,
    ref_id TEXT,
    title TEXT NOT NULL,
    short_title TEXT,
    date_in_force TEXT,
    ministry TEXT,
    doc_type TEXT NOT NULL,
    is_amendment INTEGER NOT NULL DEFAULT 0,
    legal_area TEXT,
    based_on TEXT,
    is_current INTEGER NOT NULL DEFAULT 1,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Structural groupings (parts, chapters, section groups, annexes)
CREATE TABLE IF NOT EXISTS structures (
    dok_id TEXT NOT NULL REFERENCES documents(dok_id) ON DELETE CASCADE,
    structure_type TEXT NOT NULL,
    structure_id TEXT,
    title TEXT,
    address TEXT NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (dok_id, address)
);

-- Leaf sections
CREATE TABLE IF NOT EXISTS sections (
    dok_id TEXT NOT NULL REFERENCES documents(dok_id) ON DELETE CASCADE,
    section_id TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    address TEXT,
    char_count INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (dok_id, section_id)
);

-- Vector embeddings via sqlite-vec, keyed on the sections rowid
CREATE VIRTUAL TABLE IF NOT EXISTS vec_sections USING vec0(
    section_rowid INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Full-text search via FTS5 over section content and titles
CREATE VIRTUAL TABLE IF NOT EXISTS sections_fts USING fts5(
    content,
    title,
    content='sections',
    content_rowid='rowid',
    tokenize='unicode61'
);

-- FTS triggers keep the index in sync between dataset rebuilds
CREATE TRIGGER IF NOT EXISTS sections_ai AFTER INSERT ON sections BEGIN
    INSERT INTO sections_fts(rowid, content, title) VALUES (new.rowid, new.content, new.title);
END;
CREATE TRIGGER IF NOT EXISTS sections_ad AFTER DELETE ON sections BEGIN
    INSERT INTO sections_fts(sections_fts, rowid, content, title) VALUES ('delete', old.rowid, old.content, old.title);
END;
CREATE TRIGGER IF NOT EXISTS sections_au AFTER UPDATE ON sections BEGIN
    INSERT INTO sections_fts(sections_fts, rowid, content, title) VALUES ('delete', old.rowid, old.content, old.title);
    INSERT INTO sections_fts(rowid, content, title) VALUES (new.rowid, new.content, new.title);
END;

-- Per-dataset sync bookkeeping
CREATE TABLE IF NOT EXISTS sync_meta (
    dataset TEXT PRIMARY KEY,
    last_modified DATETIME NOT NULL,
    synced_at DATETIME NOT NULL,
    file_count INTEGER NOT NULL
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_documents_short_title ON documents(doc_type, lower(short_title));
CREATE INDEX IF NOT EXISTS idx_documents_type_current ON documents(doc_type, is_current);
CREATE INDEX IF NOT EXISTS idx_sections_dok ON sections(dok_id);
CREATE INDEX IF NOT EXISTS idx_structures_dok ON structures(dok_id, position);
`, embeddingDim)
}
