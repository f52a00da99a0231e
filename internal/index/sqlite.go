package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	entry_id   TEXT NOT NULL UNIQUE,
	doc_id     TEXT NOT NULL,
	paper_url  TEXT NOT NULL,
	chunk_text TEXT NOT NULL,
	embedding  BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_doc_id ON entries(doc_id);
`

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, dir string) (*sqliteStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	path := filepath.Join(dir, "index.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index database: %w", err)
	}
	// Writes are serialized by the index lock; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) load(ctx context.Context, fn func(Entry) error) error {
	rows, err := s.db.QueryContext(ctx, "SELECT entry_id, doc_id, paper_url, chunk_text, embedding FROM entries ORDER BY seq")
	if err != nil {
		return fmt.Errorf("loading index entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.ID, &e.DocID, &e.PaperURL, &e.Text, &blob); err != nil {
			return fmt.Errorf("scanning index entry: %w", err)
		}
		e.Embedding = decodeVector(blob)
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *sqliteStore) insert(ctx context.Context, entries []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning index transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO entries (entry_id, doc_id, paper_url, chunk_text, embedding) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("preparing index insert: %w", err)
	}
	defer stmt.Close()
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.ID, e.DocID, e.PaperURL, e.Text, encodeVector(e.Embedding)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("inserting index entry %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index entries: %w", err)
	}
	return nil
}

func (s *sqliteStore) close() error {
	return s.db.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
