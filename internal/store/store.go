package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/uniplaces/carbon"
)

// MySQLStore is the database/sql implementation of ArtifactStore for MySQL.
type MySQLStore struct {
	db *sql.DB
}

const documentColumns = "title, authors, published, abstract, link, primary_category, conclusion, ref_count, created_at, updated_at"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		title VARCHAR(512) NOT NULL PRIMARY KEY,
		authors TEXT NOT NULL,
		published VARCHAR(64) NOT NULL,
		abstract TEXT NOT NULL,
		link VARCHAR(512) NOT NULL,
		primary_category VARCHAR(64) NOT NULL,
		conclusion TEXT NULL,
		ref_count INT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS summaries (
		link VARCHAR(512) NOT NULL PRIMARY KEY,
		summary TEXT NOT NULL,
		insights TEXT NOT NULL,
		full_text LONGTEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// New creates a new MySQLStore instance
func New(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// OpenMySQL connects with the given DSN and checks the connection.
func OpenMySQL(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return New(db), nil
}

// Migrate creates the documents and summaries tables when missing.
func (store *MySQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := store.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}
	return nil
}

func (store *MySQLStore) GetDocument(ctx context.Context, title string) (DocumentRecord, bool, error) {
	row := store.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE title = ?", title)
	rec, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, false, nil
	}
	if err != nil {
		return DocumentRecord{}, false, fmt.Errorf("finding document by title: %w", err)
	}
	return rec, true, nil
}

func (store *MySQLStore) UpsertDocument(ctx context.Context, rec DocumentRecord) error {
	if rec.Title == "" {
		return errors.New("document title is required")
	}
	authors, err := json.Marshal(rec.Authors)
	if err != nil {
		return fmt.Errorf("encoding authors: %w", err)
	}
	var conclusion sql.NullString
	if rec.Conclusion != nil {
		conclusion = sql.NullString{String: *rec.Conclusion, Valid: true}
	}
	var refCount sql.NullInt64
	if rec.RefCount != nil {
		refCount = sql.NullInt64{Int64: int64(*rec.RefCount), Valid: true}
	}
	now := carbon.Now().DateTimeString()
	_, err = store.db.ExecContext(ctx,
		"INSERT INTO documents ("+documentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE authors = VALUES(authors), published = VALUES(published), abstract = VALUES(abstract), "+
			"link = VALUES(link), primary_category = VALUES(primary_category), conclusion = VALUES(conclusion), "+
			"ref_count = VALUES(ref_count), updated_at = VALUES(updated_at)",
		rec.Title, string(authors), rec.Published, rec.Abstract, rec.Link, rec.PrimaryCategory, conclusion, refCount, now, now)
	if err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	return nil
}

func (store *MySQLStore) ListDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := store.db.QueryContext(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY published DESC, title ASC")
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docs = append(docs, rec)
	}
	return docs, rows.Err()
}

func (store *MySQLStore) GetSummary(ctx context.Context, link string) (SummaryRecord, bool, error) {
	rec := SummaryRecord{Link: link}
	err := store.db.QueryRowContext(ctx,
		"SELECT summary, insights, full_text, created_at, updated_at FROM summaries WHERE link = ?", link).
		Scan(&rec.Summary, &rec.Insights, &rec.FullText, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SummaryRecord{}, false, nil
	}
	if err != nil {
		return SummaryRecord{}, false, fmt.Errorf("finding summary by link: %w", err)
	}
	return rec, true, nil
}

func (store *MySQLStore) UpsertSummary(ctx context.Context, rec SummaryRecord) error {
	if rec.Link == "" {
		return errors.New("summary link is required")
	}
	now := carbon.Now().DateTimeString()
	_, err := store.db.ExecContext(ctx,
		"INSERT INTO summaries (link, summary, insights, full_text, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE summary = VALUES(summary), insights = VALUES(insights), "+
			"full_text = VALUES(full_text), updated_at = VALUES(updated_at)",
		rec.Link, rec.Summary, rec.Insights, rec.FullText, now, now)
	if err != nil {
		return fmt.Errorf("upserting summary: %w", err)
	}
	return nil
}

func (store *MySQLStore) Close() error {
	return store.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (DocumentRecord, error) {
	var (
		rec        DocumentRecord
		authors    string
		conclusion sql.NullString
		refCount   sql.NullInt64
	)
	err := row.Scan(&rec.Title, &authors, &rec.Published, &rec.Abstract, &rec.Link, &rec.PrimaryCategory,
		&conclusion, &refCount, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return DocumentRecord{}, err
	}
	if authors != "" {
		if err := json.Unmarshal([]byte(authors), &rec.Authors); err != nil {
			return DocumentRecord{}, fmt.Errorf("decoding authors: %w", err)
		}
	}
	if conclusion.Valid {
		c := conclusion.String
		rec.Conclusion = &c
	}
	if refCount.Valid {
		n := int(refCount.Int64)
		rec.RefCount = &n
	}
	return rec, nil
}
