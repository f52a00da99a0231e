package store

import "context"

// DocumentRecord is the stored metadata of one paper. Title is the natural key.
type DocumentRecord struct {
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	Published       string   `json:"published"`
	Abstract        string   `json:"abstract"`
	Link            string   `json:"link"`
	PrimaryCategory string   `json:"primary_category"`
	Conclusion      *string  `json:"conclusion"`
	RefCount        *int     `json:"ref_count"`
	CreatedAt       string   `json:"created_at,omitempty"`
	UpdatedAt       string   `json:"updated_at,omitempty"`
}

// SummaryRecord holds the generated artifacts of one paper. Link is the natural key.
// FullText is the parsed body kept so indexing can be redelivered.
type SummaryRecord struct {
	Link      string `json:"-"`
	Summary   string `json:"summary"`
	Insights  string `json:"insights"`
	FullText  string `json:"full_text,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ArtifactStore persists documents by title and summaries by link.
// Upserts replace an existing record in place; CreatedAt survives replacement.
type ArtifactStore interface {
	GetDocument(ctx context.Context, title string) (DocumentRecord, bool, error)
	UpsertDocument(ctx context.Context, rec DocumentRecord) error
	ListDocuments(ctx context.Context) ([]DocumentRecord, error)
	GetSummary(ctx context.Context, link string) (SummaryRecord, bool, error)
	UpsertSummary(ctx context.Context, rec SummaryRecord) error
	Close() error
}
