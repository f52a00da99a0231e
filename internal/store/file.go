package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/uniplaces/carbon"
)

const (
	documentsFile = "documents.json"
	summariesFile = "summaries.json"
)

// FileStore keeps each collection in one JSON object on disk.
// Every write reloads the file, merges the record and replaces the file atomically,
// so concurrent writers never lose each other's records.
type FileStore struct {
	dir   string
	docMu sync.Mutex
	sumMu sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) GetDocument(_ context.Context, title string) (DocumentRecord, bool, error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	docs := map[string]DocumentRecord{}
	if err := s.load(documentsFile, &docs); err != nil {
		return DocumentRecord{}, false, err
	}
	rec, ok := docs[title]
	return rec, ok, nil
}

func (s *FileStore) UpsertDocument(_ context.Context, rec DocumentRecord) error {
	if rec.Title == "" {
		return errors.New("document title is required")
	}
	s.docMu.Lock()
	defer s.docMu.Unlock()

	docs := map[string]DocumentRecord{}
	if err := s.load(documentsFile, &docs); err != nil {
		return err
	}
	now := carbon.Now().DateTimeString()
	rec.CreatedAt = now
	if prev, ok := docs[rec.Title]; ok && prev.CreatedAt != "" {
		rec.CreatedAt = prev.CreatedAt
	}
	rec.UpdatedAt = now
	docs[rec.Title] = rec
	return s.save(documentsFile, docs)
}

// ListDocuments returns every document, newest publication first.
func (s *FileStore) ListDocuments(_ context.Context) ([]DocumentRecord, error) {
	s.docMu.Lock()
	defer s.docMu.Unlock()

	docs := map[string]DocumentRecord{}
	if err := s.load(documentsFile, &docs); err != nil {
		return nil, err
	}
	out := make([]DocumentRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	sortDocuments(out)
	return out, nil
}

func (s *FileStore) GetSummary(_ context.Context, link string) (SummaryRecord, bool, error) {
	s.sumMu.Lock()
	defer s.sumMu.Unlock()

	sums := map[string]SummaryRecord{}
	if err := s.load(summariesFile, &sums); err != nil {
		return SummaryRecord{}, false, err
	}
	rec, ok := sums[link]
	if ok {
		rec.Link = link
	}
	return rec, ok, nil
}

func (s *FileStore) UpsertSummary(_ context.Context, rec SummaryRecord) error {
	if rec.Link == "" {
		return errors.New("summary link is required")
	}
	s.sumMu.Lock()
	defer s.sumMu.Unlock()

	sums := map[string]SummaryRecord{}
	if err := s.load(summariesFile, &sums); err != nil {
		return err
	}
	now := carbon.Now().DateTimeString()
	rec.CreatedAt = now
	if prev, ok := sums[rec.Link]; ok && prev.CreatedAt != "" {
		rec.CreatedAt = prev.CreatedAt
	}
	rec.UpdatedAt = now
	sums[rec.Link] = rec
	return s.save(summariesFile, sums)
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

func sortDocuments(docs []DocumentRecord) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Published != docs[j].Published {
			return docs[i].Published > docs[j].Published
		}
		return docs[i].Title < docs[j].Title
	})
}
