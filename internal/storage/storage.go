// Package storage persists extracted articles in the two supported
// artifact shapes: one JSON record per line (ndjson) and a single JSON
// array. Both expose the same append/exists contract and both can
// enumerate the identifiers already on disk, which is what file-based
// resume runs on.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/extract"
)

// Output formats.
const (
	FormatNDJSON = "ndjson"
	FormatJSON   = "json"
)

// Store is the append-only article sink consumed by the crawl driver.
type Store interface {
	Exists(id string) bool
	Append(article extract.Article) error
	ExistingIDs() map[string]struct{}
	Close() error
}

// Open builds a store for the given format, loading any identifiers
// already present in the file so Exists answers correctly from the
// first call.
func Open(path, format string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	switch strings.ToLower(format) {
	case FormatNDJSON, "":
		return openNDJSON(path)
	case FormatJSON:
		return openJSONArray(path)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// ScanIDs reads an existing artifact and returns every record ID in
// it, regardless of which format produced it. Line-delimited files are
// scanned record by record; anything else is tried as a single array.
func ScanIDs(path string) (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ids, nil
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return ids, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var records []idRecord
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, fmt.Errorf("parse artifact array: %w", err)
		}
		for _, r := range records {
			if r.ID != "" {
				ids[r.ID] = struct{}{}
			}
		}
		return ids, nil
	}
	scanner := bufio.NewScanner(strings.NewReader(trimmed))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r idRecord
		// Malformed lines (for example a truncated final write from an
		// interrupted run) are skipped, not fatal.
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if r.ID != "" {
			ids[r.ID] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	return ids, nil
}

type idRecord struct {
	ID string `json:"id"`
}

// ndjsonStore appends one compact JSON record per line.
type ndjsonStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	ids  map[string]struct{}
}

func openNDJSON(path string) (*ndjsonStore, error) {
	ids, err := ScanIDs(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &ndjsonStore{path: path, file: file, ids: ids}, nil
}

func (s *ndjsonStore) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *ndjsonStore) Append(article extract.Article) error {
	payload, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("marshal article %s: %w", article.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("append article %s: %w", article.ID, err)
	}
	s.ids[article.ID] = struct{}{}
	return nil
}

func (s *ndjsonStore) ExistingIDs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		out[id] = struct{}{}
	}
	return out
}

func (s *ndjsonStore) Close() error { return s.file.Close() }

// jsonArrayStore keeps the full array in memory and rewrites the file
// on every append, matching the single-array artifact shape.
type jsonArrayStore struct {
	mu       sync.Mutex
	path     string
	articles []extract.Article
	ids      map[string]struct{}
}

func openJSONArray(path string) (*jsonArrayStore, error) {
	s := &jsonArrayStore{path: path, ids: make(map[string]struct{})}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read output %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.articles); err != nil {
			return nil, fmt.Errorf("parse existing array %s: %w", path, err)
		}
		for _, a := range s.articles {
			s.ids[a.ID] = struct{}{}
		}
	}
	return s, nil
}

func (s *jsonArrayStore) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

func (s *jsonArrayStore) Append(article extract.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles = append(s.articles, article)
	payload, err := json.MarshalIndent(s.articles, "", "  ")
	if err != nil {
		s.articles = s.articles[:len(s.articles)-1]
		return fmt.Errorf("marshal article array: %w", err)
	}
	if err := os.WriteFile(s.path, payload, 0o640); err != nil {
		s.articles = s.articles[:len(s.articles)-1]
		return fmt.Errorf("write output %s: %w", s.path, err)
	}
	s.ids[article.ID] = struct{}{}
	return nil
}

func (s *jsonArrayStore) ExistingIDs() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.ids))
	for id := range s.ids {
		out[id] = struct{}{}
	}
	return out
}

func (s *jsonArrayStore) Close() error { return nil }
