// Package crawler implements the crawl driver: it resolves per-category
// specs, selects a fetch engine, drives pagination, and persists
// extracted articles with resumable progress.
package crawler

import (
	"fmt"
	"sync"
	"time"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/pagination"
)

// CrawlSpec is the immutable per-category configuration. It is built
// once before a category's crawl begins and shared read-only with every
// component working on that category.
type CrawlSpec struct {
	Site              string
	Category          string
	ArchiveURL        string
	ItemSelector      string
	ContentSelector   string
	ThumbnailSelector string
	Pagination        pagination.Strategy
	Delay             DelayPolicy
	PageLimit         int
	ForcedEngine      string
	UseProxy          bool
	Timeout           time.Duration
	MinContentBytes   int
}

// Validate rejects specs that cannot produce a correct crawl.
func (s CrawlSpec) Validate() error {
	if s.Category == "" {
		return fmt.Errorf("spec has no category name")
	}
	if s.ArchiveURL == "" {
		return fmt.Errorf("category %s: archive_url must be set", s.Category)
	}
	if s.ItemSelector == "" {
		return fmt.Errorf("category %s: item_selector must be set", s.Category)
	}
	if s.ContentSelector == "" {
		return fmt.Errorf("category %s: content_selector must be set", s.Category)
	}
	if s.PageLimit < 0 {
		return fmt.Errorf("category %s: page_limit must be >= 0", s.Category)
	}
	return nil
}

// Snapshot is a point-in-time copy of the run counters, shaped for the
// status endpoint.
type Snapshot struct {
	ArchivePages      int               `json:"archive_pages_processed"`
	ItemsFound        int               `json:"archive_items_found"`
	ArticlesAttempted int               `json:"articles_attempted"`
	ArticlesSaved     int               `json:"articles_saved"`
	ArticlesSkipped   int               `json:"articles_skipped"`
	Errors            int               `json:"errors"`
	FailedCategories  map[string]string `json:"failed_categories,omitempty"`
	CommittedPages    map[string]int    `json:"committed_pages,omitempty"`
}

// ResumeCursor formats the highest committed position for a category as
// a --resume-cursor value, or "" when no page has been committed.
func (s Snapshot) ResumeCursor(category string) string {
	page, ok := s.CommittedPages[category]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s,%d", category, page)
}

// Stats accumulates run counters. All locally recovered errors end up
// here instead of being silently discarded.
type Stats struct {
	mu      sync.Mutex
	current Snapshot
}

// NewStats builds an empty counter set.
func NewStats() *Stats {
	return &Stats{current: Snapshot{
		FailedCategories: make(map[string]string),
		CommittedPages:   make(map[string]int),
	}}
}

func (s *Stats) addPage(items int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.ArchivePages++
	s.current.ItemsFound += items
}

func (s *Stats) addAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.ArticlesAttempted++
}

func (s *Stats) addSaved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.ArticlesSaved++
}

func (s *Stats) addSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.ArticlesSkipped++
}

func (s *Stats) addError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Errors++
}

func (s *Stats) commitPage(category string, page int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if page > s.current.CommittedPages[category] {
		s.current.CommittedPages[category] = page
	}
}

func (s *Stats) failCategory(category, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Errors++
	s.current.FailedCategories[category] = reason
}

// Snapshot returns a copy safe to serialize while the crawl runs.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.current
	snap.FailedCategories = make(map[string]string, len(s.current.FailedCategories))
	for k, v := range s.current.FailedCategories {
		snap.FailedCategories[k] = v
	}
	snap.CommittedPages = make(map[string]int, len(s.current.CommittedPages))
	for k, v := range s.current.CommittedPages {
		snap.CommittedPages[k] = v
	}
	return snap
}
