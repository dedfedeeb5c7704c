// Package resume tracks crawl progress so an interrupted run can pick
// up where it stopped: a file-based mode that re-derives identifiers
// from an existing output artifact, and an explicit category,page
// cursor for queryparam archives.
package resume

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Cursor is an explicit resume position: skip every category before
// Category, then start it at Page instead of page 1.
type Cursor struct {
	Category string
	Page     int
}

// ParseCursor parses the "category,page" argument shape.
func ParseCursor(raw string) (Cursor, error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("resume cursor must be category,page: %q", raw)
	}
	category := strings.TrimSpace(parts[0])
	if category == "" {
		return Cursor{}, fmt.Errorf("resume cursor has empty category: %q", raw)
	}
	page, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Cursor{}, fmt.Errorf("resume cursor page %q is not a number", parts[1])
	}
	if page < 1 {
		return Cursor{}, fmt.Errorf("resume cursor page must be >= 1, got %d", page)
	}
	return Cursor{Category: category, Page: page}, nil
}

// Ledger records, per category, the last fully committed page index
// and the identifiers already persisted. A page index only advances
// after every item on that page has been attempted, so cancellation
// mid-page leaves the page uncommitted and a later resume re-attempts
// it.
type Ledger struct {
	mu        sync.Mutex
	pages     map[string]int
	doneIDs   map[string]struct{}
	seededIDs int
}

// NewLedger builds an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		pages:   make(map[string]int),
		doneIDs: make(map[string]struct{}),
	}
}

// SeedIDs loads identifiers recovered from an existing output
// artifact. Seeded IDs are treated as done regardless of category or
// page bookkeeping.
func (l *Ledger) SeedIDs(ids map[string]struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id := range ids {
		l.doneIDs[id] = struct{}{}
	}
	l.seededIDs = len(ids)
}

// SeededCount reports how many IDs came from the artifact scan.
func (l *Ledger) SeededCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seededIDs
}

// Done reports whether an item identifier is already persisted.
func (l *Ledger) Done(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.doneIDs[id]
	return ok
}

// MarkDone records an identifier as persisted.
func (l *Ledger) MarkDone(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.doneIDs[id] = struct{}{}
}

// CommitPage records that every item on the page was attempted.
// Indexes never move backwards.
func (l *Ledger) CommitPage(category string, page int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if page > l.pages[category] {
		l.pages[category] = page
	}
}

// CommittedPage returns the last fully processed page for a category,
// or 0 when none committed.
func (l *Ledger) CommittedPage(category string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pages[category]
}
