// Package pagination implements the archive pagination state machine:
// strategy dispatch, next-page derivation, cross-page URL
// de-duplication, and the termination heuristics that keep unlimited
// crawls bounded.
package pagination

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a pagination strategy.
type Kind string

// Supported strategies. Scroll is declared but unimplemented: building
// a controller for it fails fast instead of silently degrading to a
// single-page crawl.
const (
	KindNone       Kind = "none"
	KindQueryParam Kind = "queryparam"
	KindClick      Kind = "click"
	KindScroll     Kind = "scroll"
)

// ErrScrollUnsupported is returned when a scroll strategy is requested.
var ErrScrollUnsupported = errors.New("scroll pagination is not supported")

// ParseKind validates a strategy name from configuration.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindNone, "":
		return KindNone, nil
	case KindQueryParam:
		return KindQueryParam, nil
	case KindClick:
		return KindClick, nil
	case KindScroll:
		return KindScroll, nil
	default:
		return "", fmt.Errorf("unknown pagination type %q", raw)
	}
}

// Strategy pairs a kind with its parameter: a page template containing
// {n} for queryparam, or the load-more button selector for click.
type Strategy struct {
	Kind  Kind
	Param string
}

// Phase is the controller's state.
type Phase int

// Controller phases.
const (
	Active Phase = iota
	Exhausted
)

// Result is what the driver feeds back after fetching one archive
// page: the item URLs found on it (document order), the raw page size,
// and how the fetch ended.
type Result struct {
	ItemURLs []string
	Bytes    int
	NotFound bool
	Failed   bool
}

// Next describes the controller's decision after a page.
type Next struct {
	URL  string
	Done bool
}

// Step bundles the net-new URLs admitted from a page with the
// transition decision.
type Step struct {
	NewURLs []string
	Next    Next
}

const (
	defaultEmptyLimit    = 2
	defaultClickBudget   = 10
	defaultNoNewClickCap = 2
	hardPageCap          = 1000
)

// Options tune controller heuristics.
type Options struct {
	// PageLimit is the hard ceiling on pages visited (clicks for the
	// click strategy). Zero means unlimited.
	PageLimit int
	// MinContentBytes marks a page as near-empty for the soft-404
	// heuristic; it is the same threshold the engines use for their
	// blocked-content check.
	MinContentBytes int
	// EmptyPageLimit is the number of consecutive empty or near-empty
	// pages tolerated before an unlimited crawl stops. Defaults to 2.
	EmptyPageLimit int
}

// Controller owns PaginationState for one category crawl. It is not
// safe for concurrent use; each category run owns exactly one.
type Controller struct {
	baseURL  string
	strategy Strategy
	opts     Options

	phase        Phase
	page         int
	pagesVisited int
	smallStreak  int
	emptyStreak  int
	seen         *orderedSet
}

// New builds a controller starting at page 1.
func New(baseURL string, strategy Strategy, opts Options) (*Controller, error) {
	switch strategy.Kind {
	case KindScroll:
		return nil, ErrScrollUnsupported
	case KindQueryParam:
		if !strings.Contains(strategy.Param, "{n}") {
			return nil, fmt.Errorf("queryparam pagination requires a {n} placeholder, got %q", strategy.Param)
		}
	case KindClick:
		if strings.TrimSpace(strategy.Param) == "" {
			return nil, errors.New("click pagination requires a button selector")
		}
	case KindNone:
	default:
		return nil, fmt.Errorf("unknown pagination kind %q", strategy.Kind)
	}
	if opts.EmptyPageLimit <= 0 {
		opts.EmptyPageLimit = defaultEmptyLimit
	}
	return &Controller{
		baseURL:  baseURL,
		strategy: strategy,
		opts:     opts,
		phase:    Active,
		page:     1,
		seen:     newOrderedSet(),
	}, nil
}

// StartAt positions the controller at a resume page index. Only the
// queryparam strategy has page identity independent of interaction
// history, so anything else is rejected.
func (c *Controller) StartAt(page int) error {
	if page <= 1 {
		return nil
	}
	if c.strategy.Kind != KindQueryParam {
		return fmt.Errorf("cursor resume requires queryparam pagination, not %q", c.strategy.Kind)
	}
	c.page = page
	return nil
}

// Kind returns the strategy kind.
func (c *Controller) Kind() Kind { return c.strategy.Kind }

// Phase returns the current phase.
func (c *Controller) Phase() Phase { return c.phase }

// CurrentPage returns the 1-based index of the page the controller is
// about to (or just did) process.
func (c *Controller) CurrentPage() int { return c.page }

// CurrentURL derives the URL for the current page index.
func (c *Controller) CurrentURL() string {
	return c.pageURL(c.page)
}

// pageURL substitutes the index into the template. Page 1 is always
// the base archive URL itself.
func (c *Controller) pageURL(page int) string {
	if page <= 1 || c.strategy.Kind != KindQueryParam {
		return c.baseURL
	}
	param := strings.ReplaceAll(c.strategy.Param, "{n}", fmt.Sprint(page))
	if strings.HasPrefix(param, "?") || strings.HasPrefix(param, "&") {
		return c.baseURL + param
	}
	return strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(param, "/")
}

// Admit de-duplicates item URLs against everything seen so far over
// the whole category, preserving first-seen order, and returns only the
// net-new ones.
func (c *Controller) Admit(urls []string) []string {
	return c.seen.addAll(urls)
}

// Items returns every admitted URL in first-seen order.
func (c *Controller) Items() []string { return c.seen.items() }

// Advance consumes a page result, admits its URLs, and decides whether
// another page follows. Calling Advance on an exhausted controller
// stays exhausted.
func (c *Controller) Advance(res Result) Step {
	if c.phase == Exhausted {
		return Step{Next: Next{Done: true}}
	}
	newURLs := c.Admit(res.ItemURLs)
	c.pagesVisited++

	switch c.strategy.Kind {
	case KindNone, KindClick:
		// A single logical page; click interactions happen inside the
		// fetch and the limit applies to clicks, not to this loop.
		c.exhaust()
	case KindQueryParam:
		c.advanceQueryParam(res)
	}
	if c.phase == Exhausted {
		return Step{NewURLs: newURLs, Next: Next{Done: true}}
	}
	return Step{NewURLs: newURLs, Next: Next{URL: c.CurrentURL()}}
}

func (c *Controller) advanceQueryParam(res Result) {
	if res.NotFound || res.Failed {
		c.exhaust()
		return
	}
	if len(res.ItemURLs) == 0 {
		c.emptyStreak++
	} else {
		c.emptyStreak = 0
	}
	if c.opts.MinContentBytes > 0 && res.Bytes < c.opts.MinContentBytes {
		c.smallStreak++
	} else {
		c.smallStreak = 0
	}

	switch {
	case len(res.ItemURLs) == 0 && c.opts.PageLimit > 0:
		// Bounded crawls stop on the first empty page.
		c.exhaust()
	case c.emptyStreak >= c.opts.EmptyPageLimit:
		c.exhaust()
	case c.smallStreak >= c.opts.EmptyPageLimit:
		// Soft-404s return HTTP 200 with a near-empty shell; two in a
		// row means the archive has run out.
		c.exhaust()
	case c.opts.PageLimit > 0 && c.pagesVisited >= c.opts.PageLimit:
		c.exhaust()
	case c.pagesVisited >= hardPageCap:
		c.exhaust()
	default:
		c.page++
	}
}

func (c *Controller) exhaust() { c.phase = Exhausted }

// ClickBudget returns how many load-more interactions the click
// strategy may perform: pageLimit-1 when a limit is set (the first
// fetch counts as page one), otherwise a default.
func (c *Controller) ClickBudget() int {
	if c.opts.PageLimit > 0 {
		return c.opts.PageLimit - 1
	}
	return defaultClickBudget
}

// ButtonSelector returns the click strategy's control selector.
func (c *Controller) ButtonSelector() string { return c.strategy.Param }

// ClickObserver returns the callback handed to the engine's click
// loop. extract maps a document snapshot to the item URLs it lists;
// the observer admits them and stops the loop once the configured
// number of consecutive clicks yields nothing net-new.
func (c *Controller) ClickObserver(extract func(html []byte) []string) func(html []byte) bool {
	noNew := 0
	return func(html []byte) bool {
		added := c.Admit(extract(html))
		if len(added) == 0 {
			noNew++
		} else {
			noNew = 0
		}
		return noNew < defaultNoNewClickCap
	}
}

// orderedSet tracks URLs with first-seen ordering. Same role as the
// crawl-wide visit tracker, minus the locking: the controller has a
// single owner.
type orderedSet struct {
	index map[string]struct{}
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{index: make(map[string]struct{})}
}

func (s *orderedSet) addAll(urls []string) []string {
	var added []string
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := s.index[u]; dup {
			continue
		}
		s.index[u] = struct{}{}
		s.order = append(s.order, u)
		added = append(added, u)
	}
	return added
}

func (s *orderedSet) items() []string {
	return append([]string(nil), s.order...)
}
