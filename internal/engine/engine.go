// Package engine implements the fetch transports used to retrieve
// archive and article pages: a plain HTTP engine built on Colly, a
// scripted renderer driving tabs in a shared headless Chrome, and a
// heavier browser-driver engine that launches a dedicated Chrome
// process per fetch. All three satisfy the same Engine contract so the
// rest of the system never branches on transport identity.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Engine names used in configuration and probe ordering.
const (
	NamePlain    = "plain"
	NameRendered = "rendered"
	NameBrowser  = "browser"
)

// Request carries everything an engine needs for one fetch. Identity
// rotation decisions (proxy, headers) are made by the caller; engines
// only attach what they are handed.
type Request struct {
	URL     string
	Timeout time.Duration
	Proxy   string
	Headers http.Header

	// WaitSelector, when set, asks rendering engines to wait for the
	// selector to appear before snapshotting the DOM. The plain engine
	// ignores it.
	WaitSelector string
}

// Page is the outcome of a successful fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// Size returns the raw body length in bytes.
func (p Page) Size() int { return len(p.Body) }

// Engine fetches a URL and returns the rendered HTML.
type Engine interface {
	Name() string
	Fetch(ctx context.Context, req Request) (Page, error)
	Close(ctx context.Context) error
}

// Clicker is the optional capability needed by click ("load more")
// pagination: fetch a page, then repeatedly click a control element,
// reporting the document after each interaction through observe. The
// observe callback returns false to stop clicking early.
type Clicker interface {
	FetchClicking(ctx context.Context, req Request, buttonSelector string, maxClicks int, observe func(html []byte) bool) (Page, error)
}

// ErrorKind classifies fetch failures.
type ErrorKind string

// Fetch failure classes.
const (
	KindNetwork ErrorKind = "network"
	KindTimeout ErrorKind = "timeout"
	KindStatus  ErrorKind = "status"
	KindBlocked ErrorKind = "blocked"
)

// FetchError is the typed failure returned by every engine.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case KindBlocked:
		return fmt.Sprintf("fetch %s: content blocked or empty", e.URL)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsNotFound reports whether the error is an HTTP 404/410 status
// failure, which the pagination controller treats as end-of-archive.
func IsNotFound(err error) bool {
	var fe *FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == KindStatus && (fe.StatusCode == http.StatusNotFound || fe.StatusCode == http.StatusGone)
}

func classifyErr(url string, err error) *FetchError {
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}
