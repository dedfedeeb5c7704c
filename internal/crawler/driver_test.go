package crawler

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/engine"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/extract"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/pagination"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/resume"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/storage"
)

// siteEngine serves canned documents keyed by URL and records every
// fetch in order.
type siteEngine struct {
	mu      sync.Mutex
	name    string
	pages   map[string]string
	failing map[string]error
	fetched []string
}

func newSiteEngine(pages map[string]string) *siteEngine {
	return &siteEngine{name: engine.NamePlain, pages: pages, failing: map[string]error{}}
}

func (s *siteEngine) Name() string { return s.name }

func (s *siteEngine) Fetch(_ context.Context, req engine.Request) (engine.Page, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, req.URL)
	s.mu.Unlock()
	if err, ok := s.failing[req.URL]; ok {
		return engine.Page{}, err
	}
	body, ok := s.pages[req.URL]
	if !ok {
		return engine.Page{}, &engine.FetchError{Kind: engine.KindStatus, URL: req.URL, StatusCode: http.StatusNotFound}
	}
	return engine.Page{
		URL:        req.URL,
		FinalURL:   req.URL,
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Duration:   time.Millisecond,
	}, nil
}

func (s *siteEngine) Close(context.Context) error { return nil }

func (s *siteEngine) fetchCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.fetched {
		if u == url {
			n++
		}
	}
	return n
}

func archiveDoc(links ...string) string {
	doc := "<html><body>"
	for _, link := range links {
		doc += `<div class="post"><a href="` + link + `">headline for item</a></div>`
	}
	return doc + "</body></html>"
}

func articleDoc(title string) string {
	return `<html><head><title>` + title + `</title></head><body>` +
		`<article class="content"><p>article body text</p></article></body></html>`
}

func newsSpec(category, archiveURL string) CrawlSpec {
	return CrawlSpec{
		Site:            "dailynews",
		Category:        category,
		ArchiveURL:      archiveURL,
		ItemSelector:    ".post",
		ContentSelector: "article.content",
		Pagination:      pagination.Strategy{Kind: pagination.KindQueryParam, Param: "?page={n}"},
		PageLimit:       3,
		ForcedEngine:    engine.NamePlain,
		Timeout:         time.Second,
	}
}

func driverOptions(t *testing.T, eng engine.Engine, specs ...CrawlSpec) Options {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "out.ndjson"), storage.FormatNDJSON)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	return Options{
		Specs:    specs,
		Selector: engine.NewSelector([]engine.Engine{eng}, 1, zap.NewNop()),
		Store:    store,
		Ledger:   resume.NewLedger(),
		Logger:   zap.NewNop(),
		HostQPS:  10000,
	}
}

func TestDriverCrawlsCategoryEndToEnd(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/news":         archiveDoc("/news/a1", "/news/a2"),
		"https://example.org/news?page=2":  archiveDoc("/news/a2", "/news/a3"),
		"https://example.org/news?page=3":  archiveDoc(),
		"https://example.org/news/a1":      articleDoc("Article One Title"),
		"https://example.org/news/a2":      articleDoc("Article Two Title"),
		"https://example.org/news/a3":      articleDoc("Article Three Title"),
	})

	opts := driverOptions(t, site, newsSpec("politics", "https://example.org/news"))
	driver, err := NewDriver(opts)
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))

	snap := driver.Stats().Snapshot()
	require.Equal(t, 3, snap.ArchivePages)
	require.Equal(t, 3, snap.ArticlesSaved, "cross-page duplicate a2 is saved once")
	require.Equal(t, 3, snap.ArticlesAttempted)
	require.Zero(t, snap.Errors)
	require.Empty(t, snap.FailedCategories)

	require.Equal(t, 1, site.fetchCount("https://example.org/news/a2"), "duplicate item fetched once")
	require.True(t, opts.Store.Exists(extract.ArticleID("https://example.org/news/a1")))
	require.True(t, opts.Store.Exists(extract.ArticleID("https://example.org/news/a3")))
	require.Equal(t, 2, opts.Ledger.CommittedPage("politics"))
	require.Equal(t, 2, snap.CommittedPages["politics"],
		"committed page is recoverable from the stats snapshot")
	require.Equal(t, "politics,2", snap.ResumeCursor("politics"))
	require.Empty(t, snap.ResumeCursor("sports"))
}

func TestDriverResumeFetchesNoKnownArticles(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/news":        archiveDoc("/news/a1", "/news/a2"),
		"https://example.org/news?page=2": archiveDoc(),
		"https://example.org/news/a1":     articleDoc("Article One Title"),
		"https://example.org/news/a2":     articleDoc("Article Two Title"),
	})

	ledger := resume.NewLedger()
	ledger.SeedIDs(map[string]struct{}{
		extract.ArticleID("https://example.org/news/a1"): {},
		extract.ArticleID("https://example.org/news/a2"): {},
	})

	opts := driverOptions(t, site, newsSpec("politics", "https://example.org/news"))
	opts.Ledger = ledger
	driver, err := NewDriver(opts)
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))

	require.Zero(t, site.fetchCount("https://example.org/news/a1"), "known articles are never refetched")
	require.Zero(t, site.fetchCount("https://example.org/news/a2"))
	snap := driver.Stats().Snapshot()
	require.Equal(t, 2, snap.ArticlesSkipped)
	require.Zero(t, snap.ArticlesSaved)
}

func TestDriverItemFailureIsIsolated(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/news":        archiveDoc("/news/bad", "/news/good"),
		"https://example.org/news?page=2": archiveDoc(),
		"https://example.org/news/good":   articleDoc("Good Article Title"),
	})
	site.failing["https://example.org/news/bad"] = &engine.FetchError{
		Kind: engine.KindNetwork, URL: "https://example.org/news/bad", Err: errors.New("connection reset"),
	}

	opts := driverOptions(t, site, newsSpec("politics", "https://example.org/news"))
	driver, err := NewDriver(opts)
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))

	snap := driver.Stats().Snapshot()
	require.Equal(t, 1, snap.ArticlesSaved, "failure of one item must not block the rest")
	require.Equal(t, 1, snap.Errors)
	require.Empty(t, snap.FailedCategories)
	require.Equal(t, 1, opts.Ledger.CommittedPage("politics"),
		"page commits once every item was attempted, failures included")
}

func TestDriverCategoryFailureIsIsolated(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/sports":        archiveDoc("/sports/s1"),
		"https://example.org/sports?page=2": archiveDoc(),
		"https://example.org/sports/s1":     articleDoc("Sports Article Title"),
	})
	site.failing["https://example.org/broken"] = &engine.FetchError{
		Kind: engine.KindNetwork, URL: "https://example.org/broken", Err: errors.New("no route to host"),
	}

	opts := driverOptions(t, site,
		newsSpec("politics", "https://example.org/broken"),
		newsSpec("sports", "https://example.org/sports"),
	)
	driver, err := NewDriver(opts)
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))

	snap := driver.Stats().Snapshot()
	require.Contains(t, snap.FailedCategories, "politics")
	require.Equal(t, 1, snap.ArticlesSaved, "later categories still run")
}

func TestDriverCursorSkipsEarlierCategories(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/sports?page=2": archiveDoc("/sports/s2"),
		"https://example.org/sports?page=3": archiveDoc(),
		"https://example.org/sports/s2":     articleDoc("Sports Article Title"),
	})

	opts := driverOptions(t, site,
		newsSpec("politics", "https://example.org/news"),
		newsSpec("sports", "https://example.org/sports"),
	)
	opts.Cursor = &resume.Cursor{Category: "sports", Page: 2}
	driver, err := NewDriver(opts)
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))

	require.Zero(t, site.fetchCount("https://example.org/news"), "categories before the cursor are skipped")
	require.Equal(t, 1, site.fetchCount("https://example.org/sports?page=2"), "cursor category starts at its page")
	require.Equal(t, 1, driver.Stats().Snapshot().ArticlesSaved)
}

func TestDriverRejectsBadConfigurationBeforeFetching(t *testing.T) {
	site := newSiteEngine(nil)

	scroll := newsSpec("politics", "https://example.org/news")
	scroll.Pagination = pagination.Strategy{Kind: pagination.KindScroll}
	_, err := NewDriver(driverOptions(t, site, scroll))
	require.True(t, IsConfigError(err))

	opts := driverOptions(t, site, newsSpec("politics", "https://example.org/news"))
	opts.Cursor = &resume.Cursor{Category: "missing", Page: 2}
	_, err = NewDriver(opts)
	require.True(t, IsConfigError(err), "cursor naming an unknown category is a config error")

	click := newsSpec("politics", "https://example.org/news")
	click.Pagination = pagination.Strategy{Kind: pagination.KindClick, Param: ".more"}
	opts = driverOptions(t, site, click)
	opts.Cursor = &resume.Cursor{Category: "politics", Page: 2}
	_, err = NewDriver(opts)
	require.True(t, IsConfigError(err), "page cursors only make sense for queryparam archives")

	require.Zero(t, len(site.fetched), "no network traffic before validation passes")
}

func TestDriverUnknownForcedEngineFailsCategory(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/news": archiveDoc("/news/a1"),
	})
	spec := newsSpec("politics", "https://example.org/news")
	spec.ForcedEngine = "warp"

	opts := driverOptions(t, site, spec)
	driver, err := NewDriver(opts)
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))
	require.Contains(t, driver.Stats().Snapshot().FailedCategories, "politics")
}
