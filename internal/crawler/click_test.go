package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/engine"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/pagination"
)

// clickEngine simulates a load-more archive: each click reveals the
// next document snapshot.
type clickEngine struct {
	*siteEngine
	snapshots []string
	clicks    int
}

func (c *clickEngine) FetchClicking(ctx context.Context, req engine.Request, _ string, maxClicks int, observe func(html []byte) bool) (engine.Page, error) {
	page, err := c.Fetch(ctx, req)
	if err != nil {
		return engine.Page{}, err
	}
	body := page.Body
	for i := 0; i < maxClicks && i < len(c.snapshots); i++ {
		c.clicks++
		body = []byte(c.snapshots[i])
		if !observe(body) {
			break
		}
	}
	page.Body = body
	return page, nil
}

func clickSpec() CrawlSpec {
	return CrawlSpec{
		Site:            "dailynews",
		Category:        "videos",
		ArchiveURL:      "https://example.org/videos",
		ItemSelector:    ".post",
		ContentSelector: "article.content",
		Pagination:      pagination.Strategy{Kind: pagination.KindClick, Param: "button.load-more"},
		PageLimit:       5,
		ForcedEngine:    engine.NamePlain,
		Timeout:         time.Second,
	}
}

func TestDriverClickPagination(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/videos":    archiveDoc("/videos/v1"),
		"https://example.org/videos/v1": articleDoc("Video One Title"),
		"https://example.org/videos/v2": articleDoc("Video Two Title"),
		"https://example.org/videos/v3": articleDoc("Video Three Title"),
	})
	eng := &clickEngine{
		siteEngine: site,
		snapshots: []string{
			archiveDoc("/videos/v1", "/videos/v2"),
			archiveDoc("/videos/v1", "/videos/v2", "/videos/v3"),
			archiveDoc("/videos/v1", "/videos/v2", "/videos/v3"),
			archiveDoc("/videos/v1", "/videos/v2", "/videos/v3"),
		},
	}

	opts := driverOptions(t, eng, clickSpec())
	driver, err := NewDriver(opts)
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))

	snap := driver.Stats().Snapshot()
	require.Equal(t, 3, snap.ArticlesSaved, "every revealed item is scraped once")
	require.LessOrEqual(t, eng.clicks, 4, "clicking stops after consecutive barren clicks")
	require.GreaterOrEqual(t, eng.clicks, 2)
	require.Equal(t, 1, opts.Ledger.CommittedPage("videos"), "a click archive is one logical page")
}

func TestDriverClickFallsBackWithoutClicker(t *testing.T) {
	site := newSiteEngine(map[string]string{
		"https://example.org/videos":    archiveDoc("/videos/v1"),
		"https://example.org/videos/v1": articleDoc("Video One Title"),
	})

	driver, err := NewDriver(driverOptions(t, site, clickSpec()))
	require.NoError(t, err)
	require.NoError(t, driver.Run(context.Background()))

	snap := driver.Stats().Snapshot()
	require.Equal(t, 1, snap.ArticlesSaved, "non-clicking engines still scrape the first page")
}
