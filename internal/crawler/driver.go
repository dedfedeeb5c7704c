package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/engine"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/extract"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/identity"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/pagination"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/progress"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/resume"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/storage"
)

// ConfigError is fatal: it is surfaced before any fetch and no partial
// run is attempted.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Options wires the driver's collaborators.
type Options struct {
	Specs       []CrawlSpec
	Selector    *engine.Selector
	Headers     *identity.HeaderPool
	Proxies     *identity.ProxyPool
	Robots      RobotsPolicy
	Store       storage.Store
	Ledger      *resume.Ledger
	Cursor      *resume.Cursor
	Hub         *progress.Hub
	Logger      *zap.Logger
	Stats       *Stats
	HostQPS     float64
	SkipArchive bool
	URLsDir     string
	Seed        int64
}

// Driver runs the crawl: one category at a time, archive pages in
// pagination order, then detail pages for the URLs each archive page
// contributed, committing resume progress page by page.
type Driver struct {
	specs       []CrawlSpec
	selector    *engine.Selector
	headers     *identity.HeaderPool
	proxies     *identity.ProxyPool
	robots      RobotsPolicy
	store       storage.Store
	ledger      *resume.Ledger
	cursor      *resume.Cursor
	hub         *progress.Hub
	logger      *zap.Logger
	stats       *Stats
	skipArchive bool
	urlsDir     string

	pauser       *pauser
	hostLimiters sync.Map
	hostQPS      float64
	runID        uuid.UUID
	now          func() time.Time
}

// NewDriver validates options and builds a Driver.
func NewDriver(opts Options) (*Driver, error) {
	if len(opts.Specs) == 0 {
		return nil, configErrorf("no categories resolved from configuration")
	}
	if opts.Selector == nil || opts.Store == nil {
		return nil, errors.New("driver requires an engine selector and a store")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Stats == nil {
		opts.Stats = NewStats()
	}
	if opts.Ledger == nil {
		opts.Ledger = resume.NewLedger()
	}
	if opts.Robots == nil {
		opts.Robots = allowAllRobots{}
	}
	if opts.Headers == nil {
		opts.Headers = identity.NewHeaderPool(opts.Seed)
	}
	if opts.Proxies == nil {
		opts.Proxies = identity.NewProxyPool(nil)
	}
	if opts.HostQPS <= 0 {
		opts.HostQPS = 1
	}
	d := &Driver{
		specs:       opts.Specs,
		selector:    opts.Selector,
		headers:     opts.Headers,
		proxies:     opts.Proxies,
		robots:      opts.Robots,
		store:       opts.Store,
		ledger:      opts.Ledger,
		cursor:      opts.Cursor,
		hub:         opts.Hub,
		logger:      opts.Logger,
		stats:       opts.Stats,
		skipArchive: opts.SkipArchive,
		urlsDir:     opts.URLsDir,
		pauser:      newPauser(opts.Seed),
		hostQPS:     opts.HostQPS,
		runID:       uuid.New(),
		now:         time.Now,
	}
	if err := d.preflight(); err != nil {
		return nil, err
	}
	return d, nil
}

// Stats exposes the run counters for the status server.
func (d *Driver) Stats() *Stats { return d.stats }

// preflight surfaces every configuration error before any network IO.
func (d *Driver) preflight() error {
	cursorSeen := false
	for _, spec := range d.specs {
		if err := spec.Validate(); err != nil {
			return configErrorf("%v", err)
		}
		if spec.Pagination.Kind == pagination.KindScroll {
			return configErrorf("category %s: %v", spec.Category, pagination.ErrScrollUnsupported)
		}
		if d.cursor != nil && spec.Category == d.cursor.Category {
			cursorSeen = true
			if spec.Pagination.Kind != pagination.KindQueryParam && d.cursor.Page > 1 {
				return configErrorf(
					"cursor resume at %s,%d requires queryparam pagination, category uses %q",
					d.cursor.Category, d.cursor.Page, spec.Pagination.Kind,
				)
			}
		}
	}
	if d.cursor != nil && !cursorSeen {
		return configErrorf("cursor resume category %q is not configured", d.cursor.Category)
	}
	return nil
}

// Run crawls every configured category in order. Category failures are
// isolated; the run only fails outright on cancellation.
func (d *Driver) Run(ctx context.Context) error {
	start := d.now()
	d.emit(progress.Event{Stage: progress.StageRunStart})
	d.logger.Info("crawl starting",
		zap.String("run_id", d.runID.String()),
		zap.Int("categories", len(d.specs)),
		zap.Int("known_ids", d.ledger.SeededCount()),
	)

	skipping := d.cursor != nil
	for _, spec := range d.specs {
		if skipping {
			if spec.Category != d.cursor.Category {
				d.logger.Info("skipping category before resume cursor", zap.String("category", spec.Category))
				continue
			}
			skipping = false
		}
		startPage := 1
		if d.cursor != nil && spec.Category == d.cursor.Category {
			startPage = d.cursor.Page
		}
		if err := d.crawlCategory(ctx, spec, startPage); err != nil {
			if ctx.Err() != nil {
				d.logger.Warn("crawl interrupted", zap.String("category", spec.Category))
				return ctx.Err()
			}
			d.stats.failCategory(spec.Category, err.Error())
			d.emit(progress.Event{Stage: progress.StageCategoryError, Category: spec.Category, Note: err.Error()})
			d.logger.Error("category failed; continuing with next",
				zap.String("category", spec.Category), zap.Error(err))
		}
	}

	d.emit(progress.Event{Stage: progress.StageRunDone, Dur: d.now().Sub(start)})
	d.logFinalStats()
	return nil
}

func (d *Driver) crawlCategory(ctx context.Context, spec CrawlSpec, startPage int) error {
	d.emit(progress.Event{Stage: progress.StageCategoryStart, Category: spec.Category})
	d.logger.Info("category starting",
		zap.String("category", spec.Category),
		zap.String("archive_url", spec.ArchiveURL),
		zap.String("pagination", string(spec.Pagination.Kind)),
		zap.Int("start_page", startPage),
	)

	var batches []pageBatch
	var thumbs map[string]string
	var detailProbeURL string

	if d.skipArchive {
		urls, err := loadURLArtifact(d.urlsDir, spec)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			d.logger.Warn("url artifact is empty", zap.String("category", spec.Category))
			return nil
		}
		batches = []pageBatch{{page: startPage, urls: urls}}
		thumbs = map[string]string{}
		detailProbeURL = urls[0]
	} else {
		archiveEngine, err := d.chooseEngine(ctx, spec, spec.ArchiveURL, spec.ItemSelector)
		if err != nil {
			return err
		}
		batches, thumbs, err = d.collectArchive(ctx, spec, archiveEngine, startPage)
		if err != nil {
			return err
		}
		if err := saveURLArtifact(d.urlsDir, spec, batchURLs(batches)); err != nil {
			d.logger.Warn("failed to save url artifact", zap.Error(err))
		}
		if len(batches) > 0 && len(batches[0].urls) > 0 {
			detailProbeURL = batches[0].urls[0]
		}
	}

	if detailProbeURL == "" {
		d.logger.Info("no new item urls collected", zap.String("category", spec.Category))
		d.emit(progress.Event{Stage: progress.StageCategoryDone, Category: spec.Category})
		return nil
	}

	detailEngine, err := d.chooseEngine(ctx, spec, detailProbeURL, spec.ContentSelector)
	if err != nil {
		return fmt.Errorf("detail engine: %w", err)
	}

	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.processBatch(ctx, spec, detailEngine, batch, thumbs)
		// Only now has every item on the page been attempted; a
		// cancellation above leaves the page uncommitted for re-try.
		d.ledger.CommitPage(spec.Category, batch.page)
		d.stats.commitPage(spec.Category, batch.page)
		// The log line is the user's source for --resume-cursor after
		// an interruption.
		d.logger.Info("page committed",
			zap.String("category", spec.Category),
			zap.Int("page", batch.page),
			zap.String("resume_cursor", d.stats.Snapshot().ResumeCursor(spec.Category)))
	}

	d.emit(progress.Event{Stage: progress.StageCategoryDone, Category: spec.Category})
	d.logger.Info("category finished", zap.String("category", spec.Category))
	return nil
}

// chooseEngine resolves the forced engine or probes candidates against
// a representative page.
func (d *Driver) chooseEngine(ctx context.Context, spec CrawlSpec, probeURL, selector string) (engine.Engine, error) {
	if spec.ForcedEngine != "" {
		eng, err := d.selector.Forced(spec.ForcedEngine)
		if err != nil {
			return nil, configErrorf("category %s: %v", spec.Category, err)
		}
		return eng, nil
	}
	return d.selector.Choose(ctx, probeURL, selector, d.buildRequest(spec))
}

// pageBatch keeps page attribution for the ledger: items are committed
// per archive page, never across pages.
type pageBatch struct {
	page int
	urls []string
}

func batchURLs(batches []pageBatch) []string {
	var all []string
	for _, b := range batches {
		all = append(all, b.urls...)
	}
	return all
}

func (d *Driver) collectArchive(ctx context.Context, spec CrawlSpec, eng engine.Engine, startPage int) ([]pageBatch, map[string]string, error) {
	ctl, err := pagination.New(spec.ArchiveURL, spec.Pagination, pagination.Options{
		PageLimit:       spec.PageLimit,
		MinContentBytes: spec.MinContentBytes,
	})
	if err != nil {
		return nil, nil, configErrorf("category %s: %v", spec.Category, err)
	}
	if err := ctl.StartAt(startPage); err != nil {
		return nil, nil, configErrorf("category %s: %v", spec.Category, err)
	}

	if spec.Pagination.Kind == pagination.KindClick {
		return d.collectClicking(ctx, spec, eng, ctl)
	}

	var batches []pageBatch
	thumbs := make(map[string]string)
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		pageURL := ctl.CurrentURL()
		pageIdx := ctl.CurrentPage()
		page, fetchErr := d.fetchPaced(ctx, spec, eng, pageURL)

		res := pagination.Result{}
		if fetchErr != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			res.NotFound = engine.IsNotFound(fetchErr)
			res.Failed = !res.NotFound
			if res.Failed && pageIdx == startPage {
				// The very first archive page failing is a category
				// failure, not the end of pagination.
				return nil, nil, fmt.Errorf("fetch archive page %s: %w", pageURL, fetchErr)
			}
			d.logger.Info("archive pagination ended",
				zap.String("category", spec.Category),
				zap.Int("page", pageIdx),
				zap.Error(fetchErr),
			)
		} else {
			items, extractErr := extract.ArchiveItems(page.Body, pageURL, spec.ItemSelector, spec.ThumbnailSelector)
			if extractErr != nil {
				return nil, nil, fmt.Errorf("extract archive items: %w", extractErr)
			}
			for _, item := range items {
				res.ItemURLs = append(res.ItemURLs, item.URL)
				if item.Thumbnail != "" {
					thumbs[item.URL] = item.Thumbnail
				}
			}
			res.Bytes = page.Size()
			d.stats.addPage(len(items))
			d.emit(progress.Event{
				Stage:    progress.StagePageDone,
				Category: spec.Category,
				Page:     pageIdx,
				URL:      pageURL,
				Bytes:    int64(page.Size()),
				Dur:      page.Duration,
			})
		}

		step := ctl.Advance(res)
		if len(step.NewURLs) > 0 {
			batches = append(batches, pageBatch{page: pageIdx, urls: step.NewURLs})
		}
		if step.Next.Done {
			break
		}
	}
	return batches, thumbs, nil
}

// collectClicking drives load-more pagination: one document,
// progressively extended by clicks, observed after each interaction.
func (d *Driver) collectClicking(ctx context.Context, spec CrawlSpec, eng engine.Engine, ctl *pagination.Controller) ([]pageBatch, map[string]string, error) {
	thumbs := make(map[string]string)
	extractURLs := func(html []byte) []string {
		items, err := extract.ArchiveItems(html, spec.ArchiveURL, spec.ItemSelector, spec.ThumbnailSelector)
		if err != nil {
			return nil
		}
		urls := make([]string, 0, len(items))
		for _, item := range items {
			urls = append(urls, item.URL)
			if item.Thumbnail != "" {
				thumbs[item.URL] = item.Thumbnail
			}
		}
		return urls
	}

	req := d.buildRequest(spec)
	req.URL = spec.ArchiveURL
	if err := d.admitFetch(ctx, spec, req.URL); err != nil {
		return nil, nil, err
	}

	var page engine.Page
	var err error
	if clicker, ok := eng.(engine.Clicker); ok {
		page, err = clicker.FetchClicking(ctx, req, ctl.ButtonSelector(), ctl.ClickBudget(), ctl.ClickObserver(extractURLs))
	} else {
		d.logger.Warn("engine cannot click; fetching single page",
			zap.String("engine", eng.Name()), zap.String("category", spec.Category))
		page, err = eng.Fetch(ctx, req)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("fetch archive with load-more: %w", err)
	}
	d.pauser.Pause(ctx, spec.Delay)

	ctl.Advance(pagination.Result{ItemURLs: extractURLs(page.Body), Bytes: page.Size()})
	urls := ctl.Items()
	d.stats.addPage(len(urls))
	d.emit(progress.Event{
		Stage:    progress.StagePageDone,
		Category: spec.Category,
		Page:     1,
		URL:      spec.ArchiveURL,
		Bytes:    int64(page.Size()),
		Dur:      page.Duration,
	})
	if len(urls) == 0 {
		return nil, thumbs, nil
	}
	return []pageBatch{{page: 1, urls: urls}}, thumbs, nil
}

// processBatch fetches and extracts every item collected from one
// archive page. Item failures are recorded and skipped; they never
// abort the category.
func (d *Driver) processBatch(ctx context.Context, spec CrawlSpec, eng engine.Engine, batch pageBatch, thumbs map[string]string) {
	for _, itemURL := range batch.urls {
		if ctx.Err() != nil {
			return
		}
		id := extract.ArticleID(itemURL)
		if d.ledger.Done(id) || d.store.Exists(id) {
			d.stats.addSkipped()
			d.emit(progress.Event{Stage: progress.StageItemSkipped, Category: spec.Category, URL: itemURL, Note: "already saved"})
			continue
		}
		d.stats.addAttempt()
		if err := d.processItem(ctx, spec, eng, itemURL, id, thumbs[itemURL]); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.stats.addError()
			d.stats.addSkipped()
			d.emit(progress.Event{Stage: progress.StageItemSkipped, Category: spec.Category, URL: itemURL, Note: err.Error()})
			d.logger.Warn("article skipped",
				zap.String("category", spec.Category),
				zap.String("url", itemURL),
				zap.Error(err),
			)
			continue
		}
		d.stats.addSaved()
		d.ledger.MarkDone(id)
		d.emit(progress.Event{Stage: progress.StageItemSaved, Category: spec.Category, URL: itemURL})
	}
}

func (d *Driver) processItem(ctx context.Context, spec CrawlSpec, eng engine.Engine, itemURL, id, thumbnail string) error {
	page, err := d.fetchPaced(ctx, spec, eng, itemURL)
	if err != nil {
		return err
	}
	article, err := extract.ArticleContent(page.Body, itemURL, spec.ContentSelector, d.now())
	if err != nil {
		return err
	}
	if article.Thumbnail == "" {
		article.Thumbnail = thumbnail
	}
	if err := d.store.Append(article); err != nil {
		return fmt.Errorf("persist article %s: %w", id, err)
	}
	return nil
}

// fetchPaced performs one engine fetch under the robots policy, the
// per-host pacing floor, and the configured delay policy.
func (d *Driver) fetchPaced(ctx context.Context, spec CrawlSpec, eng engine.Engine, rawURL string) (engine.Page, error) {
	if err := d.admitFetch(ctx, spec, rawURL); err != nil {
		return engine.Page{}, err
	}
	req := d.buildRequest(spec)
	req.URL = rawURL
	page, err := eng.Fetch(ctx, req)
	if err != nil && req.Proxy != "" {
		var fe *engine.FetchError
		if errors.As(err, &fe) && (fe.Kind == engine.KindNetwork || fe.Kind == engine.KindTimeout) {
			d.proxies.MarkFailed(req.Proxy)
		}
	}
	d.pauser.Pause(ctx, spec.Delay)
	return page, err
}

func (d *Driver) admitFetch(ctx context.Context, spec CrawlSpec, rawURL string) error {
	if !d.robots.Allowed(ctx, rawURL) {
		return fmt.Errorf("robots.txt disallows %s", rawURL)
	}
	return d.waitHostBudget(ctx, rawURL)
}

func (d *Driver) buildRequest(spec CrawlSpec) engine.Request {
	req := engine.Request{
		Timeout: spec.Timeout,
		Headers: d.headers.Next(),
	}
	if spec.UseProxy {
		req.Proxy = d.proxies.Next()
	}
	return req
}

func (d *Driver) waitHostBudget(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse fetch url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := d.hostLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(d.hostQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	return limiter.Wait(ctx)
}

func (d *Driver) emit(evt progress.Event) {
	if d.hub == nil {
		return
	}
	evt.RunID = d.runID
	evt.TS = d.now().UTC()
	d.hub.Emit(evt)
}

func (d *Driver) logFinalStats() {
	snap := d.stats.Snapshot()
	d.logger.Info("crawl finished",
		zap.Int("archive_pages", snap.ArchivePages),
		zap.Int("items_found", snap.ItemsFound),
		zap.Int("articles_attempted", snap.ArticlesAttempted),
		zap.Int("articles_saved", snap.ArticlesSaved),
		zap.Int("articles_skipped", snap.ArticlesSkipped),
		zap.Int("errors", snap.Errors),
		zap.Int("failed_categories", len(snap.FailedCategories)),
	)
}
