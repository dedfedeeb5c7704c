package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// RenderedConfig controls the scripted renderer.
type RenderedConfig struct {
	UserAgent       string
	Timeout         time.Duration
	MinContentBytes int
}

// Rendered drives tabs in one shared headless Chrome. It executes page
// scripts and supports the click interactions needed by "load more"
// pagination.
type Rendered struct {
	cfg             RenderedConfig
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
}

// NewRendered starts the shared browser. The warmup run fails early
// when no Chrome binary is available, so the caller can drop the
// engine from the candidate list instead of failing mid-crawl.
func NewRendered(cfg RenderedConfig, logger *zap.Logger) (*Rendered, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), headlessOptions(cfg.UserAgent, "")...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Rendered{
		cfg:             cfg,
		allocatorCancel: allocCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
	}, nil
}

// Name implements Engine.
func (r *Rendered) Name() string { return NameRendered }

// Close tears down the browser and allocator contexts.
func (r *Rendered) Close(context.Context) error {
	if r == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	return nil
}

// Fetch renders the page in a fresh tab and returns the DOM snapshot.
func (r *Rendered) Fetch(ctx context.Context, req Request) (Page, error) {
	return r.run(ctx, req, nil)
}

// FetchClicking implements Clicker. After the initial navigation it
// clicks buttonSelector up to maxClicks times, invoking observe with
// the document after each click. Clicking stops when the button
// disappears or observe returns false.
func (r *Rendered) FetchClicking(ctx context.Context, req Request, buttonSelector string, maxClicks int, observe func(html []byte) bool) (Page, error) {
	return r.run(ctx, req, &clickPlan{selector: buttonSelector, maxClicks: maxClicks, observe: observe})
}

type clickPlan struct {
	selector  string
	maxClicks int
	observe   func(html []byte) bool
}

// headlessOptions is the base allocator setup shared by both chromedp
// engines.
func headlessOptions(userAgent, proxy string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if proxy != "" {
		opts = append(opts, chromedp.ProxyServer(proxy))
	}
	return opts
}

func (r *Rendered) run(ctx context.Context, req Request, plan *clickPlan) (Page, error) {
	// The shared browser carries no proxy; a proxied request gets a
	// dedicated Chrome for the duration of the fetch.
	parent := r.browserCtx
	if req.Proxy != "" {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), headlessOptions(r.cfg.UserAgent, req.Proxy)...)
		defer allocCancel()
		parent = allocCtx
	}
	tabCtx, cancelTab := chromedp.NewContext(parent)
	defer cancelTab()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	meta := newResponseMeta()
	recordDocumentResponse(tabCtx, meta)

	start := time.Now()
	html, err := navigate(taskCtx, req, r.cfg.UserAgent)
	if err != nil {
		return Page{}, classifyErr(req.URL, err)
	}
	if plan != nil {
		html, err = clickThrough(taskCtx, r.logger, plan, html)
		if err != nil {
			return Page{}, classifyErr(req.URL, err)
		}
	}

	page := Page{
		URL:        req.URL,
		FinalURL:   meta.finalURL(req.URL),
		StatusCode: meta.status(),
		Headers:    meta.header(),
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}
	return checkRenderedContent(page, r.cfg.MinContentBytes)
}

func checkRenderedContent(page Page, minBytes int) (Page, error) {
	if page.StatusCode >= 400 {
		return Page{}, &FetchError{Kind: KindStatus, URL: page.URL, StatusCode: page.StatusCode}
	}
	if minBytes > 0 && page.Size() < minBytes {
		return Page{}, &FetchError{Kind: KindBlocked, URL: page.URL, StatusCode: page.StatusCode}
	}
	return page, nil
}

func navigate(ctx context.Context, req Request, userAgent string) (string, error) {
	var html string
	actions := []chromedp.Action{
		networkSetupAction(userAgent, req.Headers),
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if req.WaitSelector != "" {
		actions = append(actions, chromedp.WaitVisible(req.WaitSelector, chromedp.ByQuery))
	}
	actions = append(actions,
		chromedp.Sleep(500*time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

// clickThrough repeatedly clicks the load-more control. Visibility is
// checked in-page because chromedp.Click blocks forever on a node that
// never appears.
func clickThrough(ctx context.Context, logger *zap.Logger, plan *clickPlan, initial string) (string, error) {
	html := initial
	for i := 0; i < plan.maxClicks; i++ {
		var visible bool
		check := fmt.Sprintf(
			`(() => { const b = document.querySelector(%q); return b !== null && b.offsetParent !== null; })()`,
			plan.selector,
		)
		if err := chromedp.Run(ctx, chromedp.Evaluate(check, &visible)); err != nil {
			return "", fmt.Errorf("probe load-more button: %w", err)
		}
		if !visible {
			logger.Debug("load-more button gone", zap.Int("clicks", i))
			break
		}
		click := fmt.Sprintf(
			`(() => { const b = document.querySelector(%q); if (b) b.click(); })()`,
			plan.selector,
		)
		err := chromedp.Run(ctx,
			chromedp.Evaluate(click, nil),
			chromedp.Sleep(time.Second),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		)
		if err != nil {
			return "", fmt.Errorf("click load-more button: %w", err)
		}
		if plan.observe != nil && !plan.observe([]byte(html)) {
			break
		}
	}
	return html, nil
}

func networkSetupAction(userAgent string, headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			extra := make(network.Headers, len(headers))
			for key, values := range headers {
				if len(values) > 0 {
					extra[key] = values[0]
				}
			}
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	headers    http.Header
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) finalURL(fallback string) string {
	if m.url == "" {
		return fallback
	}
	return m.url
}

func (m *responseMeta) status() int {
	if m.statusCode == 0 {
		return http.StatusOK
	}
	return m.statusCode
}

func (m *responseMeta) header() http.Header { return m.headers }

func recordDocumentResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
			for k, v := range resp.Response.Headers {
				meta.headers.Add(k, fmt.Sprint(v))
			}
		})
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
