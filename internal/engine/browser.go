package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// BrowserConfig controls the browser-driver engine.
type BrowserConfig struct {
	UserAgent       string
	Timeout         time.Duration
	MinContentBytes int
}

// Browser is the last-resort engine. Unlike Rendered it launches a
// dedicated Chrome process per fetch with automation hints disabled,
// which gets past sites that fingerprint and block long-lived headless
// sessions. It is slow and is only selected when both cheaper engines
// fail the probe.
type Browser struct {
	cfg    BrowserConfig
	logger *zap.Logger
}

// NewBrowser constructs the browser-driver engine. No process is
// started until the first fetch.
func NewBrowser(cfg BrowserConfig, logger *zap.Logger) *Browser {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Browser{cfg: cfg, logger: logger}
}

// Name implements Engine.
func (b *Browser) Name() string { return NameBrowser }

// Close implements Engine; per-fetch processes are torn down eagerly.
func (b *Browser) Close(context.Context) error { return nil }

// Fetch launches a fresh browser, navigates, and returns the DOM.
func (b *Browser) Fetch(ctx context.Context, req Request) (Page, error) {
	return b.run(ctx, req, nil)
}

// FetchClicking implements Clicker with the same per-fetch process
// discipline.
func (b *Browser) FetchClicking(ctx context.Context, req Request, buttonSelector string, maxClicks int, observe func(html []byte) bool) (Page, error) {
	return b.run(ctx, req, &clickPlan{selector: buttonSelector, maxClicks: maxClicks, observe: observe})
}

func (b *Browser) run(ctx context.Context, req Request, plan *clickPlan) (Page, error) {
	opts := append(headlessOptions(b.cfg.UserAgent, req.Proxy),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer allocCancel()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.cfg.Timeout
	}
	taskCtx, cancelTask := context.WithTimeout(tabCtx, timeout)
	defer cancelTask()
	stop := forwardCancel(ctx, cancelTask)
	defer stop()

	meta := newResponseMeta()
	recordDocumentResponse(tabCtx, meta)

	start := time.Now()
	html, err := navigate(taskCtx, req, b.cfg.UserAgent)
	if err != nil {
		return Page{}, classifyErr(req.URL, fmt.Errorf("browser navigate: %w", err))
	}
	if plan != nil {
		html, err = clickThrough(taskCtx, b.logger, plan, html)
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
	return checkRenderedContent(page, b.cfg.MinContentBytes)
}
