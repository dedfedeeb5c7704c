package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// PlainConfig controls the Colly-backed engine.
type PlainConfig struct {
	UserAgent       string
	Timeout         time.Duration
	MinContentBytes int
	IgnoreRobots    bool
}

// Plain issues direct HTTP requests through a Colly collector. It is
// the fastest engine and the first one probed, but it cannot execute
// page scripts.
type Plain struct {
	cfg           PlainConfig
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewPlain constructs the plain HTTP engine.
func NewPlain(cfg PlainConfig, logger *zap.Logger) *Plain {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	base := colly.NewCollector(colly.Async(false))
	base.AllowURLRevisit = true
	base.IgnoreRobotsTxt = cfg.IgnoreRobots
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)
	return &Plain{cfg: cfg, baseCollector: base, logger: logger}
}

// Name implements Engine.
func (p *Plain) Name() string { return NamePlain }

// Close implements Engine; the collector holds no external resources.
func (p *Plain) Close(context.Context) error { return nil }

// Fetch retrieves the URL with a clone of the base collector so
// per-request proxy and header settings never leak between fetches.
func (p *Plain) Fetch(ctx context.Context, req Request) (Page, error) {
	collector := p.baseCollector.Clone()
	if req.Timeout > 0 {
		collector.SetRequestTimeout(req.Timeout)
	}
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	if req.Proxy != "" {
		if err := collector.SetProxy(req.Proxy); err != nil {
			return Page{}, &FetchError{Kind: KindNetwork, URL: req.URL, Err: err}
		}
	}

	start := time.Now()
	resultCh := make(chan plainResult, 1)
	var once sync.Once
	send := func(res plainResult) {
		once.Do(func() { resultCh <- res })
	}

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range req.Headers {
			for _, v := range values {
				r.Headers.Set(key, v)
			}
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		send(plainResult{page: Page{
			URL:        req.URL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= 400 {
			send(plainResult{err: &FetchError{Kind: KindStatus, URL: req.URL, StatusCode: r.StatusCode, Err: err}})
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		send(plainResult{err: classifyErr(req.URL, err)})
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(req.URL)
	}()
	select {
	case <-ctx.Done():
		return Page{}, classifyErr(req.URL, ctx.Err())
	case err := <-done:
		if err != nil {
			// OnError has usually classified the failure already, with
			// the status code colly's Visit error drops.
			select {
			case res := <-resultCh:
				if res.err != nil {
					return Page{}, res.err
				}
			default:
			}
			return Page{}, classifyErr(req.URL, err)
		}
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return Page{}, res.err
		}
		return p.checkContent(res.page)
	default:
		return Page{}, &FetchError{Kind: KindNetwork, URL: req.URL, Err: errors.New("colly produced no response")}
	}
}

func (p *Plain) checkContent(page Page) (Page, error) {
	if page.StatusCode >= 400 {
		return Page{}, &FetchError{Kind: KindStatus, URL: page.URL, StatusCode: page.StatusCode}
	}
	if p.cfg.MinContentBytes > 0 && page.Size() < p.cfg.MinContentBytes {
		p.logger.Debug("page below content threshold",
			zap.String("url", page.URL),
			zap.Int("bytes", page.Size()),
			zap.Int("threshold", p.cfg.MinContentBytes),
		)
		return Page{}, &FetchError{Kind: KindBlocked, URL: page.URL, StatusCode: page.StatusCode}
	}
	return page, nil
}

type plainResult struct {
	page Page
	err  error
}
