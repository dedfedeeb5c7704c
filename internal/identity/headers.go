// Package identity supplies per-request network identities: rotating
// header sets and a proxy pool with failure deprioritization. Pools are
// explicit objects owned by the crawl driver and handed down per
// request; nothing here is process-global.
package identity

import (
	"math/rand"
	"net/http"
	"sync"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
}

var acceptLanguages = []string{
	"en-US,en;q=0.9",
	"en-US,en;q=0.9,my;q=0.8",
	"en-GB,en;q=0.9,en-US;q=0.8",
	"my-MM,my;q=0.9,en;q=0.8",
}

// HeaderPool generates realistic browser header sets, rotating the
// user agent round-robin so consecutive requests do not repeat one.
type HeaderPool struct {
	mu   sync.Mutex
	next int
	rnd  *rand.Rand
}

// NewHeaderPool seeds a pool. A zero seed falls back to a fixed seed,
// which keeps tests deterministic.
func NewHeaderPool(seed int64) *HeaderPool {
	if seed == 0 {
		seed = 1
	}
	return &HeaderPool{rnd: rand.New(rand.NewSource(seed))}
}

// Next returns a fresh header set for one request.
func (p *HeaderPool) Next() http.Header {
	p.mu.Lock()
	ua := userAgents[p.next%len(userAgents)]
	p.next++
	lang := acceptLanguages[p.rnd.Intn(len(acceptLanguages))]
	p.mu.Unlock()

	h := http.Header{}
	h.Set("User-Agent", ua)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", lang)
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	return h
}
