package identity

import (
	"strings"
	"sync"
)

// ProxyPool hands out proxies round-robin. Proxies reported failed are
// deprioritized: they are skipped until every proxy in the pool has
// failed, at which point the failure set is cleared and rotation starts
// over rather than starving the caller.
type ProxyPool struct {
	mu      sync.Mutex
	proxies []string
	failed  map[string]struct{}
	next    int
}

// NewProxyPool builds a pool from proxy URLs (scheme://host:port or
// host:port). Empty entries are dropped; an empty pool is valid and
// always yields "".
func NewProxyPool(proxies []string) *ProxyPool {
	clean := make([]string, 0, len(proxies))
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p != "" {
			clean = append(clean, p)
		}
	}
	return &ProxyPool{
		proxies: clean,
		failed:  make(map[string]struct{}),
	}
}

// Len returns the pool size.
func (p *ProxyPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// Next returns the next usable proxy, or "" when the pool is empty.
func (p *ProxyPool) Next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return ""
	}
	for i := 0; i < len(p.proxies); i++ {
		candidate := p.proxies[p.next%len(p.proxies)]
		p.next++
		if _, bad := p.failed[candidate]; !bad {
			return candidate
		}
	}
	// Every proxy has failed; readmit them all.
	p.failed = make(map[string]struct{})
	candidate := p.proxies[p.next%len(p.proxies)]
	p.next++
	return candidate
}

// MarkFailed deprioritizes a proxy after a failed request.
func (p *ProxyPool) MarkFailed(proxy string) {
	if proxy == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[proxy] = struct{}{}
}
