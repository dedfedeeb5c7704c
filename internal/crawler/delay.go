package crawler

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// DelayPolicy is evaluated between every two network fetches. A fixed
// value sleeps exactly that long, a range draws uniformly from it, and
// a zero policy sleeps not at all.
type DelayPolicy struct {
	Min time.Duration
	Max time.Duration
}

// FixedDelay builds a policy that always waits d.
func FixedDelay(d time.Duration) DelayPolicy {
	return DelayPolicy{Min: d, Max: d}
}

// RangeDelay builds a policy drawing uniformly from [min, max].
func RangeDelay(min, max time.Duration) DelayPolicy {
	if max < min {
		min, max = max, min
	}
	return DelayPolicy{Min: min, Max: max}
}

// Zero reports whether the policy never sleeps.
func (p DelayPolicy) Zero() bool { return p.Max <= 0 }

// pauser sleeps for policy-drawn durations without outliving the
// context, so interruption never hangs on a pending delay.
type pauser struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newPauser(seed int64) *pauser {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &pauser{rnd: rand.New(rand.NewSource(seed))}
}

func (p *pauser) draw(policy DelayPolicy) time.Duration {
	if policy.Zero() {
		return 0
	}
	if policy.Max <= policy.Min {
		return policy.Min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return policy.Min + time.Duration(p.rnd.Int63n(int64(policy.Max-policy.Min)))
}

// Pause blocks for one draw of the policy or until ctx is done.
func (p *pauser) Pause(ctx context.Context, policy DelayPolicy) {
	delay := p.draw(policy)
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
