package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayPolicies(t *testing.T) {
	require.True(t, DelayPolicy{}.Zero())
	require.True(t, FixedDelay(0).Zero())
	require.False(t, FixedDelay(time.Second).Zero())

	rng := RangeDelay(3*time.Second, time.Second)
	require.Equal(t, time.Second, rng.Min, "inverted bounds are swapped")
	require.Equal(t, 3*time.Second, rng.Max)
}

func TestPauserDrawStaysInRange(t *testing.T) {
	p := newPauser(7)
	policy := RangeDelay(10*time.Millisecond, 50*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := p.draw(policy)
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.Less(t, d, 50*time.Millisecond)
	}
	require.Equal(t, 25*time.Millisecond, p.draw(FixedDelay(25*time.Millisecond)))
	require.Zero(t, p.draw(DelayPolicy{}))
}

func TestPauserHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newPauser(1)
	start := time.Now()
	p.Pause(ctx, FixedDelay(5*time.Second))
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}
