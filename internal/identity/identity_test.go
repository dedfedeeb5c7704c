package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserAgentsWellFormed(t *testing.T) {
	for _, ua := range userAgents {
		require.True(t, strings.HasPrefix(ua, "Mozilla/5.0 ("), ua)
		require.Equal(t, strings.Count(ua, "("), strings.Count(ua, ")"),
			"unbalanced parentheses in %q", ua)
		if strings.Contains(ua, "AppleWebKit") {
			require.Contains(t, ua, "(KHTML, like Gecko)", ua)
		}
	}
}

func TestHeaderPoolRotatesUserAgents(t *testing.T) {
	pool := NewHeaderPool(0)

	first := pool.Next()
	second := pool.Next()
	require.NotEmpty(t, first.Get("User-Agent"))
	require.NotEqual(t, first.Get("User-Agent"), second.Get("User-Agent"),
		"consecutive requests should not repeat a user agent")

	require.NotEmpty(t, first.Get("Accept"))
	require.NotEmpty(t, first.Get("Accept-Language"))
	require.Equal(t, "1", first.Get("Upgrade-Insecure-Requests"))
}

func TestHeaderPoolDeterministicWithSeed(t *testing.T) {
	a := NewHeaderPool(42)
	b := NewHeaderPool(42)
	for i := 0; i < 10; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestProxyPoolRoundRobin(t *testing.T) {
	pool := NewProxyPool([]string{"http://p1:8080", " ", "http://p2:8080"})
	require.Equal(t, 2, pool.Len())

	require.Equal(t, "http://p1:8080", pool.Next())
	require.Equal(t, "http://p2:8080", pool.Next())
	require.Equal(t, "http://p1:8080", pool.Next())
}

func TestProxyPoolEmpty(t *testing.T) {
	pool := NewProxyPool(nil)
	require.Zero(t, pool.Len())
	require.Empty(t, pool.Next())
}

func TestProxyPoolSkipsFailedUntilAllFail(t *testing.T) {
	pool := NewProxyPool([]string{"http://p1:8080", "http://p2:8080"})

	pool.MarkFailed("http://p1:8080")
	require.Equal(t, "http://p2:8080", pool.Next())
	require.Equal(t, "http://p2:8080", pool.Next(), "failed proxy stays skipped")

	pool.MarkFailed("http://p2:8080")
	require.NotEmpty(t, pool.Next(), "a fully failed pool readmits instead of starving")
}
