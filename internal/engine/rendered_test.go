package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// A request carrying a proxy must produce an allocator configured with
// it; both chromedp engines build their allocators from these options.
func TestHeadlessOptionsAttachProxy(t *testing.T) {
	base := headlessOptions("test-agent", "")
	proxied := headlessOptions("test-agent", "http://127.0.0.1:8080")
	require.Len(t, proxied, len(base)+1)

	noAgent := headlessOptions("", "")
	require.Len(t, base, len(noAgent)+1)
}
