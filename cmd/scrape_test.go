package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/config"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/engine"
)

// Engine construction must leave the plain engine usable on hosts
// without a Chrome binary; an unavailable renderer is skipped, not
// fatal.
func TestBuildEnginesKeepsPlainUsable(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	engines, selector := buildEngines(cfg, zap.NewNop())
	defer closeEngines(engines, zap.NewNop())

	require.NotNil(t, selector)
	require.NotEmpty(t, engines)
	require.Equal(t, engine.NamePlain, engines[0].Name())
	require.Equal(t, engine.NameBrowser, engines[len(engines)-1].Name())
}
