package crawler

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	require.Equal(t, "daily_news", Slug(" Daily News "))
	require.Equal(t, "sports_2026", Slug("Sports/2026"))
	require.Equal(t, "abc", Slug("--abc--"))
}

func TestURLArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	spec := newsSpec("politics", "https://example.org/news")
	urls := []string{"https://example.org/news/a1", "https://example.org/news/a2"}

	require.NoError(t, saveURLArtifact(dir, spec, urls))
	require.FileExists(t, filepath.Join(dir, "dailynews_politics_urls.json"))

	loaded, err := loadURLArtifact(dir, spec)
	require.NoError(t, err)
	require.Equal(t, urls, loaded)
}

func TestLoadURLArtifactMissingIsConfigError(t *testing.T) {
	_, err := loadURLArtifact(t.TempDir(), newsSpec("politics", "https://example.org/news"))
	require.True(t, IsConfigError(err))
}

func TestSaveURLArtifactNoopWithoutDirOrURLs(t *testing.T) {
	require.NoError(t, saveURLArtifact("", newsSpec("politics", "x"), []string{"u"}))
	require.NoError(t, saveURLArtifact(t.TempDir(), newsSpec("politics", "x"), nil))
}
