package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/extract"
)

func testArticle(id string) extract.Article {
	return extract.Article{
		ID:          id,
		Title:       "Title " + id,
		URL:         "https://example.org/news/" + id,
		RawHTML:     "<article><p>body</p></article>",
		ScrapedDate: "2026-03-14",
		SourceURL:   "https://example.org",
	}
}

func TestNDJSONStoreAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")

	store, err := Open(path, FormatNDJSON)
	require.NoError(t, err)
	require.False(t, store.Exists("a"))
	require.NoError(t, store.Append(testArticle("a")))
	require.NoError(t, store.Append(testArticle("b")))
	require.True(t, store.Exists("a"))
	require.NoError(t, store.Close())

	reopened, err := Open(path, FormatNDJSON)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()
	require.True(t, reopened.Exists("a"))
	require.True(t, reopened.Exists("b"))
	require.Len(t, reopened.ExistingIDs(), 2)

	require.NoError(t, reopened.Append(testArticle("c")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	ids, err := ScanIDs(path)
	require.NoError(t, err)
	require.Len(t, ids, 3, "reopening must append, not truncate")
	require.Contains(t, string(data), `"id":"c"`)
}

func TestJSONArrayStoreAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")

	store, err := Open(path, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, store.Append(testArticle("a")))
	require.NoError(t, store.Append(testArticle("b")))
	require.NoError(t, store.Close())

	var articles []extract.Article
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &articles))
	require.Len(t, articles, 2)
	require.Equal(t, "a", articles[0].ID)

	reopened, err := Open(path, FormatJSON)
	require.NoError(t, err)
	defer func() { require.NoError(t, reopened.Close()) }()
	require.True(t, reopened.Exists("b"))
	require.Len(t, reopened.ExistingIDs(), 2)
}

func TestOpenRejectsUnknownFormat(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "out.xml"), "xml")
	require.Error(t, err)
}

func TestScanIDsMissingFile(t *testing.T) {
	ids, err := ScanIDs(filepath.Join(t.TempDir(), "nothing.ndjson"))
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestScanIDsIsFormatAgnostic(t *testing.T) {
	dir := t.TempDir()

	ndjson := filepath.Join(dir, "a.ndjson")
	content := `{"id":"one","title":"t"}
{"id":"two","title":"t"}
{"broken json
{"id":"three","title":"t"}
`
	require.NoError(t, os.WriteFile(ndjson, []byte(content), 0o640))
	ids, err := ScanIDs(ndjson)
	require.NoError(t, err)
	require.Len(t, ids, 3, "malformed lines are skipped, not fatal")
	require.Contains(t, ids, "three")

	array := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(array, []byte(`[{"id":"one"},{"id":"two"}]`), 0o640))
	ids, err = ScanIDs(array)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}
