package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const archivePage = `<!DOCTYPE html>
<html><body>
<div class="post">
  <a href="/news/first"><h2>First Headline</h2></a>
  <img class="thumb" data-src="/img/first.jpg">
</div>
<div class="post">
  <a href="https://other.example.net/news/second">second</a>
</div>
<div class="post">
  <a href="/news/first">duplicate link</a>
</div>
<div class="post">
  <span>no link at all</span>
</div>
</body></html>`

func TestArchiveItems(t *testing.T) {
	items, err := ArchiveItems([]byte(archivePage), "https://example.org/archive", ".post", "img.thumb")
	require.NoError(t, err)
	require.Len(t, items, 2, "duplicates and linkless blocks are dropped")

	require.Equal(t, "https://example.org/news/first", items[0].URL)
	require.Equal(t, "First Headline", items[0].Title)
	require.Equal(t, "https://example.org/img/first.jpg", items[0].Thumbnail, "lazy-load attribute resolves")

	require.Equal(t, "https://other.example.net/news/second", items[1].URL, "absolute links pass through")
	require.Empty(t, items[1].Thumbnail)
}

func TestArchiveItemsAnchorSelector(t *testing.T) {
	page := `<ul><li><a class="story" href="/a">A Story Title</a></li></ul>`
	items, err := ArchiveItems([]byte(page), "https://example.org", "a.story", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "https://example.org/a", items[0].URL)
	require.Equal(t, "A Story Title", items[0].Title)
}

func TestArticleIDIsStable(t *testing.T) {
	id := ArticleID("https://example.org/news/first")
	require.Equal(t, ArticleID("https://example.org/news/first"), id)
	require.Len(t, id, 32)
	require.NotEqual(t, ArticleID("https://example.org/news/second"), id)
}

const articlePage = `<!DOCTYPE html>
<html><head>
<title>Article Title From Head</title>
<meta property="og:title" content="OG Title">
</head><body>
<article class="content"><p>Body   text
here.</p></article>
</body></html>`

func TestArticleContent(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	article, err := ArticleContent([]byte(articlePage), "https://example.org/news/first", "article.content", now)
	require.NoError(t, err)

	require.Equal(t, ArticleID("https://example.org/news/first"), article.ID)
	require.Equal(t, "Article Title From Head", article.Title)
	require.Equal(t, "https://example.org/news/first", article.URL)
	require.Contains(t, article.RawHTML, "<article class=\"content\">")
	require.Contains(t, article.RawHTML, "Body")
	require.Equal(t, "2026-03-14", article.ScrapedDate)
	require.Equal(t, "https://example.org", article.SourceURL)
}

func TestArticleContentTitleFallback(t *testing.T) {
	page := `<html><head><title>abc</title></head><body>
<h1>Heading Title Wins</h1>
<div class="content"><p>text</p></div>
</body></html>`
	article, err := ArticleContent([]byte(page), "https://example.org/x", ".content", time.Now())
	require.NoError(t, err)
	require.Equal(t, "Heading Title Wins", article.Title, "short head titles are skipped")
}

func TestArticleContentSelectorMiss(t *testing.T) {
	_, err := ArticleContent([]byte(articlePage), "https://example.org/x", ".nope", time.Now())
	require.ErrorIs(t, err, ErrSelectorNotFound)
}

func TestArticleContentEmptyElement(t *testing.T) {
	page := `<html><body><div class="content">   </div></body></html>`
	_, err := ArticleContent([]byte(page), "https://example.org/x", ".content", time.Now())
	require.ErrorIs(t, err, ErrEmptyContent)
}
