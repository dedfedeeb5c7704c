// Package extract turns fetched HTML into structured data: archive
// item links from list pages and article records from detail pages.
package extract

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Extraction failures, recoverable at item granularity.
var (
	ErrSelectorNotFound = errors.New("content selector matched nothing")
	ErrEmptyContent     = errors.New("content element is empty")
)

// Article is one extracted record, shaped for the output artifact.
type Article struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Thumbnail   string `json:"thumbnail_url,omitempty"`
	RawHTML     string `json:"raw_html_content"`
	ScrapedDate string `json:"scraped_date"`
	SourceURL   string `json:"source_url"`
}

// ArchiveItem is one link block discovered on an archive page.
type ArchiveItem struct {
	URL       string
	Title     string
	Thumbnail string
}

// ArticleID derives the stable identifier for an item URL. Identity
// must agree across runs so resume and re-scrape skip the same items.
func ArticleID(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Lazy-loading image attributes, probed in order.
var thumbnailAttrs = []string{"src", "data-src", "data-lazy-src", "data-original", "data-lazy"}

// Title elements that beat bare link text on archive pages.
var archiveTitleSelectors = []string{"h1", "h2", "h3", ".title", ".headline", ".post-title", ".article-title"}

// ArchiveItems extracts the item links matching itemSelector from an
// archive page, resolving relative URLs against baseURL. Items without
// a usable link are skipped. Order follows the document; duplicates
// within the page collapse to the first occurrence.
func ArchiveItems(html []byte, baseURL, itemSelector, thumbnailSelector string) ([]ArchiveItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse archive page: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	var items []ArchiveItem
	seen := make(map[string]struct{})
	doc.Find(itemSelector).Each(func(_ int, sel *goquery.Selection) {
		item, ok := archiveItem(sel, base, thumbnailSelector)
		if !ok {
			return
		}
		if _, dup := seen[item.URL]; dup {
			return
		}
		seen[item.URL] = struct{}{}
		items = append(items, item)
	})
	return items, nil
}

func archiveItem(sel *goquery.Selection, base *url.URL, thumbnailSelector string) (ArchiveItem, bool) {
	link := sel
	if !sel.Is("a") {
		link = sel.Find("a[href]").First()
	}
	href, ok := link.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return ArchiveItem{}, false
	}
	resolved, err := resolveURL(base, href)
	if err != nil {
		return ArchiveItem{}, false
	}

	title := cleanText(link.Text())
	for _, ts := range archiveTitleSelectors {
		if candidate := cleanText(sel.Find(ts).First().Text()); len(candidate) > len(title) {
			title = candidate
			break
		}
	}

	item := ArchiveItem{URL: resolved, Title: title}
	if thumbnailSelector != "" {
		if thumb := sel.Find(thumbnailSelector).First(); thumb.Length() > 0 {
			for _, attr := range thumbnailAttrs {
				if v, has := thumb.Attr(attr); has && strings.TrimSpace(v) != "" {
					if u, err := resolveURL(base, strings.TrimSpace(v)); err == nil {
						item.Thumbnail = u
					}
					break
				}
			}
		}
	}
	return item, true
}

// ArticleContent extracts an article from a detail page. RawHTML is the
// unprocessed outer HTML of the first node matching contentSelector;
// cleaning is a downstream concern.
func ArticleContent(html []byte, pageURL, contentSelector string, now time.Time) (Article, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Article{}, fmt.Errorf("parse article page: %w", err)
	}
	content := doc.Find(contentSelector).First()
	if content.Length() == 0 {
		return Article{}, fmt.Errorf("%w: %q on %s", ErrSelectorNotFound, contentSelector, pageURL)
	}
	rawHTML, err := goquery.OuterHtml(content)
	if err != nil {
		return Article{}, fmt.Errorf("render content html: %w", err)
	}
	if strings.TrimSpace(content.Text()) == "" {
		return Article{}, fmt.Errorf("%w: %q on %s", ErrEmptyContent, contentSelector, pageURL)
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("parse article url: %w", err)
	}
	return Article{
		ID:          ArticleID(pageURL),
		Title:       extractTitle(doc, content),
		URL:         pageURL,
		RawHTML:     rawHTML,
		ScrapedDate: now.UTC().Format("2006-01-02"),
		SourceURL:   parsed.Scheme + "://" + parsed.Host,
	}, nil
}

// extractTitle walks the usual title sources in reliability order.
func extractTitle(doc *goquery.Document, content *goquery.Selection) string {
	candidates := []string{
		cleanText(doc.Find("title").First().Text()),
		metaContent(doc, `meta[property="og:title"]`),
		metaContent(doc, `meta[name="twitter:title"]`),
		cleanText(doc.Find("h1").First().Text()),
		cleanText(doc.Find("h2").First().Text()),
		cleanText(content.Find("h1").First().Text()),
	}
	for _, c := range candidates {
		if len(c) > 5 {
			return c
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return cleanText(v)
}

func resolveURL(base *url.URL, ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(parsed).String(), nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
