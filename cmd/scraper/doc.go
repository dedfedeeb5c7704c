// Package main hosts the scraper CLI entrypoint.
//
// Architecture overview:
//   - Engine selection: internal/engine probes each candidate transport
//     (plain Colly HTTP, a shared headless Chrome, a per-fetch Chrome
//     process) against the archive page and picks the cheapest one whose
//     rendered document matches the configured item selector.
//   - Pagination: internal/pagination owns the per-category state
//     machine. Query-parameter archives derive page URLs from a template;
//     "load more" archives drive the engine's click loop; both feed a
//     crawl-wide de-duplicating URL set.
//   - Crawl driver: internal/crawler walks categories in order, fetches
//     every archive page, then fetches and extracts each article. Item
//     and category failures are isolated; counters accumulate in Stats.
//   - Resume: internal/resume re-scans the output artifact for known
//     article IDs and, for query-parameter archives, accepts a
//     category,page cursor so a run can restart mid-archive. Pages commit
//     only after every one of their items has been attempted.
//   - Persistence: internal/storage appends articles as NDJSON lines or
//     rewrites a JSON array, behind one Store interface.
//   - Observability: zap structured logs throughout; progress events are
//     batched by internal/progress and fanned out to a log sink and a
//     Prometheus sink; /healthz, /stats, and /metrics are served while a
//     crawl runs when a status address is configured.
//
// Run locally: go run ./cmd/scraper scrape --site mysite --config scraper.yaml
package main
