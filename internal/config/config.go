// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/crawler"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/pagination"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/storage"
)

// Config captures all scraper configuration knobs loaded via Viper.
type Config struct {
	Scraper  ScraperConfig         `mapstructure:"scraper"`
	Identity IdentityConfig        `mapstructure:"identity"`
	Status   StatusConfig          `mapstructure:"status"`
	Logging  LoggingConfig         `mapstructure:"logging"`
	Sites    map[string]SiteConfig `mapstructure:"sites"`
}

// ScraperConfig governs crawl behavior across every site.
type ScraperConfig struct {
	OutputDir       string  `mapstructure:"output_dir"`
	Format          string  `mapstructure:"format"`
	UserAgent       string  `mapstructure:"user_agent"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	DelayMinMs      int     `mapstructure:"delay_min_ms"`
	DelayMaxMs      int     `mapstructure:"delay_max_ms"`
	PageLimit       int     `mapstructure:"page_limit"`
	MinContentBytes int     `mapstructure:"min_content_bytes"`
	MinMatches      int     `mapstructure:"min_matches"`
	HostQPS         float64 `mapstructure:"host_qps"`
	IgnoreRobots    bool    `mapstructure:"ignore_robots"`
}

// IdentityConfig lists proxies used when a site sets use_proxy.
type IdentityConfig struct {
	Proxies []string `mapstructure:"proxies"`
}

// StatusConfig controls the in-crawl status HTTP server.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SiteConfig describes one news site and its archive categories.
type SiteConfig struct {
	BaseURL           string                    `mapstructure:"base_url"`
	ItemSelector      string                    `mapstructure:"item_selector"`
	ContentSelector   string                    `mapstructure:"content_selector"`
	ThumbnailSelector string                    `mapstructure:"thumbnail_selector"`
	Pagination        PaginationConfig          `mapstructure:"pagination"`
	ForceEngine       string                    `mapstructure:"force_engine"`
	UseProxy          bool                      `mapstructure:"use_proxy"`
	Categories        map[string]CategoryConfig `mapstructure:"categories"`
}

// CategoryConfig describes one archive listing. Selector and pagination
// settings default to the site-level values.
type CategoryConfig struct {
	URL               string            `mapstructure:"url"`
	ItemSelector      string            `mapstructure:"item_selector"`
	ContentSelector   string            `mapstructure:"content_selector"`
	ThumbnailSelector string            `mapstructure:"thumbnail_selector"`
	Pagination        *PaginationConfig `mapstructure:"pagination"`
	PageLimit         int               `mapstructure:"page_limit"`
}

// PaginationConfig names a strategy and its parameter.
type PaginationConfig struct {
	Type  string `mapstructure:"type"`
	Param string `mapstructure:"param"`
}

// Load builds a Config from disk/environment. An empty path searches
// the working directory for scraper.yaml; a missing default file is
// not an error, defaults and environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("scraper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.output_dir", "data")
	v.SetDefault("scraper.format", storage.FormatNDJSON)
	v.SetDefault("scraper.user_agent", "burmese-corpus-bot/0.1")
	v.SetDefault("scraper.timeout_seconds", 30)
	v.SetDefault("scraper.delay_min_ms", 1000)
	v.SetDefault("scraper.delay_max_ms", 3000)
	v.SetDefault("scraper.page_limit", 0)
	v.SetDefault("scraper.min_content_bytes", 2048)
	v.SetDefault("scraper.min_matches", 1)
	v.SetDefault("scraper.host_qps", 1.0)
	v.SetDefault("scraper.ignore_robots", false)
	v.SetDefault("status.addr", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Scraper.OutputDir == "" {
		return fmt.Errorf("scraper.output_dir must be set")
	}
	if c.Scraper.Format != storage.FormatNDJSON && c.Scraper.Format != storage.FormatJSON {
		return fmt.Errorf("scraper.format must be %q or %q", storage.FormatNDJSON, storage.FormatJSON)
	}
	if c.Scraper.TimeoutSeconds <= 0 {
		return fmt.Errorf("scraper.timeout_seconds must be > 0")
	}
	if c.Scraper.DelayMaxMs < c.Scraper.DelayMinMs {
		return fmt.Errorf("scraper.delay_max_ms must be >= scraper.delay_min_ms")
	}
	if c.Scraper.HostQPS <= 0 {
		return fmt.Errorf("scraper.host_qps must be > 0")
	}
	for name, site := range c.Sites {
		if len(site.Categories) == 0 {
			return fmt.Errorf("site %s has no categories", name)
		}
	}
	return nil
}

// Timeout converts the per-fetch timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSeconds) * time.Second
}

// Delay converts the delay range config into a policy.
func (c Config) Delay() crawler.DelayPolicy {
	min := time.Duration(c.Scraper.DelayMinMs) * time.Millisecond
	max := time.Duration(c.Scraper.DelayMaxMs) * time.Millisecond
	if min == max {
		return crawler.FixedDelay(min)
	}
	return crawler.RangeDelay(min, max)
}

// ResolveSpecs flattens a site's categories into CrawlSpecs in stable
// name order, applying site-level defaults. An empty category filter
// selects every category; otherwise only the named ones, in the order
// given.
func (c Config) ResolveSpecs(siteName string, categories []string) ([]crawler.CrawlSpec, error) {
	site, ok := c.Sites[siteName]
	if !ok {
		return nil, fmt.Errorf("site %q is not configured", siteName)
	}

	names := categories
	if len(names) == 0 {
		names = sortedKeys(site.Categories)
	}

	specs := make([]crawler.CrawlSpec, 0, len(names))
	for _, name := range names {
		cat, ok := site.Categories[name]
		if !ok {
			return nil, fmt.Errorf("site %q has no category %q", siteName, name)
		}
		spec, err := c.buildSpec(siteName, site, name, cat)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (c Config) buildSpec(siteName string, site SiteConfig, catName string, cat CategoryConfig) (crawler.CrawlSpec, error) {
	pageCfg := site.Pagination
	if cat.Pagination != nil {
		pageCfg = *cat.Pagination
	}
	kind, err := pagination.ParseKind(pageCfg.Type)
	if err != nil {
		return crawler.CrawlSpec{}, fmt.Errorf("site %s category %s: %w", siteName, catName, err)
	}

	spec := crawler.CrawlSpec{
		Site:              siteName,
		Category:          catName,
		ArchiveURL:        cat.URL,
		ItemSelector:      firstNonEmpty(cat.ItemSelector, site.ItemSelector),
		ContentSelector:   firstNonEmpty(cat.ContentSelector, site.ContentSelector),
		ThumbnailSelector: firstNonEmpty(cat.ThumbnailSelector, site.ThumbnailSelector),
		Pagination:        pagination.Strategy{Kind: kind, Param: pageCfg.Param},
		Delay:             c.Delay(),
		PageLimit:         cat.PageLimit,
		ForcedEngine:      site.ForceEngine,
		UseProxy:          site.UseProxy,
		Timeout:           c.Timeout(),
		MinContentBytes:   c.Scraper.MinContentBytes,
	}
	if spec.PageLimit == 0 {
		spec.PageLimit = c.Scraper.PageLimit
	}
	if err := spec.Validate(); err != nil {
		return crawler.CrawlSpec{}, err
	}
	return spec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]CategoryConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
