package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aungkkmo/burmese-corpus-scraper/internal/api"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/config"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/crawler"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/engine"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/identity"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/logging"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/progress"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/progress/sinks"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/resume"
	"github.com/aungkkmo/burmese-corpus-scraper/internal/storage"
)

type scrapeFlags struct {
	site         string
	categories   []string
	output       string
	format       string
	forceEngine  string
	delay        time.Duration
	timeout      time.Duration
	ignoreRobots bool
	resumeRun    bool
	resumeCursor string
	maxPages     int
	useProxy     bool
	skipArchive  bool
	devLogging   bool
	statusAddr   string
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "A resumable news-archive scraper for Burmese-language corpora.",
		Long: `scraper walks the archive listings of configured news sites,
follows their pagination, and extracts each article into a local
corpus file. Interrupted runs pick up where they left off.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./scraper.yaml)")
	cmd.AddCommand(newScrapeCmd())

	return cmd
}

func newScrapeCmd() *cobra.Command {
	flags := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape a configured site's archive categories",
		Long: `Crawls every requested category of a site: selects a fetch
engine by probing the archive page, walks the pagination, extracts
articles, and appends them to the output file. An interrupted run can
be resumed against the same output.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.site, "site", "", "site name from the configuration (required)")
	cmd.Flags().StringSliceVar(&flags.categories, "category", nil, "categories to crawl (default: all configured)")
	cmd.Flags().StringVar(&flags.output, "output", "", "output artifact path (default: <output_dir>/<site>.<ext>)")
	cmd.Flags().StringVar(&flags.format, "format", "", "output format: ndjson or json")
	cmd.Flags().StringVar(&flags.forceEngine, "force-engine", "", "bypass probing: plain, rendered, or browser")
	cmd.Flags().DurationVar(&flags.delay, "delay", 0, "fixed delay between fetches (overrides configured range)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-fetch timeout override")
	cmd.Flags().BoolVar(&flags.ignoreRobots, "ignore-robots", false, "skip robots.txt checks")
	cmd.Flags().BoolVar(&flags.resumeRun, "resume", false, "seed known article IDs from the existing output")
	cmd.Flags().StringVar(&flags.resumeCursor, "resume-cursor", "", "resume position as category,page")
	cmd.Flags().IntVar(&flags.maxPages, "max-pages", 0, "archive page ceiling per category (0 = unlimited)")
	cmd.Flags().BoolVar(&flags.useProxy, "use-proxy", false, "route fetches through the configured proxy pool")
	cmd.Flags().BoolVar(&flags.skipArchive, "skip-archive", false, "reuse previously collected item URLs instead of walking the archive")
	cmd.Flags().BoolVar(&flags.devLogging, "dev-logging", false, "human-readable development logging")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "serve /healthz, /stats, and /metrics on this address")

	if err := cmd.MarkFlagRequired("site"); err != nil {
		panic(err)
	}

	return cmd
}

func runScrape(cmd *cobra.Command, flags *scrapeFlags) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, flags)

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	specs, err := cfg.ResolveSpecs(flags.site, flags.categories)
	if err != nil {
		return err
	}
	for i := range specs {
		if flags.forceEngine != "" {
			specs[i].ForcedEngine = flags.forceEngine
		}
		if flags.maxPages > 0 {
			specs[i].PageLimit = flags.maxPages
		}
		if flags.useProxy {
			specs[i].UseProxy = true
		}
		if flags.delay > 0 {
			specs[i].Delay = crawler.FixedDelay(flags.delay)
		}
		if flags.timeout > 0 {
			specs[i].Timeout = flags.timeout
		}
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = defaultOutputPath(cfg, flags.site)
	}
	store, err := storage.Open(outputPath, cfg.Scraper.Format)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close output", zap.Error(cerr))
		}
	}()

	ledger := resume.NewLedger()
	if flags.resumeRun {
		ids, err := storage.ScanIDs(outputPath)
		if err != nil {
			return fmt.Errorf("scan existing output: %w", err)
		}
		ledger.SeedIDs(ids)
		logger.Info("resuming against existing output",
			zap.String("path", outputPath), zap.Int("known_ids", len(ids)))
	}

	var cursor *resume.Cursor
	if flags.resumeCursor != "" {
		parsed, err := resume.ParseCursor(flags.resumeCursor)
		if err != nil {
			return err
		}
		cursor = &parsed
	}

	engines, selector := buildEngines(cfg, logger)
	defer closeEngines(engines, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fmt.Errorf("init prometheus sink: %w", err)
	}
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("events")),
		promSink,
	)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := hub.Close(closeCtx); cerr != nil {
			logger.Warn("close progress hub", zap.Error(cerr))
		}
	}()

	stats := crawler.NewStats()
	driver, err := crawler.NewDriver(crawler.Options{
		Specs:       specs,
		Selector:    selector,
		Headers:     identity.NewHeaderPool(0),
		Proxies:     identity.NewProxyPool(cfg.Identity.Proxies),
		Robots:      crawler.NewRobotsPolicy(!cfg.Scraper.IgnoreRobots, cfg.Scraper.UserAgent, logger.Named("robots")),
		Store:       store,
		Ledger:      ledger,
		Cursor:      cursor,
		Hub:         hub,
		Logger:      logger.Named("crawler"),
		Stats:       stats,
		HostQPS:     cfg.Scraper.HostQPS,
		SkipArchive: flags.skipArchive,
		URLsDir:     cfg.Scraper.OutputDir,
	})
	if err != nil {
		return err
	}

	if cfg.Status.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Status.Addr,
			Handler:           api.NewServer(stats, registry, logger.Named("api")).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status server started", zap.String("addr", cfg.Status.Addr))
			if serr := srv.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
				logger.Error("status server error", zap.Error(serr))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("status server shutdown", zap.Error(serr))
			}
		}()
	}

	if err := driver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run scrape: %w", err)
	}
	return nil
}

func applyOverrides(cfg *config.Config, flags *scrapeFlags) {
	if flags.format != "" {
		cfg.Scraper.Format = strings.ToLower(flags.format)
	}
	if flags.ignoreRobots {
		cfg.Scraper.IgnoreRobots = true
	}
	if flags.devLogging {
		cfg.Logging.Development = true
	}
	if flags.statusAddr != "" {
		cfg.Status.Addr = flags.statusAddr
	}
}

func defaultOutputPath(cfg config.Config, site string) string {
	ext := "ndjson"
	if cfg.Scraper.Format == storage.FormatJSON {
		ext = "json"
	}
	return filepath.Join(cfg.Scraper.OutputDir, fmt.Sprintf("%s.%s", crawler.Slug(site), ext))
}

func buildEngines(cfg config.Config, logger *zap.Logger) ([]engine.Engine, *engine.Selector) {
	plain := engine.NewPlain(engine.PlainConfig{
		UserAgent:       cfg.Scraper.UserAgent,
		Timeout:         cfg.Timeout(),
		MinContentBytes: cfg.Scraper.MinContentBytes,
		IgnoreRobots:    cfg.Scraper.IgnoreRobots,
	}, logger.Named("plain"))
	engines := []engine.Engine{plain}

	// A host without a Chrome binary still gets a working plain engine;
	// the rendered engine just drops out of the candidate list.
	rendered, err := engine.NewRendered(engine.RenderedConfig{
		UserAgent:       cfg.Scraper.UserAgent,
		Timeout:         cfg.Timeout(),
		MinContentBytes: cfg.Scraper.MinContentBytes,
	}, logger.Named("rendered"))
	if err != nil {
		logger.Warn("rendered engine unavailable", zap.Error(err))
	} else {
		engines = append(engines, rendered)
	}

	engines = append(engines, engine.NewBrowser(engine.BrowserConfig{
		UserAgent:       cfg.Scraper.UserAgent,
		Timeout:         cfg.Timeout(),
		MinContentBytes: cfg.Scraper.MinContentBytes,
	}, logger.Named("browser")))

	selector := engine.NewSelector(engines, cfg.Scraper.MinMatches, logger.Named("selector"))
	return engines, selector
}

func closeEngines(engines []engine.Engine, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, eng := range engines {
		if err := eng.Close(ctx); err != nil {
			logger.Warn("close engine", zap.String("engine", eng.Name()), zap.Error(err))
		}
	}
}
