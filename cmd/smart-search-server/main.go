// Package main provides the smart-search server binary.
// The server runs the search decision filter behind an HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lusochat/smart-search/internal/bus"
	"github.com/lusochat/smart-search/internal/config"
	"github.com/lusochat/smart-search/internal/filter"
	"github.com/lusochat/smart-search/internal/metrics"
	"github.com/lusochat/smart-search/internal/pkg/logger"
	"github.com/lusochat/smart-search/internal/pkg/security"
	"github.com/lusochat/smart-search/internal/prefetch"
	"github.com/lusochat/smart-search/internal/server"
	"github.com/lusochat/smart-search/internal/settings"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smart-search-server",
		Short: "Smart Search Server - web search decisions for chat requests",
		Long: `Smart Search Server decides, per chat turn, whether the assistant should
search the web and how many results to fetch.

The server exposes:
  - POST /v1/filter/inlet for the chat host
  - POST /v1/decide for ad hoc evaluation
  - /v1/settings for live tuning of the rules
  - /metrics for Prometheus

Examples:
  smart-search-server                          # Start with defaults
  smart-search-server -c smart-search.yaml     # Load a config file
  smart-search-server --port 9000 -v           # Custom port, debug logs`,
		RunE:         runServer,
		SilenceUsage: true,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().String("host", "", "server host (overrides config)")
	rootCmd.Flags().IntP("port", "p", 0, "HTTP server port (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("smart-search-server %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("host") {
		appCfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		appCfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if verbose {
		appCfg.Log.Level = "debug"
	}

	log, closeLog, err := newLogger(appCfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	log.Info("Starting Smart Search Server", startupAttrs(appCfg)...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricsSvc := metrics.New()

	// Event bus, instrumented with metrics
	innerBus, err := bus.NewBus(appCfg.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	eventBus := bus.NewInstrumentedBus(innerBus, metricsSvc)
	defer func() { _ = eventBus.Close() }()

	var eventLog *bus.EventLogger
	if lb, ok := innerBus.(*bus.LoggedBus); ok {
		eventLog = lb.EventLogger()
		log.Info("Event logging enabled", "path", appCfg.Bus.EventLog)
	}
	log.Info("Event bus ready", "type", appCfg.Bus.Type)

	// Daily statistics
	statsStorage, err := metrics.NewStorage(appCfg.Stats)
	if err != nil {
		return fmt.Errorf("failed to create stats storage: %w", err)
	}
	tally := metrics.NewTally(statsStorage, log)
	defer func() { _ = tally.Close() }()

	if appCfg.Stats.Storage != "redis" && eventLog != nil {
		rebuildTally(ctx, tally, eventLog, appCfg.Stats.RetentionDays, log)
	}
	if err := tally.Attach(ctx, eventBus); err != nil {
		return fmt.Errorf("failed to attach stats: %w", err)
	}

	// Runtime settings
	settingsSvc, err := settings.NewService(settings.ServiceConfig{
		StoragePath: appCfg.Settings.StoragePath,
		Seed:        settings.ValvesFromConfig(appCfg),
	}, eventBus, metricsSvc, log)
	if err != nil {
		return fmt.Errorf("failed to create settings service: %w", err)
	}
	defer func() { _ = settingsSvc.Close() }()
	log.Info("Settings loaded", "version", settingsSvc.Version(), "path", appCfg.Settings.StoragePath)

	// Prefetch is optional; the valve only takes effect with credentials.
	prefetcher, err := newPrefetcher(ctx, appCfg, metricsSvc, log)
	if err != nil {
		return err
	}
	if prefetcher != nil {
		defer func() { _ = prefetcher.Close() }()
	}

	opts := filter.Options{
		Source:   settingsSvc,
		Bus:      eventBus,
		Recorder: metricsSvc,
		Logger:   log,
	}
	if prefetcher != nil {
		opts.Prefetcher = prefetcher
	}
	inlet := filter.New(opts)

	srvCfg := server.DefaultConfig()
	srvCfg.Host = appCfg.Host
	srvCfg.Port = appCfg.Port
	srvCfg.Version = version
	srvCfg.Commit = commit
	srvCfg.BuildDate = date
	srvCfg.APIKey = appCfg.Security.APIKey
	srvCfg.RateLimit = appCfg.Security.RateLimit
	srvCfg.RateBurst = appCfg.Security.RateBurst
	srvCfg.TrustedProxies = appCfg.Security.TrustedProxies
	srvCfg.MetricsPath = ""
	if appCfg.Observability.MetricsEnabled {
		srvCfg.MetricsPath = appCfg.Observability.MetricsPath
	}

	srv := server.New(srvCfg, server.Deps{
		Filter:   inlet,
		Settings: settingsSvc,
		Tally:    tally,
		Metrics:  metricsSvc,
		Events:   eventLog,
	}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
		defer cancel()
		return srv.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Server exited")
	return nil
}

// newLogger builds the process logger, writing to both stderr and the
// configured file when one is set.
// startupAttrs describes the effective configuration. Secrets are masked.
func startupAttrs(cfg *config.Config) []any {
	return []any{
		"version", version,
		"addr", cfg.Address(),
		"mode", cfg.Filter.Mode,
		"prefetch", cfg.Filter.Prefetch,
		"bus", cfg.Bus.Type,
		"cache", cfg.Cache.Type,
		"api_key", security.MaskSecret(cfg.Security.APIKey),
		"google_api_key", security.MaskSecret(cfg.Search.GoogleAPIKey),
		"trusted_proxies", cfg.Security.TrustedProxies,
	}
}

func newLogger(cfg config.LogConfig) (*logger.Logger, func(), error) {
	if cfg.File == "" {
		return logger.New(cfg.Level, cfg.Format), func() {}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log := logger.NewWithWriter(io.MultiWriter(os.Stderr, f), cfg.Level, cfg.Format)
	return log, func() { _ = f.Close() }, nil
}

// newPrefetcher returns nil when no search credentials are configured.
func newPrefetcher(ctx context.Context, cfg *config.Config, rec prefetch.Recorder, log *logger.Logger) (*prefetch.CachedPrefetcher, error) {
	if cfg.Search.GoogleAPIKey == "" || cfg.Search.GoogleEngineID == "" {
		log.Info("Prefetch disabled: search credentials not configured")
		return nil, nil
	}

	searcher, err := prefetch.NewGoogleSearcher(ctx, prefetch.GoogleConfigFrom(cfg.Search))
	if err != nil {
		return nil, fmt.Errorf("failed to create search client: %w", err)
	}

	cache, err := prefetch.NewCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create prefetch cache: %w", err)
	}

	log.Info("Prefetch ready", "cache", cfg.Cache.Type, "language", cfg.Search.Language)
	return prefetch.NewCachedPrefetcher(searcher, cache, rec, log), nil
}

// rebuildTally replays logged decisions into an in-memory tally so stats
// survive a restart without Redis.
func rebuildTally(ctx context.Context, tally *metrics.Tally, events *bus.EventLogger, retentionDays int, log *logger.Logger) {
	if retentionDays <= 0 {
		retentionDays = 1
	}
	since := time.Now().UTC().AddDate(0, 0, -retentionDays)

	scratch := bus.NewMemoryBus(log)
	if err := tally.Attach(ctx, scratch); err != nil {
		log.Warn("Failed to rebuild stats", "error", err)
		return
	}

	n, err := events.Replay(ctx, scratch, bus.TopicDecision, since)
	_ = scratch.Close()
	if err != nil {
		log.Warn("Failed to rebuild stats", "error", err, "replayed", n)
		return
	}
	log.Info("Rebuilt stats from event log", "events", n)
}
