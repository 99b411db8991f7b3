package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pable/go-ink-metrics/internal/config"
	"github.com/pable/go-ink-metrics/internal/fetcher"
	"github.com/pable/go-ink-metrics/internal/logger"
	"github.com/pable/go-ink-metrics/internal/metrics"
	"github.com/pable/go-ink-metrics/internal/pipeline"
)

var (
	envFile     string
	dataDir     string
	sourceDir   string
	logLevel    string
	delay       time.Duration
	compress    bool
	fullCrawl   bool
	metricsFile string
)

// Set by setup before any command runs.
var (
	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "inkmetrics",
	Short: "Splatoon 3 battle metrics from stat.ink",
	Long: `Scrape Splatoon 3 battle history from stat.ink into incremental CSV files,
then reshape and aggregate it into per-player, per-team and per-weapon statistics.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cError.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	pf.StringVar(&dataDir, "data-dir", "", "directory for scraped CSV files (INK_DATA_DIR)")
	pf.StringVar(&sourceDir, "source-dir", "", "directory for catalog CSV files (INK_SOURCE_DIR)")
	pf.StringVar(&logLevel, "log-level", "", "trace, debug, info, warn or error (INK_LOG_LEVEL)")
	pf.DurationVar(&delay, "delay", 0, "pause between requests (INK_DELAY)")
	pf.BoolVar(&compress, "compress", false, "store data files as zstd-compressed CSV (INK_COMPRESS)")
	pf.BoolVar(&fullCrawl, "full-crawl", false, "crawl every listing page instead of stopping at known battles (INK_FULL_CRAWL)")
	pf.StringVar(&metricsFile, "metrics-file", "", "write run metrics in Prometheus text format to this file (INK_METRICS_FILE)")

	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(battlesCmd)
	rootCmd.AddCommand(detailsCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(playersCmd)
	rootCmd.AddCommand(teamsCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(dropCmd)
}

// setup loads the config, applies flag overrides and builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	boot := logger.New(logLevel)
	c, err := config.Load(envFile, boot)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		c.DataDir = dataDir
	}
	if flags.Changed("source-dir") {
		c.SourceDir = sourceDir
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("delay") {
		c.Delay = delay
	}
	if flags.Changed("compress") {
		c.Compress = compress
	}
	if flags.Changed("full-crawl") {
		c.FullCrawl = fullCrawl
	}
	if flags.Changed("metrics-file") {
		c.MetricsFile = metricsFile
	}
	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	log = logger.New(c.LogLevel).With().Str("cmd", cmd.Name()).Logger()
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newFetcher() *fetcher.Fetcher {
	return fetcher.New(fetcher.Options{
		Delay:     cfg.Delay,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
	}, log)
}

// newUpdater wires the rate-limited fetcher into a pipeline.Updater.
func newUpdater() (*pipeline.Updater, error) {
	return pipeline.NewUpdater(cfg, newFetcher(), log)
}

// recordRun writes the run to INK_METRICS_FILE when one is configured.
func recordRun(m *metrics.Metrics, f *fetcher.Fetcher, reps []*pipeline.Report, start time.Time, err error) {
	if cfg.MetricsFile == "" {
		return
	}
	m.Record(reps, f.Fetches(), time.Since(start), err)
	if werr := m.WriteTextfile(cfg.MetricsFile); werr != nil {
		log.Error().Err(werr).Str("path", cfg.MetricsFile).Msg("write metrics")
	}
}
