package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sumiripple/sumiripple/internal/build"
	"github.com/sumiripple/sumiripple/internal/classify"
	"github.com/sumiripple/sumiripple/internal/config"
	"github.com/sumiripple/sumiripple/internal/coordinator"
	"github.com/sumiripple/sumiripple/internal/fetcher"
	"github.com/sumiripple/sumiripple/internal/frontier"
	"github.com/sumiripple/sumiripple/internal/harvester"
	"github.com/sumiripple/sumiripple/internal/metadata"
	"github.com/sumiripple/sumiripple/internal/report"
	"github.com/sumiripple/sumiripple/internal/robots"
	"github.com/sumiripple/sumiripple/internal/robots/cache"
	"github.com/sumiripple/sumiripple/internal/store"
	"github.com/sumiripple/sumiripple/pkg/fileutil"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitConfigError  = 1
	exitStorageError = 2
	exitInterrupted  = 3
)

var (
	fresh         bool
	resume        bool
	dryRun        bool
	showStats     bool
	exportSummary bool
	verboseCount  int
	quiet         bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "sumiripple <config>",
	Short: "A polite, resumable documentation crawler.",
	Long: `sumiripple crawls a curated set of quality documentation domains,
classifying every link it encounters as quality, stubbed, blacklisted, or
newly discovered, and persists all crawl state to a local SQLite database
so an interrupted run can be resumed without re-fetching finished pages.`,
	Version: build.FullVersion(),
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, args[0])
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.Flags().BoolVar(&fresh, "fresh", false, "discard any interrupted run and start over")
	rootCmd.Flags().BoolVar(&resume, "resume", true, "resume the most recent interrupted run (default)")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate configuration and exit without crawling")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "print persisted run statistics and exit without crawling")
	rootCmd.Flags().BoolVar(&exportSummary, "export-summary", false, "write the Markdown summary after the run finishes")
	rootCmd.Flags().CountVarP(&verboseCount, "verbose", "v", "increase log verbosity (-v, -vv, -vvv)")
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "suppress all but error-level logs")
}

func run(cmd *cobra.Command, configPath string) error {
	logger, err := newLogger(verboseCount, quiet)
	if err != nil {
		return fmt.Errorf("%w: build logger: %s", errConfig, err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("%w: %s", errConfig, err)
	}

	if fresh && cmdFlagChanged(cmd, "resume") && resume {
		return fmt.Errorf("%w: --fresh and --resume are mutually exclusive", errConfig)
	}

	if dryRun {
		printResolvedConfig(cfg)
		return nil
	}

	sink := metadata.NewRecorder("cli", logger)
	classifier := classify.New(cfg)

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("%w: open store: %s", errStorage, err)
	}
	defer func() { _ = st.Close() }()

	if showStats {
		return printStats(st, classifier)
	}

	htmlFetcher := fetcher.NewHtmlFetcher(&sink)
	robotsFetcher := robots.NewRobotsFetcher(&sink, cfg.UserAgent(), cache.NewMemoryCache())
	robot := robots.NewRobot(robotsFetcher, cfg.UserAgent(), &sink)
	harvest := harvester.NewHarvester(&sink)
	pipeline := fetcher.NewPipeline(&htmlFetcher, &robot, &harvest, classifier, cfg.UserAgent())

	sched := frontier.New(cfg.MaxConcurrentPagesOpen(), cfg.MinTimeOnPage(), cfg.MaxDomainRequests(), nil)
	coord := coordinator.New(st, sched, &pipeline, classifier, cfg, &sink)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := coord.Start(ctx, fresh); err != nil {
		return fmt.Errorf("%w: start run: %s", errStorage, err)
	}

	runErr := coord.Run(ctx)

	if exportSummary || runErr == nil {
		if err := writeSummary(ctx, st, classifier, cfg.SummaryPath()); err != nil {
			logger.Error("failed to write summary", zap.Error(err))
		}
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s", errInterrupted, runErr)
		}
		return fmt.Errorf("%w: %s", errStorage, runErr)
	}
	return nil
}

func writeSummary(ctx context.Context, st *store.Store, classifier *classify.Classifier, summaryPath string) error {
	if dir := filepath.Dir(summaryPath); dir != "." {
		if err := fileutil.EnsureDir(dir); err != nil {
			return err
		}
	}

	f, err := os.Create(summaryPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := report.NewWriter(st, classifier)
	return w.Write(ctx, f)
}

func printStats(st *store.Store, classifier *classify.Classifier) error {
	ctx := context.Background()
	w := report.NewWriter(st, classifier)
	return w.Write(ctx, os.Stdout)
}

func printResolvedConfig(cfg config.Config) {
	fmt.Printf("Configuration valid.\n")
	fmt.Printf("User-Agent: %s\n", cfg.UserAgent())
	fmt.Printf("Max Depth: %d\n", cfg.MaxDepth())
	fmt.Printf("Max Concurrent Pages Open: %d\n", cfg.MaxConcurrentPagesOpen())
	fmt.Printf("Min Time On Page: %v\n", cfg.MinTimeOnPage())
	fmt.Printf("Max Domain Requests: %d\n", cfg.MaxDomainRequests())
	for _, q := range cfg.QualityDomains() {
		fmt.Printf("Quality Domain: %s (%d seeds)\n", q.Domain, len(q.Seeds))
	}
	fmt.Printf("Database Path: %s\n", cfg.DatabasePath())
	fmt.Printf("Summary Path: %s\n", cfg.SummaryPath())
}

// newLogger builds a zap logger whose level follows -v/-vv/-vvv (info,
// debug, and below-debug trace-style verbosity via debug again, since zap
// has no finer built-in level) and --quiet (errors only).
func newLogger(verbosity int, quiet bool) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	switch {
	case quiet:
		level = zapcore.ErrorLevel
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = "console"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}

func cmdFlagChanged(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errConfig):
		return exitConfigError
	case errors.Is(err, errInterrupted):
		return exitInterrupted
	case errors.Is(err, errStorage):
		return exitStorageError
	default:
		return exitStorageError
	}
}
