package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/docmirror/internal/config"
	"github.com/nao1215/docmirror/internal/database"
	applog "github.com/nao1215/docmirror/internal/log"
	"github.com/nao1215/docmirror/internal/model"
	"github.com/nao1215/docmirror/internal/pipeline"
	"github.com/nao1215/docmirror/internal/report"
	"github.com/nao1215/docmirror/internal/scope"
)

// NewMirrorCmd creates the mirror command.
func NewMirrorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror <seed-url> [seed-url...]",
		Short: "Mirror a documentation site into a local directory",
		Long: `Mirror crawls a documentation site starting at the seed URL.

Every page whose URL starts with the seed's directory (the seed without
its last path segment) is saved as one file in the output directory.
"https://example.com/docs/guide/intro" is saved as "docs_guide_intro.html".
Links between saved pages are rewritten to the local file names, links
to anything else are replaced by their text.

The crawl fetches one page at a time and pauses after every request.

Examples:
  # Mirror a site into ./scraped_documentation
  docmirror mirror https://example.com/docs/index.html

  # Save at most 50 pages into ./docs, half a second between requests
  docmirror mirror -o docs -p 50 -d 500ms https://example.com/docs/

  # Mirror two sites at the same time, each into its own subdirectory
  docmirror mirror -b 2 https://a.example.com/docs/ https://b.example.com/manual/

  # Write a Markdown report of the run
  docmirror mirror -m -r report.md https://example.com/docs/`,
		Args: cobra.ArbitraryArgs,
		RunE: runMirrorCmd,
	}

	// Crawl behavior flags
	cmd.Flags().StringP("output", "o", config.DefaultOutputDir,
		"Directory the mirrored pages are written to")
	cmd.Flags().DurationP(config.FlagDelay, "d", config.DefaultDelay,
		"Pause after each request")
	cmd.Flags().IntP(config.FlagMaxPages, "p", config.DefaultMaxPages,
		"Maximum number of pages saved per site (0 = unlimited)")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")
	cmd.Flags().String(config.FlagUserAgent, config.DefaultUserAgent,
		"User-Agent header sent with each request")
	cmd.Flags().StringToString("header", nil,
		"Extra request header as name=value (repeatable)")

	// Scope flags
	cmd.Flags().String("scope", config.DefaultScopePolicy,
		fmt.Sprintf("Scope policy: %s, or %s (experimental page sniffing)", scope.PolicyPrefix, scope.PolicyContent))
	cmd.Flags().Bool("strict-scope", false,
		"With --scope content, skip pages without documentation markers")
	cmd.Flags().StringSlice(config.FlagKeywords, nil,
		"Documentation keywords for --scope content")
	cmd.Flags().StringSlice(config.FlagIgnore, nil,
		"URL path patterns that are never crawled (glob syntax)")
	cmd.Flags().StringSlice(config.FlagFollow, nil,
		"Only crawl URL paths matching these patterns (glob syntax)")

	// Network flags
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address (e.g., 127.0.0.1:1080)")
	cmd.Flags().Bool("respect-robots", false,
		"Skip URLs disallowed by robots.txt")

	// Batch flags
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of sites mirrored at the same time")

	// History flags
	cmd.Flags().Bool("no-db", false,
		"Do not record the run in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: $XDG_DATA_HOME/docmirror)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .docmirror in current or home directory)")

	// Report and log flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report-file", "r", "",
		"Write the report to this file instead of stdout")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON lines")

	return cmd
}

func runMirrorCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runMirror(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags and the
// configuration file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Seeds = args
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	var err error

	if cfg.OutputDir, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration(config.FlagDelay); err != nil {
		return nil, err
	}
	if cfg.MaxPages, err = flags.GetInt(config.FlagMaxPages); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString(config.FlagUserAgent); err != nil {
		return nil, err
	}
	if cfg.Headers, err = flags.GetStringToString("header"); err != nil {
		return nil, err
	}
	if cfg.ScopePolicy, err = flags.GetString("scope"); err != nil {
		return nil, err
	}
	if cfg.StrictScope, err = flags.GetBool("strict-scope"); err != nil {
		return nil, err
	}
	if cfg.Keywords, err = flags.GetStringSlice(config.FlagKeywords); err != nil {
		return nil, err
	}
	if cfg.IgnorePatterns, err = flags.GetStringSlice(config.FlagIgnore); err != nil {
		return nil, err
	}
	if cfg.FollowPatterns, err = flags.GetStringSlice(config.FlagFollow); err != nil {
		return nil, err
	}
	if cfg.Proxy, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.RespectRobots, err = flags.GetBool("respect-robots"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report-file"); err != nil {
		return nil, err
	}
	if cfg.LogJSON, err = flags.GetBool("log-json"); err != nil {
		return nil, err
	}

	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	cfg.ExplicitFlags = make(map[string]bool)
	flags.Visit(func(f *pflag.Flag) {
		cfg.ExplicitFlags[f.Name] = true
	})

	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadSiteConfigs loads the configuration file. A missing file is an error
// only when its path was given explicitly.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	file, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return file, nil
}

// setupLogger creates the secure structured logger.
func setupLogger(w io.Writer, verbose, asJSON bool) *slog.Logger {
	if asJSON {
		return applog.NewSecureJSONLogger(w, verbose)
	}
	return applog.NewSecureLogger(w, verbose)
}

// runMirror mirrors every seed of cfg and writes one report per seed.
// The closing summary goes to stderr when a machine-readable report is
// written to stdout.
func runMirror(ctx context.Context, stdout, stderr io.Writer, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting mirror",
		"seeds", cfg.Seeds,
		"output", cfg.OutputDir,
		"batch_size", cfg.BatchSize,
		"save_to_db", cfg.SaveToDB,
	)

	var recorder pipeline.RunRecorder
	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "path", db.Path())
		recorder = db
	}

	out, closeOut, err := reportOutput(stdout, cfg.ReportFile)
	if err != nil {
		return err
	}
	defer closeOut()
	writer := newReportWriter(out, cfg)

	bp := pipeline.NewBatchProcessor(
		func(seed string) (*pipeline.Pipeline, error) {
			return pipeline.DefaultPipeline(cfg, seed, recorder, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithOutputDir(cfg.OutputDir),
		pipeline.WithBatchLogger(logger),
	)

	startTime := time.Now()
	var (
		mu     sync.Mutex
		total  int
		failed int
	)
	err = bp.ProcessBatchWithCallback(ctx, cfg.Seeds, func(r *model.MirrorReport, _ int) {
		mu.Lock()
		defer mu.Unlock()

		total += r.PagesSaved
		if r.State == model.RunFailed {
			failed++
		}
		if _, werr := writer.Write(r); werr != nil {
			logger.Error("failed to write report", "seed", r.Seed, "error", werr)
		}
	})

	summary := stdout
	if cfg.ReportFile == "" && (cfg.JSONReport || cfg.MarkdownReport) {
		summary = stderr
	}
	if cfg.ReportFile != "" {
		fmt.Fprintf(summary, "Report written to %s\n", cfg.ReportFile)
	}
	fmt.Fprintf(summary, "Pages persisted: %d (%d site(s), %s)\n",
		total, len(cfg.Seeds), time.Since(startTime).Round(time.Millisecond))

	if err != nil {
		return err
	}
	if failed == len(cfg.Seeds) {
		return fmt.Errorf("all %d mirror run(s) failed", failed)
	}
	return nil
}

// reportOutput returns the writer the reports go to and a function that
// closes it.
func reportOutput(stdout io.Writer, path string) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path comes from --report-file
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck
}

// newReportWriter selects the report format.
func newReportWriter(out io.Writer, cfg *config.Config) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
