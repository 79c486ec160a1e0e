package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/marketplace-capture/browser"
	"github.com/aluiziolira/marketplace-capture/config"
	"github.com/aluiziolira/marketplace-capture/models"
	"github.com/aluiziolira/marketplace-capture/pipeline"
	"github.com/aluiziolira/marketplace-capture/scraper"
	"github.com/aluiziolira/marketplace-capture/store"
)

type scrapeOptions struct {
	root        *rootOptions
	profile     string
	journalPath string
	flags       *config.Config
}

func newScrapeCmd(root *rootOptions) *cobra.Command {
	return buildScrapeCmd(&scrapeOptions{root: root, flags: config.DefaultConfig()})
}

func buildScrapeCmd(opts *scrapeOptions) *cobra.Command {
	f := opts.flags

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Capture one day of listings from the configured category feed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), cfg, opts.journalPath, cmd.OutOrStdout())
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&opts.profile, "profile", "", "YAML site profile (selectors, payload shape, pacing)")
	fl.StringVar(&opts.journalPath, "journal", "", "Stream every in-day record to this JSONL file as it is captured")
	fl.StringVar(&f.CategoryURL, "category-url", f.CategoryURL, "Marketplace category feed to capture")
	fl.StringVar(&f.TargetDate, "target-date", f.TargetDate, "Day to capture (YYYY-MM-DD); defaults to yesterday")
	fl.StringVar(&f.Timezone, "timezone", f.Timezone, "IANA timezone used for day boundaries")
	fl.StringVar(&f.OutputFormat, "format", f.OutputFormat, "Output format: xlsx, csv, jsonl, or dual")
	fl.IntVar(&f.MaxListings, "max-listings", f.MaxListings, "Stop after this many listings (0 = no limit)")
	fl.BoolVar(&f.Headless, "headless", f.Headless, "Run Chrome without a window")
	fl.BoolVar(&f.NextDayCutoff, "next-day-cutoff", f.NextDayCutoff, "Skip listings created after the target day")
	fl.DurationVar(&f.SettleDelay, "settle-delay", f.SettleDelay, "Wait after opening a listing before reading traffic")
	fl.DurationVar(&f.ListingInterval, "listing-interval", f.ListingInterval, "Minimum time between listings")
	fl.StringVar(&f.UserDataDir, "user-data-dir", f.UserDataDir, "Chrome profile directory to reuse a logged-in session")
	fl.StringVar(&f.DataDir, "data-dir", f.DataDir, "Directory for listing tables")
	fl.StringVar(&f.ErrorDir, "error-dir", f.ErrorDir, "Directory for error ledgers")
	fl.StringVar(&f.MetricsWorkbook, "metrics-workbook", f.MetricsWorkbook, "Cumulative run metrics workbook")
	fl.StringVar(&f.MetricsSheet, "metrics-sheet", f.MetricsSheet, "Sheet of the run metrics workbook")
	fl.StringVar(&f.ArchivePath, "archive", f.ArchivePath, "SQLite database archiving every run")
	fl.StringVar(&f.LogDir, "log-dir", f.LogDir, "Also write logs to a dated file under this directory")
	fl.StringVar(&f.MetricsAddr, "metrics-addr", f.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fl.StringVar(&f.MetricsTextfile, "metrics-textfile", f.MetricsTextfile, "Write final metrics in textfile-collector format")
	return cmd
}

// flagBindings copies explicitly set flags over the resolved config.
var flagBindings = map[string]func(dst, src *config.Config){
	"category-url":     func(d, s *config.Config) { d.CategoryURL = s.CategoryURL },
	"target-date":      func(d, s *config.Config) { d.TargetDate = s.TargetDate },
	"timezone":         func(d, s *config.Config) { d.Timezone = s.Timezone },
	"format":           func(d, s *config.Config) { d.OutputFormat = strings.ToLower(s.OutputFormat) },
	"max-listings":     func(d, s *config.Config) { d.MaxListings = s.MaxListings },
	"headless":         func(d, s *config.Config) { d.Headless = s.Headless },
	"next-day-cutoff":  func(d, s *config.Config) { d.NextDayCutoff = s.NextDayCutoff },
	"settle-delay":     func(d, s *config.Config) { d.SettleDelay = s.SettleDelay },
	"listing-interval": func(d, s *config.Config) { d.ListingInterval = s.ListingInterval },
	"user-data-dir":    func(d, s *config.Config) { d.UserDataDir = s.UserDataDir },
	"data-dir":         func(d, s *config.Config) { d.DataDir = s.DataDir },
	"error-dir":        func(d, s *config.Config) { d.ErrorDir = s.ErrorDir },
	"metrics-workbook": func(d, s *config.Config) { d.MetricsWorkbook = s.MetricsWorkbook },
	"metrics-sheet":    func(d, s *config.Config) { d.MetricsSheet = s.MetricsSheet },
	"archive":          func(d, s *config.Config) { d.ArchivePath = s.ArchivePath },
	"log-dir":          func(d, s *config.Config) { d.LogDir = s.LogDir },
	"metrics-addr":     func(d, s *config.Config) { d.MetricsAddr = s.MetricsAddr },
	"metrics-textfile": func(d, s *config.Config) { d.MetricsTextfile = s.MetricsTextfile },
}

// resolveConfig layers defaults, the YAML profile, the dotenv file, the
// environment and finally explicitly set flags.
func resolveConfig(cmd *cobra.Command, opts *scrapeOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.profile != "" {
		p, err := config.LoadProfile(opts.profile)
		if err != nil {
			return nil, err
		}
		cfg.ApplyProfile(p)
	}
	if err := config.LoadDotEnv(opts.root.envFile); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	for name, apply := range flagBindings {
		if cmd.Flags().Changed(name) {
			apply(cfg, opts.flags)
		}
	}
	if opts.root.verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runScrape(ctx context.Context, cfg *config.Config, journalPath string, out io.Writer) error {
	startTime := time.Now()
	target, err := cfg.TargetDay(startTime)
	if err != nil {
		return err
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		f, err := openLogFile(cfg.LogDir, cfg.LogPrefix, startTime)
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = io.MultiWriter(os.Stdout, f)
	}
	logger, level := newLogger(cfg.Verbose, logOut)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	slog.Info("starting capture",
		slog.String("category_url", cfg.CategoryURL),
		slog.String("target_date", target.Format(config.DateLayout)),
		slog.String("format", cfg.OutputFormat),
	)

	metrics := scraper.NewMetrics()
	stopMetrics := serveMetrics(cfg.MetricsAddr, metrics.Registry)
	defer stopMetrics()

	var journal *pipeline.Pipeline
	if journalPath != "" {
		w, err := pipeline.NewJSONLWriter(journalPath, models.ListingColumns)
		if err != nil {
			return fmt.Errorf("creating journal: %w", err)
		}
		journal = pipeline.NewPipeline(w)
		journal.Start(1)
		if cfg.Verbose {
			journal.StartMetricsReporting(30 * time.Second)
		}
		defer func() {
			journal.Close()
			if err := w.Close(); err != nil {
				slog.Error("close journal", slog.Any("error", err))
			}
		}()
	}

	run := models.NewRunMetrics(target, startTime)

	session, err := browser.NewSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return err
	}
	if err := session.OpenCategory(ctx, cfg.CategoryURL); err != nil {
		return err
	}

	loopOpts := []scraper.Option{scraper.WithMetrics(metrics)}
	if journal != nil {
		loopOpts = append(loopOpts, scraper.WithJournal(journal))
	}
	loop := scraper.NewLoop(cfg, target, session, session.Recorder, loopOpts...)
	result, runErr := loop.Run(ctx)
	if runErr != nil {
		slog.Error("capture aborted, saving partial results", slog.Any("error", runErr))
	}

	if journal != nil {
		if err := journal.Close(); err != nil {
			slog.Error("journal shutdown failed", slog.Any("error", err))
		}
	}

	// The save phase runs even after a signal cancelled ctx.
	saved, saveErr := persist(context.WithoutCancel(ctx), cfg, target, run, result, loop)
	if cfg.MetricsTextfile != "" {
		if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, metrics.Registry); err != nil {
			saveErr = errors.Join(saveErr, fmt.Errorf("write metrics textfile: %w", err))
		}
	}

	printSummary(out, result, run, saved, journal)
	return errors.Join(runErr, saveErr)
}

type savedFiles struct {
	Data    string
	Errors  string
	Metrics string
	RunID   int64
}

// persist writes the listing table, the error ledger, the metrics row and
// the optional archive. Every step runs even when an earlier one fails.
func persist(ctx context.Context, cfg *config.Config, target time.Time, run *models.RunMetrics, result *scraper.Result, loop *scraper.Loop) (savedFiles, error) {
	var saved savedFiles
	var errs []error

	table, ledger := loop.Table(), loop.Ledger()
	if err := run.SetCounts(table.Len(), result.Attempted, ledger.Len()); err != nil {
		errs = append(errs, err)
	}
	if err := run.Finalize(time.Now()); err != nil {
		errs = append(errs, err)
	}

	slog.Info("saving listings", slog.Int("rows", table.Len()))
	path, err := pipeline.SaveTable(cfg.OutputFormat, cfg.DataDir, cfg.DataPrefix, target, table.Len(), table)
	if err != nil {
		errs = append(errs, fmt.Errorf("save listings: %w", err))
	}
	saved.Data = path

	slog.Info("saving error ledger", slog.Int("rows", ledger.Len()))
	path, err = pipeline.SaveTable(cfg.OutputFormat, cfg.ErrorDir, cfg.ErrorPrefix, target, ledger.Len(), ledger)
	if err != nil {
		errs = append(errs, fmt.Errorf("save error ledger: %w", err))
	}
	saved.Errors = path

	if cfg.MetricsWorkbook != "" {
		if err := pipeline.AppendRunSheet(cfg.MetricsWorkbook, cfg.MetricsSheet, run); err != nil {
			errs = append(errs, fmt.Errorf("save run metrics: %w", err))
		} else {
			saved.Metrics = cfg.MetricsWorkbook
		}
	}

	if cfg.ArchivePath != "" {
		id, err := archiveRun(ctx, cfg.ArchivePath, run, result, table.Records(), ledger.Records())
		if err != nil {
			errs = append(errs, fmt.Errorf("archive run: %w", err))
		}
		saved.RunID = id
	}
	return saved, errors.Join(errs...)
}

func archiveRun(ctx context.Context, path string, run *models.RunMetrics, result *scraper.Result, listings []models.ListingRecord, ledger []models.ErrorRecord) (int64, error) {
	db, err := store.Open(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	return db.SaveRun(ctx, run, string(result.Reason), listings, ledger)
}

// serveMetrics starts the Prometheus endpoint when addr is set and returns
// its shutdown func.
func serveMetrics(addr string, registry *prometheus.Registry) func() {
	if addr == "" {
		return func() {}
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}
