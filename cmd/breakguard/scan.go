package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"breakguard/internal/catalog"
	"breakguard/internal/classifier"
	"breakguard/internal/config"
	"breakguard/internal/crawler"
	"breakguard/internal/index"
	"breakguard/internal/output"
	"breakguard/internal/pipeline"
	"breakguard/internal/report"
	"breakguard/internal/ui"

	"github.com/spf13/cobra"
)

var scanFlags struct {
	library       string
	from          int
	to            int
	thresholdLow  float64
	thresholdHigh float64
	output        string
	jsonPath      string
	failOn        string
	noColor       bool
	workers       int
}

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Scan a project and classify every library API it uses",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVarP(&scanFlags.library, "library", "l", "", "Library to check (default from config: react)")
	f.IntVar(&scanFlags.from, "from", 0, "Current major version")
	f.IntVar(&scanFlags.to, "to", 0, "Target major version")
	f.Float64Var(&scanFlags.thresholdLow, "threshold-low", 0, "Scores below this are breaking")
	f.Float64Var(&scanFlags.thresholdHigh, "threshold-high", 0, "Scores at or above this are compatible")
	f.StringVarP(&scanFlags.output, "output", "o", "text", "Output format: text, json or yaml")
	f.StringVar(&scanFlags.jsonPath, "json", "", "Also write the JSON report to this file (gzip when it ends in .gz)")
	f.StringVar(&scanFlags.failOn, "fail-on", "", "Exit with status 2 when the report has APIs at this tier or worse: breaking, minor or unknown (any API not shown compatible)")
	f.BoolVar(&scanFlags.noColor, "no-color", false, "Disable colored output")
	f.IntVarP(&scanFlags.workers, "workers", "w", 0, "Concurrent file workers")
}

func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("library") {
		cfg.Library = scanFlags.library
	}
	if f.Changed("from") {
		cfg.From = scanFlags.from
	}
	if f.Changed("to") {
		cfg.To = scanFlags.to
	}
	if f.Changed("threshold-low") {
		cfg.Thresholds.Low = scanFlags.thresholdLow
	}
	if f.Changed("threshold-high") {
		cfg.Thresholds.High = scanFlags.thresholdHigh
	}
	if f.Changed("workers") {
		cfg.Scan.Workers = scanFlags.workers
	}
}

func parseFailOn(s string) (classifier.Tier, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", false, nil
	case "breaking":
		return classifier.Breaking, true, nil
	case "minor":
		return classifier.Minor, true, nil
	case "unknown":
		return classifier.Unknown, true, nil
	default:
		return "", false, fmt.Errorf("%w: --fail-on must be breaking, minor or unknown, got %q", config.ErrInvalidConfig, s)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve project path: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyScanFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	format, err := output.ParseFormat(scanFlags.output)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	failTier, failOn, err := parseFailOn(scanFlags.failOn)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		return fmt.Errorf("%w: %w", pipeline.ErrCatalogUnavailable, err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := newEngine(ctx, cfg, store)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Root:       root,
		Library:    cfg.Library,
		From:       cfg.From,
		To:         cfg.To,
		Thresholds: cfg.Thresholds,
		Crawl: crawler.Options{
			Extensions:  cfg.Scan.Extensions,
			Exclude:     cfg.Scan.Exclude,
			MaxFileSize: cfg.Scan.MaxFileSize,
			Workers:     cfg.Scan.Workers,
		},
		QueryWorkers:           cfg.Scan.QueryWorkers,
		QueryTimeout:           cfg.Scan.QueryTimeout,
		MaxConsecutiveFailures: cfg.Scan.MaxConsecutiveFailures,
	}

	var rep *report.Report
	work := func(ctx context.Context, status func(string)) error {
		if strings.EqualFold(cfg.Index.Backend, "memory") && len(cat.Entries(cfg.Library, cfg.To)) > 0 {
			status("embedding catalog")
			idx := index.NewIndexer(engine, store, logger)
			if _, err := idx.IndexVersion(ctx, cat, strings.ToLower(cfg.Library), cfg.To); err != nil {
				return fmt.Errorf("%w: %w", pipeline.ErrCatalogUnavailable, err)
			}
		}
		scanner := pipeline.NewScanner(cat, engine, logger)
		scanner.OnProgress(status)
		var err error
		rep, err = scanner.Run(ctx, opts)
		return err
	}

	if ui.IsTerminal(os.Stderr) && verbosity == 0 {
		err = ui.RunSpinner(ctx, os.Stderr, "scanning "+root, work)
	} else {
		err = work(ctx, func(string) {})
	}
	if err != nil {
		return err
	}

	noColor := scanFlags.noColor || !ui.IsTerminal(os.Stdout)
	if err := output.Render(cmd.OutOrStdout(), rep, format, output.Options{NoColor: noColor}); err != nil {
		return err
	}
	if scanFlags.jsonPath != "" {
		if err := output.WriteJSONFile(scanFlags.jsonPath, rep); err != nil {
			return err
		}
		logger.Info("wrote JSON report", "path", scanFlags.jsonPath)
	}

	if failOn && rep.AtLeast(failTier) {
		return &exitError{code: 2}
	}
	return nil
}
