package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"breakguard/internal/catalog"
	"breakguard/internal/classifier"
	"breakguard/internal/config"
	"breakguard/internal/crawler"
	"breakguard/internal/extractor"
	"breakguard/internal/knowledge"
	"breakguard/internal/report"
	"breakguard/internal/resolver"
)

// ErrCatalogUnavailable aborts a scan when the target version has nothing
// to compare against.
var ErrCatalogUnavailable = errors.New("API catalog unavailable")

// Collaborator answers similarity queries and reports index coverage.
// *knowledge.Engine implements it.
type Collaborator interface {
	resolver.Searcher
	Count(ctx context.Context, filter knowledge.Filter) (int, error)
}

type Options struct {
	Root       string
	Library    string
	From       int
	To         int
	Thresholds classifier.Thresholds

	Crawl                  crawler.Options
	QueryWorkers           int
	QueryTimeout           time.Duration
	MaxConsecutiveFailures int
}

// Progress receives stage names as a scan advances. It may be nil.
type Progress func(stage string)

// Scanner runs one compatibility scan per call to Run. It holds no state
// between runs.
type Scanner struct {
	catalog  *catalog.Catalog
	collab   Collaborator
	logger   *slog.Logger
	progress Progress
}

func NewScanner(cat *catalog.Catalog, collab Collaborator, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scanner{catalog: cat, collab: collab, logger: logger}
}

// OnProgress registers a stage callback.
func (s *Scanner) OnProgress(p Progress) {
	s.progress = p
}

// Run scans opts.Root and returns the report. Invalid options wrap
// config.ErrInvalidConfig and an empty catalog or index wraps
// ErrCatalogUnavailable; both are detected before any file is read.
func (s *Scanner) Run(ctx context.Context, opts Options) (*report.Report, error) {
	ext, err := s.validateStage(opts)
	if err != nil {
		return nil, err
	}
	opts.Library = ext.Profile().Library
	if err := s.preflightStage(ctx, opts); err != nil {
		return nil, err
	}

	crawled, err := s.crawlStage(ctx, ext, opts)
	if err != nil {
		return nil, err
	}

	names := uniqueNames(crawled.CallSites)
	matches := s.resolveStage(ctx, names, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	verdicts, diags := s.classifyStage(matches, opts)

	rep := report.Build(report.Meta{
		Project:     opts.Root,
		Library:     opts.Library,
		FromVersion: opts.From,
		ToVersion:   opts.To,
		Thresholds:  opts.Thresholds,
		Files:       crawled.Files,
		Degraded:    crawled.Degraded,
	}, crawled.CallSites, verdicts, append(crawled.Diagnostics, diags...))

	s.logger.Info("scan finished",
		"apis", rep.TotalUniqueAPIs,
		"breaking", rep.Counts.Breaking,
		"minor", rep.Counts.Minor,
		"compatible", rep.Counts.Compatible,
		"unknown", rep.Counts.Unknown)
	return &rep, nil
}

func (s *Scanner) stage(name string) {
	if s.progress != nil {
		s.progress(name)
	}
}

func (s *Scanner) validateStage(opts Options) (*extractor.Extractor, error) {
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	if opts.From <= 0 || opts.To <= 0 {
		return nil, fmt.Errorf("%w: versions must be positive (from=%d, to=%d)", config.ErrInvalidConfig, opts.From, opts.To)
	}
	ext, err := extractor.NewExtractor(opts.Library)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("%w: project root: %w", config.ErrInvalidConfig, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: project root %s is not a directory", config.ErrInvalidConfig, opts.Root)
	}
	return ext, nil
}

func (s *Scanner) preflightStage(ctx context.Context, opts Options) error {
	s.stage("checking catalog")
	library := opts.Library

	if len(s.catalog.Entries(library, opts.To)) == 0 {
		return fmt.Errorf("%w: no catalog entries for %s %d", ErrCatalogUnavailable, library, opts.To)
	}
	n, err := s.collab.Count(ctx, knowledge.Filter{Library: library, Version: opts.To})
	if err != nil {
		return fmt.Errorf("%w: vector index: %w", ErrCatalogUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: vector index has no entries for %s %d (run `breakguard index`)", ErrCatalogUnavailable, library, opts.To)
	}
	s.logger.Debug("catalog ready", "library", library, "version", opts.To, "vectors", n)
	return nil
}

func (s *Scanner) crawlStage(ctx context.Context, ext *extractor.Extractor, opts Options) (*crawler.Result, error) {
	s.stage("extracting call sites")
	start := time.Now()

	c := crawler.NewCrawler(ext, opts.Crawl, s.logger)
	res, err := c.ScanProject(ctx, opts.Root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", filepath.Clean(opts.Root), err)
	}
	s.logger.Info("extraction finished",
		"files", res.Files, "degraded", res.Degraded, "call_sites", len(res.CallSites),
		"duration", time.Since(start))
	return res, nil
}

func (s *Scanner) resolveStage(ctx context.Context, names []string, opts Options) []resolver.MatchResult {
	if len(names) == 0 {
		return nil
	}
	s.stage(fmt.Sprintf("matching %d APIs", len(names)))
	start := time.Now()

	r := resolver.New(s.collab, s.catalog, resolver.Options{
		Library:                opts.Library,
		Version:                opts.To,
		Workers:                opts.QueryWorkers,
		QueryTimeout:           opts.QueryTimeout,
		MaxConsecutiveFailures: opts.MaxConsecutiveFailures,
	}, s.logger)
	matches := r.ResolveAll(ctx, names)

	s.logger.Info("matching finished", "apis", len(names), "duration", time.Since(start))
	return matches
}

func (s *Scanner) classifyStage(matches []resolver.MatchResult, opts Options) ([]classifier.Verdict, []report.Diagnostic) {
	var diags report.Diagnostics
	verdicts := make([]classifier.Verdict, len(matches))
	skipped := 0

	for i, m := range matches {
		verdicts[i] = classifier.Classify(m, opts.Thresholds)
		switch {
		case m.Err == nil:
		case errors.Is(m.Err, resolver.ErrUnreachable):
			skipped++
		default:
			s.logger.Warn("query failed", "api", m.Name, "error", m.Err)
			diags.Add(report.SeverityWarning, "resolve", report.CodeQueryFailed, m.Name, m.Err.Error())
		}
	}
	if skipped > 0 {
		msg := fmt.Sprintf("%d API names were not queried after %d consecutive failures", skipped, opts.MaxConsecutiveFailures)
		s.logger.Warn("vector collaborator unreachable", "skipped", skipped)
		diags.Add(report.SeverityWarning, "resolve", report.CodeCollaboratorUnreachable, "vector index", msg)
	}
	return verdicts, diags.Items()
}

// uniqueNames returns distinct names in first-seen order.
func uniqueNames(sites []extractor.CallSite) []string {
	seen := make(map[string]struct{}, len(sites))
	var names []string
	for _, s := range sites {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		seen[s.Name] = struct{}{}
		names = append(names, s.Name)
	}
	return names
}
