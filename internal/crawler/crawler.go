package crawler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"breakguard/internal/extractor"
	"breakguard/internal/report"

	"github.com/go-enry/go-enry/v2"
	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxFileSize skips generated bundles and similar large files.
const DefaultMaxFileSize = 1 << 20

var skipDirs = map[string]struct{}{
	"node_modules": {},
	".git":         {},
	"dist":         {},
	"build":        {},
	".next":        {},
	"coverage":     {},
	"__pycache__":  {},
}

type Options struct {
	// Extensions to scan, with leading dot. Empty means every extension
	// the extractor understands.
	Extensions []string
	// Exclude holds extra gitignore-style patterns.
	Exclude     []string
	MaxFileSize int64
	Workers     int
}

// Result is everything a crawl produced, merged in file order.
type Result struct {
	Files       int
	Degraded    int
	CallSites   []extractor.CallSite
	Diagnostics []report.Diagnostic
}

// Crawler scans a project for library call sites.
type Crawler struct {
	extractor *extractor.Extractor
	opts      Options
	exts      map[string]struct{}
	logger    *slog.Logger
}

// NewCrawler creates a new crawler instance.
func NewCrawler(ext *extractor.Extractor, opts Options, logger *slog.Logger) *Crawler {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = extractor.SourceExtensions
	}
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Crawler{extractor: ext, opts: opts, exts: exts, logger: logger}
}

// Discover lists scannable files under root as slash-separated paths
// relative to root, sorted lexicographically. Entries that cannot be
// visited are reported as diagnostics and skipped.
func (c *Crawler) Discover(root string) ([]string, []report.Diagnostic, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("project root %s is not a directory", root)
	}

	gi := c.loadIgnore(root)

	var files []string
	var diags report.Diagnostics
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			diags.Add(report.SeverityWarning, "crawl", report.CodeFileUnreadable, relPath(root, path), err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		name := d.Name()
		rel := relPath(root, path)

		if d.IsDir() {
			if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if enry.IsVendor(rel+"/") || (gi != nil && gi.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if _, ok := c.exts[strings.ToLower(filepath.Ext(name))]; !ok {
			return nil
		}
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		if enry.IsVendor(rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			diags.Add(report.SeverityWarning, "crawl", report.CodeFileUnreadable, rel, err.Error())
			return nil
		}
		if fi.Size() > c.opts.MaxFileSize {
			c.logger.Debug("skipping large file", "file", rel, "size", fi.Size())
			return nil
		}

		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Strings(files)
	return files, diags.Items(), nil
}

func (c *Crawler) loadIgnore(root string) *ignore.GitIgnore {
	path := filepath.Join(root, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		gi, err := ignore.CompileIgnoreFileAndLines(path, c.opts.Exclude...)
		if err == nil {
			return gi
		}
		c.logger.Warn("ignoring unreadable .gitignore", "error", err)
	}
	if len(c.opts.Exclude) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(c.opts.Exclude...)
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

type fileResult struct {
	outcome extractor.ParseOutcome
	skipped bool
	readErr error
}

// ScanProject discovers files under root and extracts their call sites.
// Files are processed concurrently; the merged result keeps file order.
func (c *Crawler) ScanProject(ctx context.Context, root string) (*Result, error) {
	files, diags, err := c.Discover(root)
	if err != nil {
		return nil, err
	}

	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for i, rel := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.extractFile(gctx, root, rel)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Diagnostics: diags}
	for i, r := range results {
		rel := files[i]
		switch {
		case r.readErr != nil:
			c.logger.Warn("file unreadable", "file", rel, "error", r.readErr)
			res.Diagnostics = append(res.Diagnostics, report.Diagnostic{
				Severity: report.SeverityWarning, Stage: "crawl", Code: report.CodeFileUnreadable,
				Subject: rel, Message: r.readErr.Error(),
			})
			continue
		case r.skipped:
			continue
		}

		res.Files++
		if r.outcome.Mode == extractor.Degraded {
			res.Degraded++
			c.logger.Info("used pattern scan", "file", rel, "reason", r.outcome.Reason)
			res.Diagnostics = append(res.Diagnostics, report.Diagnostic{
				Severity: report.SeverityInfo, Stage: "extract", Code: report.CodePatternFallback,
				Subject: rel, Message: r.outcome.Reason,
			})
		}
		res.CallSites = append(res.CallSites, r.outcome.CallSites...)
	}
	return res, nil
}

func (c *Crawler) extractFile(ctx context.Context, root, rel string) fileResult {
	src, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		var pe *fs.PathError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return fileResult{readErr: err}
	}
	// Qt Linguist translation files share the .ts extension.
	if strings.EqualFold(filepath.Ext(rel), ".ts") && enry.GetLanguage(rel, src) != "TypeScript" {
		c.logger.Debug("skipping non-TypeScript .ts file", "file", rel)
		return fileResult{skipped: true}
	}
	return fileResult{outcome: c.extractor.Extract(ctx, rel, src)}
}
