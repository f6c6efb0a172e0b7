package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"breakguard/internal/catalog"
	"breakguard/internal/knowledge"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrScoreOutOfRange is returned when the index reports a score outside [0, 1].
	ErrScoreOutOfRange = errors.New("similarity score out of range")
	// ErrUnknownEntry is returned when a hit id is not in the loaded catalog.
	ErrUnknownEntry = errors.New("index entry not found in catalog")
	// ErrUnreachable marks names that were never queried because the
	// vector collaborator had already failed too many times in a row.
	ErrUnreachable = errors.New("vector collaborator unreachable")
)

// MatchResult is the best catalog candidate for one API name. Entry and
// Score are both nil when the index returned no candidate or the query
// failed; Err tells those apart.
type MatchResult struct {
	Name  string
	Entry *catalog.Entry
	Score *float64
	Err   error
}

// Searcher embeds a query text and returns nearest candidates.
type Searcher interface {
	SearchByText(ctx context.Context, query string, filter knowledge.Filter, topK int) ([]knowledge.Hit, error)
}

// Options scopes queries to one library version and bounds how they run.
type Options struct {
	Library string
	Version int

	// Workers bounds concurrent queries.
	Workers int
	// QueryTimeout applies to each name separately.
	QueryTimeout time.Duration
	// MaxConsecutiveFailures opens the circuit. Zero disables it.
	MaxConsecutiveFailures int
}

// Resolver looks up the closest target-version catalog entry for API names.
type Resolver struct {
	searcher Searcher
	catalog  *catalog.Catalog
	opts     Options
	logger   *slog.Logger
}

func New(searcher Searcher, cat *catalog.Catalog, opts Options, logger *slog.Logger) *Resolver {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{searcher: searcher, catalog: cat, opts: opts, logger: logger}
}

// Resolve queries a single name.
func (r *Resolver) Resolve(ctx context.Context, name string) MatchResult {
	res, _ := r.resolve(ctx, name)
	return res
}

// resolve also reports whether the searcher itself failed, which is what
// the circuit counts.
func (r *Resolver) resolve(ctx context.Context, name string) (MatchResult, bool) {
	qctx := ctx
	if r.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, r.opts.QueryTimeout)
		defer cancel()
	}

	filter := knowledge.Filter{Library: r.opts.Library, Version: r.opts.Version}
	hits, err := r.searcher.SearchByText(qctx, knowledge.CallSiteText(name), filter, 1)
	if err != nil {
		return MatchResult{Name: name, Err: err}, true
	}
	if len(hits) == 0 {
		return MatchResult{Name: name}, false
	}

	hit := hits[0]
	if math.IsNaN(hit.Score) || hit.Score < 0 || hit.Score > 1 {
		return MatchResult{Name: name, Err: fmt.Errorf("%w: %v", ErrScoreOutOfRange, hit.Score)}, false
	}
	entry, ok := r.catalog.ByID(hit.ID)
	if !ok {
		return MatchResult{Name: name, Err: fmt.Errorf("%w: %s", ErrUnknownEntry, hit.ID)}, false
	}
	score := hit.Score
	return MatchResult{Name: name, Entry: &entry, Score: &score}, false
}

// ResolveAll resolves names concurrently. The result slice is index-aligned
// with names. Individual failures stay in their MatchResult.
func (r *Resolver) ResolveAll(ctx context.Context, names []string) []MatchResult {
	results := make([]MatchResult, len(names))
	cb := &circuit{limit: r.opts.MaxConsecutiveFailures}

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = MatchResult{Name: name, Err: err}
				return nil
			}
			if !cb.allow() {
				results[i] = MatchResult{Name: name, Err: ErrUnreachable}
				return nil
			}
			res, searchFailed := r.resolve(ctx, name)
			if cb.record(searchFailed) {
				r.logger.Warn("vector collaborator unreachable, skipping remaining queries",
					"failures", r.opts.MaxConsecutiveFailures, "last_error", res.Err)
			}
			if res.Err != nil {
				r.logger.Debug("query failed", "api", name, "error", res.Err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// circuit counts consecutive searcher failures across workers.
type circuit struct {
	mu          sync.Mutex
	limit       int
	consecutive int
	open        bool
}

func (c *circuit) allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.open
}

// record returns true on the call that opens the circuit.
func (c *circuit) record(failed bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !failed {
		c.consecutive = 0
		return false
	}
	c.consecutive++
	if c.limit > 0 && !c.open && c.consecutive >= c.limit {
		c.open = true
		return true
	}
	return false
}
