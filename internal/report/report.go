package report

import (
	"sort"

	"breakguard/internal/catalog"
	"breakguard/internal/classifier"
	"breakguard/internal/extractor"
)

// ClassifiedAPI groups every occurrence of one API name with its verdict.
type ClassifiedAPI struct {
	Name        string                `json:"name" yaml:"name"`
	Tier        classifier.Tier       `json:"tier" yaml:"tier"`
	Score       *float64              `json:"score,omitempty" yaml:"score,omitempty"`
	Match       *catalog.Entry        `json:"match,omitempty" yaml:"match,omitempty"`
	Migration   *classifier.Migration `json:"migration,omitempty" yaml:"migration,omitempty"`
	Occurrences []extractor.CallSite  `json:"occurrences" yaml:"occurrences"`
}

// Counts holds the number of unique APIs per tier.
type Counts struct {
	Breaking   int `json:"breaking" yaml:"breaking"`
	Minor      int `json:"minor" yaml:"minor"`
	Compatible int `json:"compatible" yaml:"compatible"`
	Unknown    int `json:"unknown" yaml:"unknown"`
}

func (c *Counts) add(t classifier.Tier) {
	switch t {
	case classifier.Breaking:
		c.Breaking++
	case classifier.Minor:
		c.Minor++
	case classifier.Compatible:
		c.Compatible++
	default:
		c.Unknown++
	}
}

// Of returns the count for one tier.
func (c Counts) Of(t classifier.Tier) int {
	switch t {
	case classifier.Breaking:
		return c.Breaking
	case classifier.Minor:
		return c.Minor
	case classifier.Compatible:
		return c.Compatible
	default:
		return c.Unknown
	}
}

// Meta describes the run a report belongs to.
type Meta struct {
	Project     string
	Library     string
	FromVersion int
	ToVersion   int
	Thresholds  classifier.Thresholds
	Files       int
	Degraded    int
}

// Report is the single artifact of a scan. It is assembled once by Build
// and not modified afterwards.
type Report struct {
	Project         string                `json:"project" yaml:"project"`
	Library         string                `json:"library" yaml:"library"`
	FromVersion     int                   `json:"from_version" yaml:"from_version"`
	ToVersion       int                   `json:"to_version" yaml:"to_version"`
	Thresholds      classifier.Thresholds `json:"thresholds" yaml:"thresholds"`
	FilesScanned    int                   `json:"files_scanned" yaml:"files_scanned"`
	DegradedFiles   int                   `json:"degraded_files" yaml:"degraded_files"`
	TotalUniqueAPIs int                   `json:"total_unique_apis" yaml:"total_unique_apis"`
	Counts          Counts                `json:"counts" yaml:"counts"`
	APIs            []ClassifiedAPI       `json:"apis" yaml:"apis"`
	Warnings        []Diagnostic          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Build groups call sites by name, attaches each name's verdict and orders
// the groups by tier, then by first occurrence in sites. A name without a
// verdict is reported as unknown.
func Build(meta Meta, sites []extractor.CallSite, verdicts []classifier.Verdict, diags []Diagnostic) Report {
	byName := make(map[string]classifier.Verdict, len(verdicts))
	for _, v := range verdicts {
		byName[v.Name] = v
	}

	groups := make(map[string]*ClassifiedAPI)
	var order []string
	for _, site := range sites {
		g, ok := groups[site.Name]
		if !ok {
			v, found := byName[site.Name]
			if !found {
				v = classifier.Verdict{Name: site.Name, Tier: classifier.Unknown}
			}
			g = &ClassifiedAPI{
				Name:      site.Name,
				Tier:      v.Tier,
				Score:     v.Score,
				Match:     v.Match,
				Migration: v.Migration,
			}
			groups[site.Name] = g
			order = append(order, site.Name)
		}
		g.Occurrences = append(g.Occurrences, site)
	}

	apis := make([]ClassifiedAPI, 0, len(order))
	var counts Counts
	for _, name := range order {
		g := groups[name]
		counts.add(g.Tier)
		apis = append(apis, *g)
	}
	// Stable sort keeps first-seen order within a tier.
	sort.SliceStable(apis, func(i, j int) bool {
		return apis[i].Tier.Rank() < apis[j].Tier.Rank()
	})

	return Report{
		Project:         meta.Project,
		Library:         meta.Library,
		FromVersion:     meta.FromVersion,
		ToVersion:       meta.ToVersion,
		Thresholds:      meta.Thresholds,
		FilesScanned:    meta.Files,
		DegradedFiles:   meta.Degraded,
		TotalUniqueAPIs: len(apis),
		Counts:          counts,
		APIs:            apis,
		Warnings:        SortDiagnostics(diags),
	}
}

// ByTier returns the APIs of one tier in report order.
func (r Report) ByTier(t classifier.Tier) []ClassifiedAPI {
	var out []ClassifiedAPI
	for _, api := range r.APIs {
		if api.Tier == t {
			out = append(out, api)
		}
	}
	return out
}

// AtLeast reports whether any API is in tier t or a more severe one. For
// gating, Unknown sits between Minor and Compatible: asking for Unknown also
// matches Breaking and Minor, while an Unknown API never satisfies Breaking
// or Minor.
func (r Report) AtLeast(t classifier.Tier) bool {
	for _, api := range r.APIs {
		if gateRank(api.Tier) <= gateRank(t) {
			return true
		}
	}
	return false
}

func gateRank(t classifier.Tier) int {
	switch t {
	case classifier.Breaking:
		return 0
	case classifier.Minor:
		return 1
	case classifier.Unknown:
		return 2
	default:
		return 3
	}
}

// Occurrences is the total number of call sites in the report.
func (r Report) Occurrences() int {
	n := 0
	for _, api := range r.APIs {
		n += len(api.Occurrences)
	}
	return n
}
