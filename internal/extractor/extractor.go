package extractor

import (
	"context"
	"fmt"
	"os"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
)

// Extractor pulls library API call sites out of JavaScript and TypeScript
// sources for one library profile.
type Extractor struct {
	profile *Profile
}

// NewExtractor creates an extractor for the given library identifier.
func NewExtractor(library string) (*Extractor, error) {
	p, err := LookupProfile(library)
	if err != nil {
		return nil, err
	}
	return &Extractor{profile: p}, nil
}

// Profile returns the library profile in use.
func (e *Extractor) Profile() *Profile {
	return e.profile
}

// ExtractFromFile reads and extracts a single file. Only read failures are
// returned as errors; parse problems degrade to the pattern scan.
func (e *Extractor) ExtractFromFile(ctx context.Context, path, display string) (ParseOutcome, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return ParseOutcome{}, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return e.Extract(ctx, display, src), nil
}

// Extract produces the call sites of src, reported under the name file.
// The same input always yields the same sequence.
func (e *Extractor) Extract(ctx context.Context, file string, src []byte) ParseOutcome {
	out := ParseOutcome{Path: file, Mode: Structured}

	lang := grammarFor(file)
	if lang == nil {
		out.Mode = Degraded
		out.Reason = "no grammar for file extension"
		out.CallSites = sortSites(scanLines(e.profile, file, src))
		return out
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil || tree == nil {
		out.Mode = Degraded
		out.Reason = fmt.Sprintf("parse failed: %v", err)
		out.CallSites = sortSites(scanLines(e.profile, file, src))
		return out
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		out.Mode = Degraded
		out.Reason = "syntax errors in source"
		out.CallSites = sortSites(scanLines(e.profile, file, src))
		return out
	}

	w := &treeWalker{src: src, file: file, binds: newBindings(e.profile)}
	w.collectBindings(root)
	w.collectUsages(root)
	out.CallSites = sortSites(w.sites)
	return out
}

func sortSites(sites []CallSite) []CallSite {
	sort.SliceStable(sites, func(i, j int) bool {
		if sites[i].Line != sites[j].Line {
			return sites[i].Line < sites[j].Line
		}
		if sites[i].Column != sites[j].Column {
			return sites[i].Column < sites[j].Column
		}
		return sites[i].Name < sites[j].Name
	})
	return sites
}
