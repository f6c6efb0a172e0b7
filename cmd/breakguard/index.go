package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"breakguard/internal/catalog"
	"breakguard/internal/index"
	"breakguard/internal/ui"

	"github.com/spf13/cobra"
)

var indexFlags struct {
	catalogDir string
	library    string
	versions   []int
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Embed the API catalog into the vector index",
	Long: `Embed every catalog entry and store the vectors in the configured index.
Scans compare call sites against these vectors, so run this once per
catalog change. Rebuilding a version replaces its previous vectors.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.StringVar(&indexFlags.catalogDir, "catalog", "", "Directory of catalog JSON files (default: built-in catalogs)")
	f.StringVarP(&indexFlags.library, "library", "l", "", "Only index this library")
	f.IntSliceVar(&indexFlags.versions, "version", nil, "Only index these versions (repeatable)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("catalog") {
		cfg.Catalog.Dir = indexFlags.catalogDir
	}
	if strings.EqualFold(cfg.Index.Backend, "memory") {
		return fmt.Errorf("the memory index backend is rebuilt on every scan; configure sqlite or http to index ahead of time")
	}
	logger := newLogger(cfg)

	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		return err
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
	indexer := index.NewIndexer(engine, store, logger)

	var stats []index.Stats
	work := func(ctx context.Context, status func(string)) error {
		status(fmt.Sprintf("embedding %d catalog entries", cat.Len()))
		var err error
		stats, err = indexer.IndexCatalog(ctx, cat, strings.ToLower(indexFlags.library), indexFlags.versions...)
		return err
	}

	if ui.IsTerminal(os.Stderr) && verbosity == 0 {
		err = ui.RunSpinner(ctx, os.Stderr, "indexing catalog", work)
	} else {
		err = work(ctx, func(string) {})
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range stats {
		fmt.Fprintf(out, "%s %d: %d entries in %d batches", s.Library, s.Version, s.Entries, s.Batches)
		if s.Removed > 0 {
			fmt.Fprintf(out, " (replaced %d)", s.Removed)
		}
		fmt.Fprintln(out)
	}
	return nil
}
