package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"breakguard/internal/config"
	"breakguard/internal/knowledge"
	"breakguard/internal/logging"
	"breakguard/internal/storage"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	rootCmd = &cobra.Command{
		Use:           "breakguard",
		Short:         "Find library API usages that break on upgrade",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	configPath string
	verbosity  int
	logLevel   string
)

// exitError carries a process exit code other than 1.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintln(os.Stderr, ee.msg)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to breakguard.yaml or breakguard.toml (default: search the working directory)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log output (repeatable)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the persistent flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := logging.LevelFromVerbosity(logging.LevelFromString(cfg.Log.Level), verbosity)
	return logging.NewLogger(os.Stderr, level, cfg.Log.Format)
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	store, err := storage.Open(ctx, storage.Options{
		Backend: cfg.Index.Backend,
		Path:    cfg.Index.Path,
		URL:     cfg.Index.URL,
		Index:   cfg.Index.Name,
		Token:   cfg.Index.AuthToken,
		Timeout: cfg.Scan.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	return store, nil
}

func newEngine(ctx context.Context, cfg *config.Config, idx knowledge.VectorIndex) (*knowledge.Engine, error) {
	em, err := knowledge.NewEmbedder(ctx, knowledge.EmbedderOptions{
		Provider:  cfg.Embedder.Provider,
		APIKey:    cfg.Embedder.APIKey,
		Model:     cfg.Embedder.Model,
		Dimension: cfg.Embedder.Dimension,
		BaseURL:   cfg.Embedder.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return knowledge.NewEngine(em, idx), nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the breakguard version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "breakguard %s\n", version)
	},
}
