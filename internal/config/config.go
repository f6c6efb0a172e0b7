package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"breakguard/internal/classifier"
	"breakguard/internal/extractor"
	"breakguard/internal/knowledge"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultFileNames are probed in order when no config path is given.
var DefaultFileNames = []string{"breakguard.yaml", "breakguard.yml", "breakguard.toml"}

type Config struct {
	Library    string                `yaml:"library" toml:"library"`
	From       int                   `yaml:"from" toml:"from"`
	To         int                   `yaml:"to" toml:"to"`
	Thresholds classifier.Thresholds `yaml:"thresholds" toml:"thresholds"`
	Catalog    CatalogConfig         `yaml:"catalog" toml:"catalog"`
	Embedder   EmbedderConfig        `yaml:"embedder" toml:"embedder"`
	Index      IndexConfig           `yaml:"index" toml:"index"`
	Scan       ScanConfig            `yaml:"scan" toml:"scan"`
	Log        LogConfig             `yaml:"log" toml:"log"`
}

type CatalogConfig struct {
	// Dir holds catalog JSON files. Empty means the built-in catalogs.
	Dir string `yaml:"dir" toml:"dir"`
}

type EmbedderConfig struct {
	Provider  string `yaml:"provider" toml:"provider"`
	Model     string `yaml:"model" toml:"model"`
	APIKey    string `yaml:"api_key" toml:"api_key"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	Dimension int    `yaml:"dimension" toml:"dimension"`
}

type IndexConfig struct {
	Backend   string `yaml:"backend" toml:"backend"` // sqlite, http or memory
	Path      string `yaml:"path" toml:"path"`
	URL       string `yaml:"url" toml:"url"`
	Name      string `yaml:"name" toml:"name"`
	AuthToken string `yaml:"auth_token" toml:"auth_token"`
}

type ScanConfig struct {
	Workers                int           `yaml:"workers" toml:"workers"`
	QueryWorkers           int           `yaml:"query_workers" toml:"query_workers"`
	QueryTimeout           time.Duration `yaml:"query_timeout" toml:"query_timeout"`
	MaxFileSize            int64         `yaml:"max_file_size" toml:"max_file_size"`
	Extensions             []string      `yaml:"extensions" toml:"extensions"`
	Exclude                []string      `yaml:"exclude" toml:"exclude"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" toml:"max_consecutive_failures"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

func Default() *Config {
	return &Config{
		Library:    "react",
		From:       17,
		To:         18,
		Thresholds: classifier.DefaultThresholds(),
		Embedder: EmbedderConfig{
			Provider:  "ollama",
			Dimension: knowledge.DefaultDimension,
		},
		Index: IndexConfig{
			Backend: "sqlite",
			Path:    DefaultIndexPath(),
			Name:    "api_versions",
		},
		Scan: ScanConfig{
			Workers:                4,
			QueryWorkers:           4,
			QueryTimeout:           30 * time.Second,
			MaxFileSize:            1 << 20,
			Extensions:             append([]string(nil), extractor.SourceExtensions...),
			MaxConsecutiveFailures: 3,
		},
		Log: LogConfig{Level: "warn", Format: "text"},
	}
}

// DefaultIndexPath places the SQLite index in the user cache directory.
func DefaultIndexPath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return filepath.Join(".breakguard", "index.db")
	}
	return filepath.Join(dir, "breakguard", "index.db")
}

// FindConfigFile returns the first default config file in dir, or "".
func FindConfigFile(dir string) string {
	for _, name := range DefaultFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// LoadConfig reads .env, then the config file, then environment overrides.
// With an empty path the working directory is searched and a missing file
// yields defaults. An explicit path must exist.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = FindConfigFile(".")
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: config file: %w", ErrInvalidConfig, err)
	}

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BREAKGUARD_EMBEDDER_PROVIDER"); v != "" {
		cfg.Embedder.Provider = v
	}
	if v := os.Getenv("BREAKGUARD_API_KEY"); v != "" {
		cfg.Embedder.APIKey = v
	}
	if v := os.Getenv("BREAKGUARD_EMBEDDER_URL"); v != "" {
		cfg.Embedder.BaseURL = v
	}
	// ENDEE_URL selects the hosted vector service unless BREAKGUARD_INDEX_URL is set.
	if v := os.Getenv("ENDEE_URL"); v != "" {
		cfg.Index.URL = v
		cfg.Index.Backend = "http"
	}
	if v := os.Getenv("BREAKGUARD_INDEX_URL"); v != "" {
		cfg.Index.URL = v
		cfg.Index.Backend = "http"
	}
	if v := os.Getenv("ENDEE_AUTH_TOKEN"); v != "" {
		cfg.Index.AuthToken = v
	}
	if v := os.Getenv("BREAKGUARD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate rejects configurations a scan cannot start with.
func (c *Config) Validate() error {
	var problems []string

	if _, err := extractor.LookupProfile(c.Library); err != nil {
		problems = append(problems, err.Error())
	}
	if c.From <= 0 {
		problems = append(problems, "from version must be positive, got "+strconv.Itoa(c.From))
	}
	if c.To <= 0 {
		problems = append(problems, "to version must be positive, got "+strconv.Itoa(c.To))
	}
	if err := c.Thresholds.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if c.Embedder.Dimension < 0 {
		problems = append(problems, "embedder dimension must not be negative")
	}

	switch strings.ToLower(c.Index.Backend) {
	case "", "sqlite":
		if strings.TrimSpace(c.Index.Path) == "" {
			problems = append(problems, "index.path is required for the sqlite backend")
		}
	case "http":
		if strings.TrimSpace(c.Index.URL) == "" {
			problems = append(problems, "index.url is required for the http backend")
		}
	case "memory":
	default:
		problems = append(problems, "unsupported index backend "+strconv.Quote(c.Index.Backend))
	}

	if c.Scan.Workers < 0 || c.Scan.QueryWorkers < 0 {
		problems = append(problems, "worker counts must not be negative")
	}
	if c.Scan.MaxFileSize < 0 {
		problems = append(problems, "scan.max_file_size must not be negative")
	}
	if c.Scan.MaxConsecutiveFailures < 0 {
		problems = append(problems, "scan.max_consecutive_failures must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, "unsupported log format "+strconv.Quote(c.Log.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
