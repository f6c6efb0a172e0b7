package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"breakguard/internal/report"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts text, json or yaml (yml), case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use text, json or yaml)", s)
	}
}

type Options struct {
	// NoColor disables styling even on a color terminal.
	NoColor bool
	// MaxLocations caps the locations listed per breaking API. Zero lists all.
	MaxLocations int
}

// Render writes r to w in the given format. It only reads the report.
func Render(w io.Writer, r *report.Report, f Format, opts Options) error {
	switch f {
	case FormatText, "":
		return RenderText(w, r, opts)
	case FormatJSON:
		return RenderJSON(w, r)
	case FormatYAML:
		return RenderYAML(w, r)
	default:
		return fmt.Errorf("unsupported output format %q", f)
	}
}

func RenderJSON(w io.Writer, r *report.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func RenderYAML(w io.Writer, r *report.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// WriteJSONFile saves the JSON report at path, gzip-compressed when the
// path ends in .gz.
func WriteJSONFile(path string, r *report.Report) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return RenderJSON(f, r)
	}

	zw := gzip.NewWriter(f)
	zw.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := RenderJSON(zw, r); err != nil {
		_ = zw.Close()
		return err
	}
	return zw.Close()
}
