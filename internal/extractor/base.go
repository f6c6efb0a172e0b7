package extractor

import (
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// CallSite is one textual occurrence of a library API usage.
type CallSite struct {
	Name   string `json:"name" yaml:"name"`
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column" yaml:"column"`
}

// Location renders the site as file:line.
func (c CallSite) Location() string {
	return fmt.Sprintf("%s:%d", c.File, c.Line)
}

// Mode tells how a file's call sites were obtained.
type Mode int

const (
	// Structured means the syntax tree was walked.
	Structured Mode = iota
	// Degraded means the line-oriented pattern scan was used instead.
	Degraded
)

func (m Mode) String() string {
	switch m {
	case Structured:
		return "structured"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ParseOutcome is the result of extracting one file.
type ParseOutcome struct {
	Path      string
	Mode      Mode
	Reason    string // set when Mode is Degraded
	CallSites []CallSite
}

// grammarFor picks the tree-sitter grammar for a file by extension.
// A nil result sends the file straight to the pattern scan.
func grammarFor(path string) *sitter.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return javascript.GetLanguage()
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage()
	case ".tsx":
		return tsx.GetLanguage()
	default:
		return nil
	}
}

// SourceExtensions lists the file extensions the extractor understands.
var SourceExtensions = []string{".js", ".jsx", ".mjs", ".cjs", ".ts", ".mts", ".cts", ".tsx"}
