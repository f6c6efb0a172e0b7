package report

import (
	"sort"
	"strings"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic codes.
const (
	CodeFileUnreadable          = "file-unreadable"
	CodePatternFallback         = "pattern-fallback"
	CodeQueryFailed             = "query-failed"
	CodeCollaboratorUnreachable = "collaborator-unreachable"
)

// Diagnostic is a non-fatal problem encountered during a scan.
type Diagnostic struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Stage    string   `json:"stage" yaml:"stage"`
	Code     string   `json:"code" yaml:"code"`
	Subject  string   `json:"subject" yaml:"subject"`
	Message  string   `json:"message" yaml:"message"`
}

// Diagnostics accumulates diagnostics. Empty fields are dropped.
type Diagnostics struct {
	items []Diagnostic
}

func (d *Diagnostics) Add(severity Severity, stage, code, subject, message string) {
	if d == nil {
		return
	}
	item := Diagnostic{
		Severity: severity,
		Stage:    strings.TrimSpace(stage),
		Code:     strings.TrimSpace(code),
		Subject:  strings.TrimSpace(subject),
		Message:  strings.TrimSpace(message),
	}
	if item.Stage == "" || item.Code == "" || item.Message == "" {
		return
	}
	d.items = append(d.items, item)
}

func (d *Diagnostics) Items() []Diagnostic {
	if d == nil {
		return nil
	}
	return d.items
}

func severityPriority(s Severity) int {
	switch s {
	case SeverityWarning:
		return 0
	case SeverityInfo:
		return 1
	default:
		return 2
	}
}

// SortDiagnostics orders warnings before notes, then by stage, code and
// subject, returning a new slice.
func SortDiagnostics(in []Diagnostic) []Diagnostic {
	if len(in) == 0 {
		return nil
	}
	out := append([]Diagnostic(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := severityPriority(a.Severity), severityPriority(b.Severity); pa != pb {
			return pa < pb
		}
		if a.Stage != b.Stage {
			return a.Stage < b.Stage
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Subject < b.Subject
	})
	return out
}
