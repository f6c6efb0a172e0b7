package output

import (
	"fmt"
	"io"
	"math"
	"strings"

	"breakguard/internal/classifier"
	"breakguard/internal/report"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

const barWidth = 10

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	unknown lipgloss.Style
	code    lipgloss.Style
}

func newStyles(w io.Writer, noColor bool) styles {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}
	return styles{
		title:   r.NewStyle().Bold(true),
		dim:     r.NewStyle().Faint(true),
		good:    r.NewStyle().Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		bad:     r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		unknown: r.NewStyle().Foreground(lipgloss.Color("8")),
		code:    r.NewStyle().Foreground(lipgloss.Color("6")),
	}
}

func (s styles) tier(t classifier.Tier) lipgloss.Style {
	switch t {
	case classifier.Breaking:
		return s.bad
	case classifier.Minor:
		return s.warn
	case classifier.Compatible:
		return s.good
	default:
		return s.unknown
	}
}

// RenderText writes the human-readable report.
func RenderText(w io.Writer, r *report.Report, opts Options) error {
	st := newStyles(w, opts.NoColor)
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s %d → %d\n",
		st.title.Render("BreakGuard"), r.Library, r.FromVersion, r.ToVersion)
	fmt.Fprintf(&b, "%s\n\n", st.dim.Render(fmt.Sprintf(
		"Scanned %d files, %d unique APIs in %d call sites",
		r.FilesScanned, r.TotalUniqueAPIs, r.Occurrences())))

	fmt.Fprintf(&b, "%s %d   %s %d   %s %d   %s %d\n",
		st.bad.Render(string(classifier.Breaking)), r.Counts.Breaking,
		st.warn.Render(string(classifier.Minor)), r.Counts.Minor,
		st.good.Render(string(classifier.Compatible)), r.Counts.Compatible,
		st.unknown.Render(string(classifier.Unknown)), r.Counts.Unknown)

	for _, tier := range classifier.Tiers {
		apis := r.ByTier(tier)
		if len(apis) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", st.tier(tier).Render(fmt.Sprintf("%s (%d)", tier, len(apis))))
		for _, api := range apis {
			switch tier {
			case classifier.Breaking:
				writeBreaking(&b, st, r.Thresholds, api, opts)
			case classifier.Unknown:
				writeUnknown(&b, st, api)
			default:
				writeScored(&b, st, r.Thresholds, api)
			}
		}
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintf(&b, "\n%s\n", st.title.Render("Warnings"))
		for _, d := range r.Warnings {
			marker := st.warn.Render("!")
			if d.Severity == report.SeverityInfo {
				marker = st.dim.Render("i")
			}
			fmt.Fprintf(&b, "  %s [%s] %s: %s\n", marker, d.Code, d.Subject, d.Message)
		}
	}

	fmt.Fprintf(&b, "\n%s\n", verdict(st, r))

	_, err := io.WriteString(w, b.String())
	return err
}

func writeBreaking(b *strings.Builder, st styles, th classifier.Thresholds, api report.ClassifiedAPI, opts Options) {
	fmt.Fprintf(b, "  %s %s  %s\n", st.bad.Render("✗"), st.title.Render(api.Name), scoreBar(st, th, api.Score))
	if api.Match != nil {
		note := ""
		if api.Match.Deprecated {
			note = " " + st.warn.Render("(deprecated)")
		}
		fmt.Fprintf(b, "      closest match: %s%s\n", api.Match.Function, note)
	}
	if m := api.Migration; m != nil {
		if m.Replacement != "" {
			fmt.Fprintf(b, "      replace with:  %s\n", st.code.Render(m.Replacement))
		}
		if m.Example != nil {
			fmt.Fprintf(b, "      before:        %s\n", st.dim.Render(m.Example.Before))
			fmt.Fprintf(b, "      after:         %s\n", st.code.Render(m.Example.After))
		}
	}

	locs := api.Occurrences
	if opts.MaxLocations > 0 && len(locs) > opts.MaxLocations {
		locs = locs[:opts.MaxLocations]
	}
	for _, site := range locs {
		fmt.Fprintf(b, "      %s\n", st.dim.Render(site.Location()))
	}
	if rest := len(api.Occurrences) - len(locs); rest > 0 {
		fmt.Fprintf(b, "      %s\n", st.dim.Render(fmt.Sprintf("... and %d more", rest)))
	}
}

func writeScored(b *strings.Builder, st styles, th classifier.Thresholds, api report.ClassifiedAPI) {
	fmt.Fprintf(b, "  %-32s %s  %s\n", api.Name, scoreBar(st, th, api.Score),
		st.dim.Render(occurrences(len(api.Occurrences))))
	if m := api.Migration; m != nil && m.Replacement != "" {
		fmt.Fprintf(b, "      replace with: %s\n", st.code.Render(m.Replacement))
	}
}

func writeUnknown(b *strings.Builder, st styles, api report.ClassifiedAPI) {
	fmt.Fprintf(b, "  %-32s %s  %s\n", api.Name, st.unknown.Render("no candidate"),
		st.dim.Render(occurrences(len(api.Occurrences))))
}

func occurrences(n int) string {
	if n == 1 {
		return "1 occurrence"
	}
	return fmt.Sprintf("%d occurrences", n)
}

// scoreBar draws the similarity as a ten-cell bar colored by tier.
func scoreBar(st styles, th classifier.Thresholds, score *float64) string {
	if score == nil {
		return st.unknown.Render(strings.Repeat("░", barWidth) + " n/a ")
	}
	filled := int(math.Round(*score * barWidth))
	filled = max(0, min(barWidth, filled))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	style := st.bad
	switch {
	case *score >= th.High:
		style = st.good
	case *score >= th.Low:
		style = st.warn
	}
	return style.Render(fmt.Sprintf("%s %.2f", bar, *score))
}

func verdict(st styles, r *report.Report) string {
	switch {
	case r.Counts.Breaking > 0:
		return st.bad.Render(fmt.Sprintf("✗ %d breaking API(s) need changes before upgrading to %s %d",
			r.Counts.Breaking, r.Library, r.ToVersion))
	case r.Counts.Unknown > 0:
		msg := fmt.Sprintf("! %d API(s) could not be matched; compatibility with %s %d not established",
			r.Counts.Unknown, r.Library, r.ToVersion)
		if r.Counts.Minor > 0 {
			msg += fmt.Sprintf(" (%d more with minor changes)", r.Counts.Minor)
		}
		return st.warn.Render(msg)
	case r.Counts.Minor > 0:
		return st.warn.Render(fmt.Sprintf("! No breaking APIs; review %d API(s) with minor changes", r.Counts.Minor))
	case r.TotalUniqueAPIs == 0:
		return st.dim.Render(fmt.Sprintf("No %s API usage found", r.Library))
	default:
		return st.good.Render(fmt.Sprintf("✓ Ready to upgrade to %s %d", r.Library, r.ToVersion))
	}
}
