package classifier

import (
	"errors"
	"fmt"

	"breakguard/internal/catalog"
	"breakguard/internal/resolver"
)

// Tier is the compatibility verdict for one API.
type Tier string

const (
	Breaking   Tier = "BREAKING"
	Minor      Tier = "MINOR"
	Compatible Tier = "COMPATIBLE"
	Unknown    Tier = "UNKNOWN"
)

// Tiers lists tiers in report order.
var Tiers = []Tier{Breaking, Minor, Compatible, Unknown}

// Rank is the position of t in report order.
func (t Tier) Rank() int {
	for i, tier := range Tiers {
		if tier == t {
			return i
		}
	}
	return len(Tiers)
}

// ErrInvalidThresholds is returned by Validate.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds split scores into tiers: [High, 1] is compatible, [Low, High)
// minor and [0, Low) breaking.
type Thresholds struct {
	Low  float64 `json:"low" yaml:"low" toml:"low"`
	High float64 `json:"high" yaml:"high" toml:"high"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Low: 0.85, High: 0.95}
}

// Validate requires both bounds in [0, 1] with Low strictly below High.
func (t Thresholds) Validate() error {
	if t.Low < 0 || t.Low > 1 || t.High < 0 || t.High > 1 {
		return fmt.Errorf("%w: low=%v high=%v must lie in [0, 1]", ErrInvalidThresholds, t.Low, t.High)
	}
	if t.Low >= t.High {
		return fmt.Errorf("%w: low=%v must be below high=%v", ErrInvalidThresholds, t.Low, t.High)
	}
	return nil
}

// TierFor maps a score to its tier. Boundaries are inclusive on the lower
// edge of each band.
func (t Thresholds) TierFor(score float64) Tier {
	switch {
	case score >= t.High:
		return Compatible
	case score >= t.Low:
		return Minor
	default:
		return Breaking
	}
}

// Migration is attached to breaking and minor verdicts whose match is
// deprecated or names a replacement.
type Migration struct {
	Deprecated  bool                      `json:"deprecated" yaml:"deprecated"`
	Replacement string                    `json:"replacement,omitempty" yaml:"replacement,omitempty"`
	Example     *catalog.MigrationExample `json:"example,omitempty" yaml:"example,omitempty"`
}

// Verdict is the classification of one unique API name.
type Verdict struct {
	Name      string
	Tier      Tier
	Score     *float64
	Match     *catalog.Entry
	Migration *Migration
	Err       error
}

// Classify turns a match into a verdict. It is a pure function of its inputs.
func Classify(m resolver.MatchResult, t Thresholds) Verdict {
	v := Verdict{Name: m.Name, Err: m.Err}
	if m.Entry == nil || m.Score == nil {
		v.Tier = Unknown
		return v
	}

	v.Score = m.Score
	v.Match = m.Entry
	v.Tier = t.TierFor(*m.Score)

	if v.Tier == Breaking || v.Tier == Minor {
		v.Migration = migrationFor(m.Entry)
	}
	return v
}

func migrationFor(e *catalog.Entry) *Migration {
	if !e.Deprecated && e.Replacement == "" {
		return nil
	}
	return &Migration{
		Deprecated:  e.Deprecated,
		Replacement: e.Replacement,
		Example:     e.Migration,
	}
}
