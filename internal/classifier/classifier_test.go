package classifier

import (
	"errors"
	"testing"

	"breakguard/internal/catalog"
	"breakguard/internal/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func match(score float64, e catalog.Entry) resolver.MatchResult {
	return resolver.MatchResult{Name: "api", Entry: &e, Score: &score}
}

func TestThresholds_TierFor(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		score float64
		want  Tier
	}{
		{1.0, Compatible},
		{0.95, Compatible},
		{0.9499, Minor},
		{0.90, Minor},
		{0.85, Minor},
		{0.8499, Breaking},
		{0.70, Breaking},
		{0.0, Breaking},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.TierFor(tc.score), "score %v", tc.score)
	}
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.ErrorIs(t, Thresholds{Low: 0.9, High: 0.9}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: 0.95, High: 0.85}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: -0.1, High: 0.5}.Validate(), ErrInvalidThresholds)
	assert.ErrorIs(t, Thresholds{Low: 0.5, High: 1.5}.Validate(), ErrInvalidThresholds)
}

func TestClassify(t *testing.T) {
	th := DefaultThresholds()
	plain := catalog.Entry{Library: "react", Version: 18, Function: "useState"}
	legacy := catalog.Entry{
		Library: "react", Version: 18, Function: "ReactDOM.render",
		Deprecated: true, Replacement: "createRoot",
		Migration: &catalog.MigrationExample{Before: "ReactDOM.render(a, b)", After: "createRoot(b).render(a)"},
	}

	t.Run("Absent match is unknown without score", func(t *testing.T) {
		v := Classify(resolver.MatchResult{Name: "useThing"}, th)
		assert.Equal(t, Unknown, v.Tier)
		assert.Nil(t, v.Score)
		assert.Nil(t, v.Match)
		assert.Nil(t, v.Migration)
	})

	t.Run("Failed query is unknown and keeps the error", func(t *testing.T) {
		v := Classify(resolver.MatchResult{Name: "x", Err: errors.New("down")}, th)
		assert.Equal(t, Unknown, v.Tier)
		assert.Error(t, v.Err)
	})

	t.Run("Breaking with migration metadata", func(t *testing.T) {
		v := Classify(match(0.70, legacy), th)
		assert.Equal(t, Breaking, v.Tier)
		require.NotNil(t, v.Migration)
		assert.True(t, v.Migration.Deprecated)
		assert.Equal(t, "createRoot", v.Migration.Replacement)
		require.NotNil(t, v.Migration.Example)
		assert.Equal(t, "createRoot(b).render(a)", v.Migration.Example.After)
	})

	t.Run("Minor with migration metadata", func(t *testing.T) {
		v := Classify(match(0.85, legacy), th)
		assert.Equal(t, Minor, v.Tier)
		assert.NotNil(t, v.Migration)
	})

	t.Run("Compatible never carries migration", func(t *testing.T) {
		v := Classify(match(0.95, legacy), th)
		assert.Equal(t, Compatible, v.Tier)
		assert.Nil(t, v.Migration)
	})

	t.Run("Breaking without deprecation has no migration", func(t *testing.T) {
		v := Classify(match(0.2, plain), th)
		assert.Equal(t, Breaking, v.Tier)
		assert.Nil(t, v.Migration)
	})

	t.Run("Custom thresholds", func(t *testing.T) {
		v := Classify(match(0.6, plain), Thresholds{Low: 0.5, High: 0.7})
		assert.Equal(t, Minor, v.Tier)
	})
}

func TestTier_Rank(t *testing.T) {
	assert.Less(t, Breaking.Rank(), Minor.Rank())
	assert.Less(t, Minor.Rank(), Compatible.Rank())
	assert.Less(t, Compatible.Rank(), Unknown.Rank())
}
