package advisory

import (
	"strings"
	"testing"

	"github.com/fyrsmithlabs/insightd/internal/indicators"
	"github.com/fyrsmithlabs/insightd/internal/insightstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(patternType string, strength, occurrences int) insightstore.Record {
	return insightstore.Record{
		UserID:      "u1",
		PatternType: patternType,
		Strength:    strength,
		Occurrences: occurrences,
		Evidence:    "feeling undeserving, expecting to ruin things",
	}
}

func TestIsSignificant(t *testing.T) {
	tests := []struct {
		strength, occurrences int
		want                  bool
	}{
		{5, 3, true},
		{10, 10, true},
		{4, 3, false},
		{10, 2, false},
		{10, 1, false},
		{5, 2, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsSignificant(tt.strength, tt.occurrences), "strength=%d occurrences=%d", tt.strength, tt.occurrences)
	}
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, StateUnseen, StateOf(0, 0))
	assert.Equal(t, StateRecorded, StateOf(9, 1))
	assert.Equal(t, StateRecorded, StateOf(4, 7))
	assert.Equal(t, StateSignificant, StateOf(5, 3))
}

func TestBuilder_Build(t *testing.T) {
	b := NewBuilder(nil)
	catalog := indicators.DefaultCatalog()
	describe := func(name string) string {
		pt, ok := catalog.PatternType(name)
		require.True(t, ok)
		return pt.Description
	}

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", b.Build(nil))
	})

	t.Run("strong but not recurring is excluded", func(t *testing.T) {
		assert.Equal(t, "", b.Build([]insightstore.Record{record(indicators.SelfSabotage, 10, 2)}))
	})

	t.Run("recurring but weak is excluded", func(t *testing.T) {
		assert.Equal(t, "", b.Build([]insightstore.Record{record(indicators.SelfSabotage, 4, 12)}))
	})

	t.Run("renders qualifying description", func(t *testing.T) {
		out := b.Build([]insightstore.Record{record(indicators.SelfSabotage, 9, 3)})
		assert.Contains(t, out, describe(indicators.SelfSabotage))
		assert.Contains(t, out, "with curiosity, not interpretation")
	})

	t.Run("caps to two strongest", func(t *testing.T) {
		out := b.Build([]insightstore.Record{
			record(indicators.Avoidance, 6, 9),
			record(indicators.Perfectionism, 8, 3),
			record(indicators.Catastrophizing, 6, 4),
			record(indicators.PeoplePleasing, 10, 1),
		})
		assert.Contains(t, out, describe(indicators.Perfectionism))
		assert.Contains(t, out, describe(indicators.Avoidance))
		assert.NotContains(t, out, describe(indicators.Catastrophizing))
		assert.NotContains(t, out, describe(indicators.PeoplePleasing))
		assert.Less(t, strings.Index(out, describe(indicators.Perfectionism)), strings.Index(out, describe(indicators.Avoidance)))
	})

	t.Run("unknown pattern type is skipped", func(t *testing.T) {
		out := b.Build([]insightstore.Record{record("retired_type", 10, 10)})
		assert.Equal(t, "", out)
	})

	t.Run("never leaks labels or evidence", func(t *testing.T) {
		var records []insightstore.Record
		for _, name := range catalog.PatternTypes() {
			records = append(records, record(name.Name, 10, 10))
		}
		out := b.Build(records)
		require.NotEmpty(t, out)
		for _, label := range catalog.Labels() {
			assert.NotContains(t, strings.ToLower(out), strings.ToLower(label))
		}
		assert.NotContains(t, out, "feeling undeserving")
	})
}

func TestBuilder_CustomCatalog(t *testing.T) {
	catalog, err := indicators.New(&indicators.Config{
		Version: "test",
		PatternTypes: []indicators.PatternType{
			{Name: "rumination", Kind: indicators.KindCognitive, Description: "Returning to the same worry again and again"},
		},
		Rules: []indicators.Rule{
			{ID: "rum-1", Pattern: `keep thinking about`, PatternType: "rumination", Label: "looping thoughts", Weight: 2},
		},
	})
	require.NoError(t, err)

	out := NewBuilder(catalog).Build([]insightstore.Record{
		record("rumination", 6, 3),
		record(indicators.SelfSabotage, 9, 5),
	})
	assert.Contains(t, out, "Returning to the same worry again and again")
	assert.NotContains(t, out, "undermine")
}
