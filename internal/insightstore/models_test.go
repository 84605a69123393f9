package insightstore

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservation_Validate(t *testing.T) {
	t.Run("fills missing time", func(t *testing.T) {
		obs := Observation{UserID: "u1", PatternType: "avoidance", Strength: 5}
		require.NoError(t, obs.Validate())
		assert.False(t, obs.ObservedAt.IsZero())
		assert.Equal(t, time.UTC, obs.ObservedAt.Location())
	})

	t.Run("normalizes to UTC", func(t *testing.T) {
		loc := time.FixedZone("UTC+2", 2*60*60)
		obs := Observation{UserID: "u1", PatternType: "avoidance", Strength: 5, ObservedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, loc)}
		require.NoError(t, obs.Validate())
		assert.Equal(t, 10, obs.ObservedAt.Hour())
	})

	tests := []struct {
		name string
		obs  Observation
	}{
		{"missing user", Observation{PatternType: "avoidance", Strength: 5}},
		{"missing pattern type", Observation{UserID: "u1", Strength: 5}},
		{"zero strength", Observation{UserID: "u1", PatternType: "avoidance"}},
		{"strength above scale", Observation{UserID: "u1", PatternType: "avoidance", Strength: 11}},
		{"control character", Observation{UserID: "u1\n", PatternType: "avoidance", Strength: 5}},
		{"oversized user", Observation{UserID: strings.Repeat("u", MaxKeyLength+1), PatternType: "avoidance", Strength: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.obs.Validate(), ErrInvalidObservation)
		})
	}
}

func TestRecordID(t *testing.T) {
	assert.Equal(t, "u1:self_sabotage", RecordID("u1", "self_sabotage"))
	assert.Equal(t, "a%3Ab:t", RecordID("a:b", "t"))
	assert.Equal(t, "alice%7D%3Ax:self_sabotage", RecordID("alice}:x", "self_sabotage"))

	pairs := [][2]string{
		{"a:b", "t"},
		{"a", "b:t"},
		{"alice}:x", "self_sabotage"},
		{"alice", "x}:self_sabotage"},
		{"a%3Ab", "t"},
	}
	seen := make(map[string][2]string)
	for _, p := range pairs {
		id := RecordID(p[0], p[1])
		prev, dup := seen[id]
		assert.False(t, dup, "%v and %v share id %q", prev, p, id)
		seen[id] = p
	}
}

func TestSortRecords(t *testing.T) {
	records := []Record{
		{PatternType: "b", Strength: 5, Occurrences: 1},
		{PatternType: "c", Strength: 9, Occurrences: 1},
		{PatternType: "a", Strength: 5, Occurrences: 1},
		{PatternType: "d", Strength: 5, Occurrences: 4},
	}
	SortRecords(records)

	got := make([]string, len(records))
	for i, r := range records {
		got[i] = r.PatternType
	}
	assert.Equal(t, []string{"c", "d", "a", "b"}, got)
}

func TestSortAndLimit(t *testing.T) {
	records := []Record{
		{PatternType: "a", Strength: 4},
		{PatternType: "b", Strength: 6},
		{PatternType: "c", Strength: 8},
	}
	assert.Len(t, sortAndLimit(append([]Record(nil), records...), 0), 3)

	limited := sortAndLimit(append([]Record(nil), records...), 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "c", limited[0].PatternType)
	assert.Equal(t, "b", limited[1].PatternType)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Upsert(t.Context(), Observation{UserID: "u1", PatternType: "avoidance", Strength: 5})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.List(t.Context(), "u1", 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Delete(t.Context(), "u1", "avoidance"), ErrClosed)
}
