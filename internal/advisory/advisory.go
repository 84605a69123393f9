// Package advisory decides which persisted insights are significant and
// renders them as a short guidance block for a downstream text generator.
//
// The block carries category-level descriptions only. Indicator labels,
// evidence and diagnostic wording never leave this package.
package advisory

import (
	"sort"
	"strings"

	"github.com/fyrsmithlabs/insightd/internal/indicators"
	"github.com/fyrsmithlabs/insightd/internal/insightstore"
)

const (
	// MinStrength is the lowest strength that can be significant.
	MinStrength = 5

	// MinOccurrences is the number of recorded events a pattern needs
	// before it can be significant.
	MinOccurrences = 3

	// MaxItems caps how many patterns one advisory mentions.
	MaxItems = 2
)

// State is the lifecycle position of one (user, pattern type) pair. It only
// moves forward.
type State string

const (
	StateUnseen      State = "unseen"
	StateDetected    State = "detected" // seen in a scan, never persisted
	StateRecorded    State = "recorded"
	StateSignificant State = "significant"
)

// IsSignificant reports whether a record may surface in an advisory.
func IsSignificant(strength, occurrences int) bool {
	return strength >= MinStrength && occurrences >= MinOccurrences
}

// StateOf returns the state of a persisted record. Zero occurrences means
// nothing was ever recorded.
func StateOf(strength, occurrences int) State {
	switch {
	case occurrences <= 0:
		return StateUnseen
	case IsSignificant(strength, occurrences):
		return StateSignificant
	default:
		return StateRecorded
	}
}

// Builder renders advisory text from persisted records.
type Builder struct {
	catalog *indicators.Catalog
}

// NewBuilder creates a builder that resolves descriptions from catalog. A
// nil catalog selects the built-in one.
func NewBuilder(catalog *indicators.Catalog) *Builder {
	if catalog == nil {
		catalog = indicators.DefaultCatalog()
	}
	return &Builder{catalog: catalog}
}

// Significant returns the records that qualify for an advisory, strongest
// first, capped to MaxItems. Records of pattern types the catalog does not
// know are dropped.
func (b *Builder) Significant(records []insightstore.Record) []insightstore.Record {
	out := make([]insightstore.Record, 0, MaxItems)
	for _, r := range records {
		if !IsSignificant(r.Strength, r.Occurrences) {
			continue
		}
		if _, ok := b.catalog.PatternType(r.PatternType); !ok {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		return out[i].Occurrences > out[j].Occurrences
	})
	if len(out) > MaxItems {
		out = out[:MaxItems]
	}
	return out
}

// Build returns the advisory block, or "" when no record qualifies.
func (b *Builder) Build(records []insightstore.Record) string {
	significant := b.Significant(records)
	if len(significant) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Background context\n\n")
	sb.WriteString("Themes that have come up repeatedly in earlier conversations:\n\n")
	for _, r := range significant {
		pt, _ := b.catalog.PatternType(r.PatternType)
		sb.WriteString("- ")
		sb.WriteString(strings.TrimSpace(pt.Description))
		sb.WriteString("\n")
	}
	sb.WriteString("\nTreat this as soft guidance only. Approach these themes with curiosity, not interpretation. ")
	sb.WriteString("Do not name them, quote them back, or present them as a diagnosis.\n")
	return sb.String()
}
