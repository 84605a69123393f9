// Package detector scores free-form text against the indicator catalog.
//
// Detection is deterministic and rule based: every matching rule adds its
// weight to its pattern type, and types whose accumulated weight clears
// MinScore are reported with a 1-10 strength. Results are ephemeral; deciding
// whether to persist them belongs to the insights package.
package detector

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/indicators"
)

const (
	// DefaultMaxInputChars caps the runes scanned per call.
	DefaultMaxInputChars = 10000

	// DefaultMinInputChars is the shortest trimmed input worth scanning.
	DefaultMinInputChars = 10

	// MinScore is the accumulated weight a type needs to be reported.
	MinScore = 2.0

	// MaxStrength caps the strength scale.
	MaxStrength = 10

	// MaxResults bounds the number of results per scan.
	MaxResults = 3
)

// Result is a single pattern type detected in a piece of text.
type Result struct {
	PatternType      string          `json:"pattern_type"`
	Kind             indicators.Kind `json:"kind"`
	Indicators       []string        `json:"indicators"`
	Score            float64         `json:"score"`
	Strength         int             `json:"strength"`
	Description      string          `json:"description"`
	PotentialRoot    string          `json:"potential_root,omitempty"`
	ReflectionPrompt string          `json:"reflection_prompt,omitempty"`
}

// Detector scans text for indicator matches. It holds no mutable state and is
// safe for concurrent use.
type Detector struct {
	catalog       *indicators.Catalog
	maxInputChars int
	minInputChars int
	logger        *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithMaxInputChars overrides the input cap. Non-positive values are ignored.
func WithMaxInputChars(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.maxInputChars = n
		}
	}
}

// WithMinInputChars overrides the minimum input length. Negative values are
// ignored.
func WithMinInputChars(n int) Option {
	return func(d *Detector) {
		if n >= 0 {
			d.minInputChars = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Detector over catalog. A nil catalog selects the built-in one.
func New(catalog *indicators.Catalog, opts ...Option) *Detector {
	if catalog == nil {
		catalog = indicators.DefaultCatalog()
	}
	d := &Detector{
		catalog:       catalog,
		maxInputChars: DefaultMaxInputChars,
		minInputChars: DefaultMinInputChars,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// MaxInputChars returns the number of runes Detect scans per call.
func (d *Detector) MaxInputChars() int {
	return d.maxInputChars
}

// Catalog returns the catalog the detector scores against.
func (d *Detector) Catalog() *indicators.Catalog {
	return d.catalog
}

type accumulator struct {
	score  float64
	labels map[string]struct{}
}

// Detect returns up to MaxResults pattern types found in text, strongest
// first. It never returns nil.
func (d *Detector) Detect(text string) []Result {
	start := time.Now()
	defer func() {
		scanDuration.Observe(time.Since(start).Seconds())
	}()

	text = truncateRunes(text, d.maxInputChars)
	if utf8.RuneCountInString(strings.TrimSpace(text)) < d.minInputChars {
		scansTotal.WithLabelValues(outcomeSkipped).Inc()
		return []Result{}
	}

	matched := d.catalog.MatchAll(strings.ToLower(text))

	acc := make(map[string]*accumulator)
	for _, rule := range matched {
		a, ok := acc[rule.PatternType]
		if !ok {
			a = &accumulator{labels: make(map[string]struct{})}
			acc[rule.PatternType] = a
		}
		a.score += rule.Weight
		a.labels[rule.Label] = struct{}{}
	}

	results := make([]Result, 0, len(acc))
	for name, a := range acc {
		if a.score < MinScore || len(a.labels) == 0 {
			continue
		}
		pt, _ := d.catalog.PatternType(name)
		results = append(results, Result{
			PatternType:      name,
			Kind:             pt.Kind,
			Indicators:       sortedLabels(a.labels),
			Score:            a.score,
			Strength:         Strength(a.score),
			Description:      pt.Description,
			PotentialRoot:    pt.PotentialRoot,
			ReflectionPrompt: pt.ReflectionPrompt,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Strength != results[j].Strength {
			return results[i].Strength > results[j].Strength
		}
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PatternType < results[j].PatternType
	})
	if len(results) > MaxResults {
		results = results[:MaxResults]
	}

	if len(results) == 0 {
		scansTotal.WithLabelValues(outcomeNoMatch).Inc()
	} else {
		scansTotal.WithLabelValues(outcomeMatch).Inc()
	}
	for _, r := range results {
		detectionsTotal.WithLabelValues(r.PatternType).Inc()
	}

	d.logger.Debug("text scanned",
		zap.Int("rules_matched", len(matched)),
		zap.Int("results", len(results)),
	)
	return results
}

// Strength maps an accumulated score onto the 1-10 scale.
func Strength(score float64) int {
	s := int(math.Round(score * 2))
	if s > MaxStrength {
		return MaxStrength
	}
	if s < 0 {
		return 0
	}
	return s
}

func truncateRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

func sortedLabels(set map[string]struct{}) []string {
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}
