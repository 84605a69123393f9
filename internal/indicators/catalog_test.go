package indicators

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Version: "test",
		PatternTypes: []PatternType{
			{Name: "alpha", Kind: KindCognitive, Description: "Alpha pattern"},
			{Name: "beta", Kind: KindBehavioral, Description: "Beta pattern"},
		},
		Rules: []Rule{
			{ID: "a1", Pattern: `\bfoo\b`, PatternType: "alpha", Label: "foo word", Weight: 1.5},
			{ID: "a2", Pattern: `\bbar\b`, PatternType: "alpha", Label: "bar word", Weight: 1.0},
			{ID: "b1", Pattern: `\bbaz\b`, PatternType: "beta", Label: "baz word", Weight: 2.0},
		},
	}
}

func TestNew(t *testing.T) {
	t.Run("nil config uses defaults", func(t *testing.T) {
		c, err := New(nil)
		require.NoError(t, err)
		assert.Equal(t, CatalogVersion, c.Version())
		assert.Equal(t, len(DefaultRules()), c.Len())
	})

	t.Run("valid custom config", func(t *testing.T) {
		c, err := New(validConfig())
		require.NoError(t, err)
		assert.Equal(t, "test", c.Version())
		assert.Equal(t, 3, c.Len())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"no pattern types", func(c *Config) { c.PatternTypes = nil }, "no pattern types"},
		{"no rules", func(c *Config) { c.Rules = nil }, "no rules"},
		{"unnamed type", func(c *Config) { c.PatternTypes[0].Name = "" }, "name is required"},
		{"duplicate type", func(c *Config) { c.PatternTypes[1].Name = "alpha" }, "declared twice"},
		{"unknown kind", func(c *Config) { c.PatternTypes[0].Kind = "spiritual" }, "unknown kind"},
		{"missing description", func(c *Config) { c.PatternTypes[0].Description = "" }, "description is required"},
		{"missing rule ID", func(c *Config) { c.Rules[0].ID = "" }, "ID is required"},
		{"duplicate rule ID", func(c *Config) { c.Rules[1].ID = "a1" }, "duplicate ID"},
		{"empty pattern", func(c *Config) { c.Rules[0].Pattern = "" }, "pattern is required"},
		{"pattern too long", func(c *Config) { c.Rules[0].Pattern = strings.Repeat("a", MaxPatternLength+1) }, "exceeds"},
		{"undeclared type", func(c *Config) { c.Rules[0].PatternType = "gamma" }, "undeclared pattern type"},
		{"missing label", func(c *Config) { c.Rules[0].Label = "" }, "label is required"},
		{"zero weight", func(c *Config) { c.Rules[0].Weight = 0 }, "weight"},
		{"negative weight", func(c *Config) { c.Rules[0].Weight = -1 }, "weight"},
		{"NaN weight", func(c *Config) { c.Rules[0].Weight = math.NaN() }, "weight"},
		{"infinite weight", func(c *Config) { c.Rules[0].Weight = math.Inf(1) }, "weight"},
		{"invalid regex", func(c *Config) { c.Rules[0].Pattern = `[invalid` }, "invalid pattern"},
		{"nested quantifier", func(c *Config) { c.Rules[0].Pattern = `(a+)+b` }, "nested quantifiers"},
		{"nested quantifier in group", func(c *Config) { c.Rules[0].Pattern = `(?:x*y)*` }, "nested quantifiers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestMustNew_Panics(t *testing.T) {
	cfg := validConfig()
	cfg.Rules = nil
	assert.Panics(t, func() { MustNew(cfg) })
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NotNil(t, c)
	assert.Same(t, c, DefaultCatalog())

	t.Run("every rule refers to a declared type", func(t *testing.T) {
		for _, r := range c.Rules() {
			_, ok := c.PatternType(r.PatternType)
			assert.True(t, ok, "rule %s", r.ID)
		}
	})

	t.Run("every type has at least one rule", func(t *testing.T) {
		for _, pt := range c.PatternTypes() {
			assert.NotEmpty(t, c.RulesFor(pt.Name), "type %s", pt.Name)
			assert.NotEmpty(t, pt.ReflectionPrompt, "type %s", pt.Name)
			assert.NotEmpty(t, pt.PotentialRoot, "type %s", pt.Name)
		}
	})

	t.Run("labels never appear in descriptions", func(t *testing.T) {
		for _, pt := range c.PatternTypes() {
			desc := strings.ToLower(pt.Description)
			for _, label := range c.Labels() {
				assert.NotContains(t, desc, strings.ToLower(label), "type %s", pt.Name)
			}
		}
	})
}

func TestDefaultCatalog_RuleSamples(t *testing.T) {
	samples := map[string]string{
		"ss-undeserving":     "honestly i don't deserve this",
		"ss-always-ruin":     "i always screw it up",
		"ss-quit-early":      "i gave up right before the deadline",
		"ss-ruin-good":       "i sabotage everything good",
		"cat-worst-case":     "i keep imagining the worst-case scenario",
		"cat-disaster":       "this is going to be a disaster",
		"cat-never-recover":  "i will never recover from this",
		"cat-all-wrong":      "everything is going to go wrong",
		"pp-cant-refuse":     "i can't say no to my boss",
		"pp-let-down":        "i don't want to let anyone down",
		"pp-everyone-happy":  "i try to keep everyone happy",
		"pp-what-think":      "what will people think",
		"pf-must-be-perfect": "it has to be perfect",
		"pf-not-enough":      "my work is never good enough",
		"pf-one-mistake":     "one mistake and it's over",
		"pf-redo":            "i redo it again and again",
		"av-avoid":           "i keep avoiding the call",
		"av-put-off":         "i kept putting it off",
		"av-cant-face":       "i can’t face my inbox",
		"av-hide":            "i've been hiding from my friends",
		"aon-absolutes":      "this always happens",
		"aon-total-failure":  "i am a total failure",
		"aon-ruined":         "now everything is ruined",
		"aon-either-or":      "it's either perfect or worthless",
		"imp-fraud":          "i feel like a fraud at work",
		"imp-luck":           "i just got lucky",
		"imp-found-out":      "they will find out i have no idea",
		"imp-dont-belong":    "i don't belong on this team",
	}

	c := DefaultCatalog()
	require.Len(t, samples, c.Len(), "every default rule needs a sample")

	for _, rule := range c.Rules() {
		sample, ok := samples[rule.ID]
		require.True(t, ok, "missing sample for %s", rule.ID)
		matched := c.MatchAll(sample)
		ids := make([]string, 0, len(matched))
		for _, m := range matched {
			ids = append(ids, m.ID)
		}
		assert.Contains(t, ids, rule.ID, "sample %q", sample)
	}
}

func TestCatalog_MatchAll(t *testing.T) {
	c := MustNew(validConfig())

	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, c.MatchAll(""))
	})

	t.Run("case insensitive", func(t *testing.T) {
		matched := c.MatchAll("FOO")
		require.Len(t, matched, 1)
		assert.Equal(t, "a1", matched[0].ID)
	})

	t.Run("repeated match reported once", func(t *testing.T) {
		matched := c.MatchAll("foo foo foo")
		assert.Len(t, matched, 1)
	})

	t.Run("declaration order across types", func(t *testing.T) {
		matched := c.MatchAll("baz bar foo")
		require.Len(t, matched, 3)
		assert.Equal(t, []string{"a1", "a2", "b1"}, []string{matched[0].ID, matched[1].ID, matched[2].ID})
	})
}

func TestCatalog_AccessorsReturnCopies(t *testing.T) {
	c := MustNew(validConfig())

	rules := c.Rules()
	rules[0].Weight = 100
	rules[0].Label = "mutated"
	assert.Equal(t, 1.5, c.Rules()[0].Weight)
	assert.Equal(t, "foo word", c.Rules()[0].Label)

	types := c.PatternTypes()
	types[0].Description = "mutated"
	pt, ok := c.PatternType("alpha")
	require.True(t, ok)
	assert.Equal(t, "Alpha pattern", pt.Description)
}

func TestCatalog_Lookups(t *testing.T) {
	c := MustNew(validConfig())

	_, ok := c.PatternType("missing")
	assert.False(t, ok)

	assert.Len(t, c.RulesFor("alpha"), 2)
	assert.Empty(t, c.RulesFor("missing"))
	assert.Equal(t, []string{"bar word", "baz word", "foo word"}, c.Labels())

	names := make([]string, 0)
	for _, pt := range c.PatternTypes() {
		names = append(names, pt.Name)
	}
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestCatalog_ConcurrentMatch(t *testing.T) {
	c := DefaultCatalog()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.MatchAll("i don't deserve to be happy, i always mess things up")
			}
		}()
	}
	wg.Wait()
}
