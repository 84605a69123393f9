package indicators

import (
	"sort"
	"sync"
)

// Catalog is an immutable, compiled set of indicator rules.
//
// Catalog is safe for concurrent use.
type Catalog struct {
	version   string
	types     map[string]PatternType
	typeOrder []string
	rules     []*compiledRule
}

// New validates and compiles a catalog definition.
func New(cfg *Config) (*Catalog, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	rules, err := cfg.compile()
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		version:   cfg.Version,
		types:     make(map[string]PatternType, len(cfg.PatternTypes)),
		typeOrder: make([]string, 0, len(cfg.PatternTypes)),
		rules:     rules,
	}
	for _, pt := range cfg.PatternTypes {
		c.types[pt.Name] = pt
		c.typeOrder = append(c.typeOrder, pt.Name)
	}

	return c, nil
}

// MustNew is like New but panics on an invalid definition.
func MustNew(cfg *Config) *Catalog {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// DefaultCatalog returns the process-wide built-in catalog, compiling it on
// first use.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = MustNew(DefaultConfig())
	})
	return defaultCatalog
}

// Version returns the catalog version.
func (c *Catalog) Version() string {
	return c.version
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// PatternType returns the metadata for a pattern type.
func (c *Catalog) PatternType(name string) (PatternType, bool) {
	pt, ok := c.types[name]
	return pt, ok
}

// PatternTypes returns all pattern types in declaration order.
func (c *Catalog) PatternTypes() []PatternType {
	out := make([]PatternType, 0, len(c.typeOrder))
	for _, name := range c.typeOrder {
		out = append(out, c.types[name])
	}
	return out
}

// Rules returns a copy of all rules in declaration order.
func (c *Catalog) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = r.Rule
	}
	return out
}

// RulesFor returns the rules contributing to one pattern type.
func (c *Catalog) RulesFor(patternType string) []Rule {
	var out []Rule
	for _, r := range c.rules {
		if r.PatternType == patternType {
			out = append(out, r.Rule)
		}
	}
	return out
}

// Labels returns every distinct indicator label, sorted.
func (c *Catalog) Labels() []string {
	set := make(map[string]struct{}, len(c.rules))
	for _, r := range c.rules {
		set[r.Label] = struct{}{}
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// MatchAll returns every rule whose pattern matches text, in declaration
// order. Each rule is reported at most once regardless of how many times it
// matches.
func (c *Catalog) MatchAll(text string) []Rule {
	if text == "" {
		return nil
	}
	var matched []Rule
	for _, r := range c.rules {
		if r.pattern.MatchString(text) {
			matched = append(matched, r.Rule)
		}
	}
	return matched
}
