package indicators

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"regexp/syntax"
)

// MaxPatternLength bounds the size of a single rule pattern.
const MaxPatternLength = 512

// ErrInvalidCatalog is returned when a catalog definition fails validation.
var ErrInvalidCatalog = errors.New("invalid indicator catalog")

// Kind classifies a pattern type. It is persisted as the insight type.
type Kind string

const (
	// KindBehavioral covers patterns in what a person does.
	KindBehavioral Kind = "behavioral"
	// KindCognitive covers patterns in how a person frames events.
	KindCognitive Kind = "cognitive"
	// KindEmotional covers patterns in how a person feels about themselves.
	KindEmotional Kind = "emotional"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindBehavioral, KindCognitive, KindEmotional:
		return true
	}
	return false
}

// Config is the serializable definition of a catalog.
type Config struct {
	// Version identifies the rule set; it changes whenever weights or
	// patterns change so persisted evidence can be traced to a rule set.
	Version string `koanf:"version" toml:"version"`

	// PatternTypes declares every type rules may refer to.
	PatternTypes []PatternType `koanf:"pattern_types" toml:"pattern_types"`

	// Rules are the weighted matchers.
	Rules []Rule `koanf:"rules" toml:"rules"`
}

// PatternType describes a category of signal.
type PatternType struct {
	// Name is the stable identifier (e.g. "self_sabotage").
	Name string `koanf:"name" toml:"name"`

	// Kind classifies the pattern.
	Kind Kind `koanf:"kind" toml:"kind"`

	// Description is the category-level wording. It is the only text that
	// may reach a downstream prompt.
	Description string `koanf:"description" toml:"description"`

	// PotentialRoot is a non-diagnostic hypothesis about where the pattern
	// may come from.
	PotentialRoot string `koanf:"potential_root" toml:"potential_root"`

	// ReflectionPrompt is an open question inviting self-reflection.
	ReflectionPrompt string `koanf:"reflection_prompt" toml:"reflection_prompt"`
}

// Rule is a single weighted matcher.
type Rule struct {
	// ID is the unique identifier for this rule.
	ID string `koanf:"id" toml:"id"`

	// Pattern is the regular expression. It is compiled case-insensitive.
	Pattern string `koanf:"pattern" toml:"pattern"`

	// PatternType is the name of the type this rule contributes to.
	PatternType string `koanf:"pattern_type" toml:"pattern_type"`

	// Label is the human-readable indicator name recorded as evidence.
	Label string `koanf:"label" toml:"label"`

	// Weight is added to the type's score when the rule matches.
	Weight float64 `koanf:"weight" toml:"weight"`
}

// compiledRule holds a validated rule and its compiled matcher.
type compiledRule struct {
	Rule
	pattern *regexp.Regexp
}

// compile validates the configuration and returns its compiled rules.
func (c *Config) compile() ([]*compiledRule, error) {
	if len(c.PatternTypes) == 0 {
		return nil, fmt.Errorf("%w: no pattern types declared", ErrInvalidCatalog)
	}
	if len(c.Rules) == 0 {
		return nil, fmt.Errorf("%w: no rules declared", ErrInvalidCatalog)
	}

	types := make(map[string]bool, len(c.PatternTypes))
	for i, pt := range c.PatternTypes {
		if pt.Name == "" {
			return nil, fmt.Errorf("%w: pattern type %d: name is required", ErrInvalidCatalog, i)
		}
		if types[pt.Name] {
			return nil, fmt.Errorf("%w: pattern type %s: declared twice", ErrInvalidCatalog, pt.Name)
		}
		if !pt.Kind.IsValid() {
			return nil, fmt.Errorf("%w: pattern type %s: unknown kind %q", ErrInvalidCatalog, pt.Name, pt.Kind)
		}
		if pt.Description == "" {
			return nil, fmt.Errorf("%w: pattern type %s: description is required", ErrInvalidCatalog, pt.Name)
		}
		types[pt.Name] = true
	}

	seen := make(map[string]bool, len(c.Rules))
	compiled := make([]*compiledRule, 0, len(c.Rules))
	for i, rule := range c.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("%w: rule %d: ID is required", ErrInvalidCatalog, i)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("%w: rule %s: duplicate ID", ErrInvalidCatalog, rule.ID)
		}
		seen[rule.ID] = true

		if rule.Pattern == "" {
			return nil, fmt.Errorf("%w: rule %s: pattern is required", ErrInvalidCatalog, rule.ID)
		}
		if len(rule.Pattern) > MaxPatternLength {
			return nil, fmt.Errorf("%w: rule %s: pattern exceeds %d bytes", ErrInvalidCatalog, rule.ID, MaxPatternLength)
		}
		if !types[rule.PatternType] {
			return nil, fmt.Errorf("%w: rule %s: undeclared pattern type %q", ErrInvalidCatalog, rule.ID, rule.PatternType)
		}
		if rule.Label == "" {
			return nil, fmt.Errorf("%w: rule %s: label is required", ErrInvalidCatalog, rule.ID)
		}
		if !(rule.Weight > 0) || math.IsInf(rule.Weight, 0) {
			return nil, fmt.Errorf("%w: rule %s: weight must be a positive number, got %v", ErrInvalidCatalog, rule.ID, rule.Weight)
		}

		parsed, err := syntax.Parse(rule.Pattern, syntax.Perl)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: invalid pattern: %v", ErrInvalidCatalog, rule.ID, err)
		}
		if hasNestedQuantifier(parsed, false) {
			return nil, fmt.Errorf("%w: rule %s: nested quantifiers are not allowed", ErrInvalidCatalog, rule.ID)
		}

		pattern, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %s: invalid pattern: %v", ErrInvalidCatalog, rule.ID, err)
		}

		compiled = append(compiled, &compiledRule{Rule: rule, pattern: pattern})
	}

	return compiled, nil
}

// hasNestedQuantifier reports whether a repetition operator appears inside
// another one, e.g. (a+)+ or (?:x*y)*.
func hasNestedQuantifier(re *syntax.Regexp, insideRepeat bool) bool {
	isRepeat := false
	switch re.Op {
	case syntax.OpStar, syntax.OpPlus, syntax.OpQuest, syntax.OpRepeat:
		if insideRepeat {
			return true
		}
		isRepeat = true
	}
	for _, sub := range re.Sub {
		if hasNestedQuantifier(sub, insideRepeat || isRepeat) {
			return true
		}
	}
	return false
}
