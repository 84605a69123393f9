// Package indicators provides the versioned catalog of weighted text-matching
// rules used to detect behavioral and cognitive patterns in user messages.
//
// A catalog is built once at startup, either from the built-in table
// (DefaultCatalog) or from a YAML/TOML file (Load), and is read-only afterwards.
// Every rule belongs to exactly one pattern type; many rules may point at the
// same type and a single message may satisfy rules of several types.
//
// All patterns are compiled case-insensitively with Go's RE2 engine, which
// matches in time linear to the input. Patterns with nested quantifiers are
// rejected anyway so that catalogs stay portable to backtracking engines.
//
// # Usage
//
//	cat := indicators.DefaultCatalog()
//	for _, rule := range cat.MatchAll(strings.ToLower(text)) {
//	    fmt.Println(rule.PatternType, rule.Label, rule.Weight)
//	}
package indicators
