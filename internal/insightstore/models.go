package insightstore

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
)

const (
	// MaxKeyLength bounds user IDs and pattern type names.
	MaxKeyLength = 256

	// MaxStrength is the top of the strength scale.
	MaxStrength = 10
)

// Observation is a single qualifying detection to be folded into a record.
type Observation struct {
	UserID      string
	PatternType string
	InsightType string
	Insight     string
	Evidence    string
	Strength    int

	// ObservedAt is the observation time. Zero means now.
	ObservedAt time.Time
}

// Record is the aggregated evidence for one (user, pattern type) pair.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	PatternType string    `json:"pattern_type"`
	InsightType string    `json:"insight_type"`
	Insight     string    `json:"insight"`
	Evidence    string    `json:"evidence"`
	Strength    int       `json:"strength"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// keyEscaper percent-encodes the characters composite keys use as
// delimiters. Escaped parts never contain ':', '{' or '}', so keys built from
// them map back to exactly one (user, pattern type) pair.
var keyEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"{", "%7B",
	"}", "%7D",
)

// EscapeKeyPart encodes one key component for use inside a composite key.
// IDs without delimiter characters come back unchanged.
func EscapeKeyPart(v string) string {
	return keyEscaper.Replace(v)
}

// RecordID returns the stable identifier of a record.
func RecordID(userID, patternType string) string {
	return EscapeKeyPart(userID) + ":" + EscapeKeyPart(patternType)
}

// Validate checks the observation and fills ObservedAt when unset.
func (o *Observation) Validate() error {
	if err := ValidateKey(o.UserID, o.PatternType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidObservation, err)
	}
	if o.Strength < 1 || o.Strength > MaxStrength {
		return fmt.Errorf("%w: strength %d outside 1-%d", ErrInvalidObservation, o.Strength, MaxStrength)
	}
	if o.ObservedAt.IsZero() {
		o.ObservedAt = time.Now()
	}
	o.ObservedAt = o.ObservedAt.UTC()
	return nil
}

// ValidateKey checks a (userID, patternType) pair.
func ValidateKey(userID, patternType string) error {
	if err := validateKeyPart("user_id", userID); err != nil {
		return err
	}
	return validateKeyPart("pattern_type", patternType)
}

// ValidateUserID checks a user ID on its own.
func ValidateUserID(userID string) error {
	return validateKeyPart("user_id", userID)
}

func validateKeyPart(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidKey, field)
	}
	if len(v) > MaxKeyLength {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidKey, field, MaxKeyLength)
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: %s contains control characters", ErrInvalidKey, field)
		}
	}
	return nil
}

// SortRecords orders records by strength then occurrences, both descending,
// with pattern type as a stable tie-break.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Strength != records[j].Strength {
			return records[i].Strength > records[j].Strength
		}
		if records[i].Occurrences != records[j].Occurrences {
			return records[i].Occurrences > records[j].Occurrences
		}
		return records[i].PatternType < records[j].PatternType
	})
}

// sortAndLimit sorts records in place and applies limit.
func sortAndLimit(records []Record, limit int) []Record {
	SortRecords(records)
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}
