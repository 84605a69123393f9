package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/detector"
)

const instrumentationName = "github.com/fyrsmithlabs/insightd/internal/conversation"

const (
	// DefaultMaxTurns is the number of recent user turns analyzed.
	DefaultMaxTurns = 20

	// MinUserTurns is the fewest user turns worth analyzing.
	MinUserTurns = 3
)

// Analyzer runs the detector over the recent user side of a conversation.
type Analyzer struct {
	source   TurnSource
	detector *detector.Detector
	maxTurns int
	logger   *zap.Logger
	tracer   trace.Tracer
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxTurns overrides the turn window. Values below MinUserTurns are
// ignored.
func WithMaxTurns(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n >= MinUserTurns {
			a.maxTurns = n
		}
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(source TurnSource, det *detector.Detector, logger *zap.Logger, opts ...AnalyzerOption) *Analyzer {
	if det == nil {
		det = detector.New(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		source:   source,
		detector: det,
		maxTurns: DefaultMaxTurns,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns the patterns found across the latest user turns of a
// conversation. Conversations with fewer than MinUserTurns user turns yield
// an empty result, not an error.
func (a *Analyzer) Analyze(ctx context.Context, conversationID string) ([]detector.Result, error) {
	ctx, span := a.tracer.Start(ctx, "conversation.analyze")
	defer span.End()
	span.SetAttributes(attribute.Int("max_turns", a.maxTurns))

	if a.source == nil {
		return nil, errors.New("turn source is required")
	}

	turns, err := a.source.RecentTurns(ctx, conversationID, RoleUser, a.maxTurns)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading turns: %w", err)
	}
	span.SetAttributes(attribute.Int("user_turns", len(turns)))

	results := a.AnalyzeTurns(turns)

	a.logger.Debug("conversation analyzed",
		zap.String("conversation.id", conversationID),
		zap.Int("user_turns", len(turns)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// AnalyzeTurns applies the same window and threshold to turns already in
// hand. Turns by other roles are ignored. When the window is longer than the
// detector scans, the oldest text is cut so the newest turns are always seen.
func (a *Analyzer) AnalyzeTurns(turns []Turn) []detector.Result {
	user := lastN(turns, RoleUser, a.maxTurns)
	if len(user) < MinUserTurns {
		return []detector.Result{}
	}

	texts := make([]string, len(user))
	for i, t := range user {
		texts[i] = t.Content
	}
	text := tailRunes(strings.Join(texts, "\n"), a.detector.MaxInputChars())
	return a.detector.Detect(text)
}

// tailRunes returns the last max runes of s.
func tailRunes(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	n := utf8.RuneCountInString(s)
	if n <= max {
		return s
	}
	skip := n - max
	for i := range s {
		if skip == 0 {
			return s[i:]
		}
		skip--
	}
	return ""
}
