package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry at DebugLevel and above, after the default
// redaction, so tests can assert on what would have been written.
type TestLogger struct {
	*Logger
	logs *observer.ObservedLogs
}

// NewTestLogger returns an observing logger.
func NewTestLogger() *TestLogger {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRedactor(NewDefaultConfig().Redaction)
	return &TestLogger{
		Logger: &Logger{zap: zap.New(newRedactingCore(core, zapcore.DebugLevel, r))},
		logs:   logs,
	}
}

// All returns the recorded entries in order.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.logs.All()
}

func (t *TestLogger) find(level zapcore.Level, msgContains string) bool {
	for _, e := range t.logs.All() {
		if e.Level == level && strings.Contains(e.Message, msgContains) {
			return true
		}
	}
	return false
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if !t.find(level, msgContains) {
		tb.Errorf("no %s entry containing %q; got %d entries", level, msgContains, t.logs.Len())
	}
}

// AssertNotLogged fails tb if an entry at level contains msgContains.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if t.find(level, msgContains) {
		tb.Errorf("unexpected %s entry containing %q", level, msgContains)
	}
}

// AssertField fails tb unless an entry with message msg carries key with
// the expected value, compared through the field's encoded form.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) {
	tb.Helper()
	for _, e := range t.logs.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && v == expected {
			return
		}
	}
	tb.Errorf("entry %q has no field %s=%v", msg, key, expected)
}

// AssertNoneContain fails tb if any message or string field contains one
// of the given substrings.
func (t *TestLogger) AssertNoneContain(tb testing.TB, substrings ...string) {
	tb.Helper()
	for _, e := range t.logs.All() {
		for _, s := range substrings {
			if strings.Contains(e.Message, s) {
				tb.Errorf("message %q contains %q", e.Message, s)
			}
			for _, f := range e.Context {
				if f.Type == zapcore.StringType && strings.Contains(f.String, s) {
					tb.Errorf("field %s contains %q", f.Key, s)
				}
			}
		}
	}
}
