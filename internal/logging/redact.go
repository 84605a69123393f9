package logging

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// redactor rewrites fields whose key or string value is sensitive.
type redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

func newRedactor(cfg Redaction) *redactor {
	r := &redactor{keys: make(map[string]struct{}, len(cfg.Keys))}
	for _, k := range cfg.Keys {
		r.keys[strings.ToLower(k)] = struct{}{}
	}
	for _, p := range cfg.Patterns {
		// Validate already compiled every pattern.
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

func (r *redactor) sensitiveKey(key string) bool {
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

func (r *redactor) field(f zapcore.Field) zapcore.Field {
	if r.sensitiveKey(f.Key) {
		return zap.String(f.Key, redacted)
	}
	if f.Type != zapcore.StringType {
		return f
	}
	for _, re := range r.patterns {
		if re.MatchString(f.String) {
			return zap.String(f.Key, re.ReplaceAllString(f.String, redacted))
		}
	}
	return f
}

func (r *redactor) fields(fs []zapcore.Field) []zapcore.Field {
	if len(fs) == 0 || (len(r.keys) == 0 && len(r.patterns) == 0) {
		return fs
	}
	out := make([]zapcore.Field, len(fs))
	for i, f := range fs {
		out[i] = r.field(f)
	}
	return out
}

func (r *redactor) message(msg string) string {
	for _, re := range r.patterns {
		msg = re.ReplaceAllString(msg, redacted)
	}
	return msg
}

// redactingCore applies a redactor to every field and message before the
// wrapped core sees them. Fields bound with With are redacted once. It
// also gates the wrapped core at level, since some cores (otelzap) accept
// every level.
type redactingCore struct {
	zapcore.Core
	level zapcore.LevelEnabler
	r     *redactor
}

func newRedactingCore(core zapcore.Core, level zapcore.LevelEnabler, r *redactor) zapcore.Core {
	return &redactingCore{Core: core, level: level, r: r}
}

func (c *redactingCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.r.fields(fields)), level: c.level, r: c.r}
}

func (c *redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	ent.Message = c.r.message(ent.Message)
	return c.Core.Write(ent, c.r.fields(fields))
}
