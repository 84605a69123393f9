package logging

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/insightd/internal/config"
)

// Config controls the core NewLogger builds.
type Config struct {
	Level  zapcore.Level
	Format string // json or console

	// Stdout and OTEL select the outputs. OTEL is ignored when NewLogger
	// receives a nil provider.
	Stdout bool
	OTEL   bool

	Caller    bool
	Fields    map[string]string
	Sampling  Sampling
	Redaction Redaction
}

// Sampling thins entries below WarnLevel. Each tick the first Initial
// entries with the same level and message pass, then every Thereafter-th.
type Sampling struct {
	Enabled    bool
	Tick       time.Duration
	Initial    int
	Thereafter int
}

// Redaction replaces the values of matching keys, and of string values
// matching any pattern, before they reach an output.
type Redaction struct {
	Keys     []string
	Patterns []string
}

const maxPatternLen = 256

// NewDefaultConfig returns the production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: "json",
		Stdout: true,
		OTEL:   true,
		Caller: true,
		Fields: map[string]string{"service": "insightd"},
		Sampling: Sampling{
			Enabled:    true,
			Tick:       time.Second,
			Initial:    100,
			Thereafter: 10,
		},
		Redaction: Redaction{
			Keys: []string{
				"password", "secret", "token", "api_key", "authorization", "dsn", "uri",
				// user text stays out of the logs
				"text", "message", "content", "evidence",
			},
			Patterns: []string{
				`(?i)bearer\s+\S+`,
				`(?i)(postgres|postgresql|mongodb(\+srv)?|redis)://[^@\s]+@`,
			},
		},
	}
}

// FromSettings applies the logging section of the application config to
// the defaults. Empty values keep the defaults.
func FromSettings(settings config.LoggingConfig) (*Config, error) {
	cfg := NewDefaultConfig()
	if settings.Level != "" {
		level, err := zapcore.ParseLevel(settings.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", settings.Level, err)
		}
		cfg.Level = level
	}
	if settings.Format != "" {
		cfg.Format = settings.Format
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with the config at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Format != "json" && c.Format != "console" {
		errs = append(errs, fmt.Errorf("format must be 'json' or 'console', got %q", c.Format))
	}
	if !c.Stdout && !c.OTEL {
		errs = append(errs, errors.New("at least one output must be enabled"))
	}
	if c.Sampling.Enabled {
		if c.Sampling.Tick <= 0 {
			errs = append(errs, errors.New("sampling tick must be positive"))
		}
		if c.Sampling.Initial < 1 || c.Sampling.Thereafter < 0 {
			errs = append(errs, fmt.Errorf("sampling initial must be >= 1 and thereafter >= 0, got %d/%d",
				c.Sampling.Initial, c.Sampling.Thereafter))
		}
	}
	for _, p := range c.Redaction.Patterns {
		if len(p) > maxPatternLen {
			errs = append(errs, fmt.Errorf("redaction pattern longer than %d chars", maxPatternLen))
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("redaction pattern %q: %w", p, err))
		}
	}
	for k, v := range c.Fields {
		if k == "" || v == "" {
			errs = append(errs, fmt.Errorf("constant field %q=%q must have a key and a value", k, v))
		}
	}
	return errors.Join(errs...)
}
