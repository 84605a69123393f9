package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap/zapcore"
)

// droppedEntries counts entries the sampler discarded.
// Labels: level
var droppedEntries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "insightd",
		Subsystem: "logging",
		Name:      "entries_dropped_total",
		Help:      "Total number of log entries dropped by sampling",
	},
	[]string{"level"},
)

func countDropped(ent zapcore.Entry, dec zapcore.SamplingDecision) {
	if dec&zapcore.LogDropped != 0 {
		droppedEntries.WithLabelValues(ent.Level.String()).Inc()
	}
}

// newSampledCore samples entries below WarnLevel. Warnings and errors
// always pass.
func newSampledCore(core zapcore.Core, cfg Sampling) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	sampled := zapcore.NewSamplerWithOptions(core, cfg.Tick, cfg.Initial, cfg.Thereafter,
		zapcore.SamplerHook(countDropped))
	return &warnBypassCore{Core: core, sampled: sampled}
}

// warnBypassCore routes WarnLevel and above around the sampler.
type warnBypassCore struct {
	zapcore.Core
	sampled zapcore.Core
}

func (c *warnBypassCore) With(fields []zapcore.Field) zapcore.Core {
	return &warnBypassCore{Core: c.Core.With(fields), sampled: c.sampled.With(fields)}
}

func (c *warnBypassCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if ent.Level >= zapcore.WarnLevel {
		return c.Core.Check(ent, ce)
	}
	return c.sampled.Check(ent, ce)
}
