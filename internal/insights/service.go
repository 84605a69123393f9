// Package insights turns ephemeral detections into persisted evidence and
// reads that evidence back as advisory text.
//
// Detection is broad and persistence is conservative: only results with
// strength MinPersistStrength or higher are recorded. Recording is advisory
// work, so store failures are logged and counted but never returned.
package insights

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/advisory"
	"github.com/fyrsmithlabs/insightd/internal/detector"
	"github.com/fyrsmithlabs/insightd/internal/insightstore"
)

const instrumentationName = "github.com/fyrsmithlabs/insightd/internal/insights"

const (
	// MinPersistStrength is the lowest strength that gets recorded.
	MinPersistStrength = 4

	// DefaultListLimit bounds List.
	DefaultListLimit = 10
)

// Service records detections and serves persisted insights.
type Service struct {
	store     insightstore.Store
	builder   *advisory.Builder
	publisher Publisher
	now       func() time.Time

	logger        *zap.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	recordCounter metric.Int64Counter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPublisher enables insight events.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithBuilder sets the advisory builder. The default uses the built-in
// catalog.
func WithBuilder(b *advisory.Builder) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithClock overrides the observation clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service.
func NewService(store insightstore.Store, logger *zap.Logger, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("insight store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:   store,
		builder: advisory.NewBuilder(nil),
		now:     time.Now,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	s.recordCounter, err = s.meter.Int64Counter(
		"insightd.insights.records_total",
		metric.WithDescription("Total number of insight recording attempts"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		s.logger.Warn("failed to create record counter", zap.Error(err))
	}

	return s, nil
}

// Record persists result for userID when it is strong enough. It never
// fails from the caller's point of view.
func (s *Service) Record(ctx context.Context, userID string, result detector.Result) {
	s.recordAt(ctx, userID, result, s.now())
}

// recordAt is Record with the observation time fixed by the caller.
func (s *Service) recordAt(ctx context.Context, userID string, result detector.Result, observedAt time.Time) {
	ctx, span := s.tracer.Start(ctx, "insights.record", trace.WithAttributes(
		attribute.String("insight.pattern_type", result.PatternType),
		attribute.Int("insight.strength", result.Strength),
	))
	defer span.End()

	if result.Strength < MinPersistStrength {
		s.count(ctx, outcomeBelowThreshold, result.PatternType)
		return
	}

	rec, err := s.store.Upsert(ctx, observationFor(userID, result, observedAt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(ctx, outcomeError, result.PatternType)
		s.logger.Warn("insight recording failed (degraded, non-fatal)",
			zap.String("user.id", userID),
			zap.String("pattern_type", result.PatternType),
			zap.Error(err),
		)
		return
	}

	s.count(ctx, outcomeRecorded, result.PatternType)
	span.SetAttributes(attribute.Int("insight.occurrences", rec.Occurrences))
	s.logger.Debug("insight recorded",
		zap.String("user.id", userID),
		zap.String("pattern_type", rec.PatternType),
		zap.Int("strength", rec.Strength),
		zap.Int("occurrences", rec.Occurrences),
	)

	if s.publisher != nil {
		err := s.publisher.PublishRecorded(ctx, RecordedEvent{
			EventID:     uuid.NewString(),
			UserID:      rec.UserID,
			PatternType: rec.PatternType,
			Strength:    rec.Strength,
			Occurrences: rec.Occurrences,
			Significant: advisory.IsSignificant(rec.Strength, rec.Occurrences),
			RecordedAt:  rec.LastSeen,
		})
		eventsTotal.WithLabelValues(SubjectRecorded, eventResult(err)).Inc()
		if err != nil {
			s.logger.Warn("publishing recorded event failed", zap.String("user.id", userID), zap.Error(err))
		}
	}
}

// RecordAll records every result in order.
func (s *Service) RecordAll(ctx context.Context, userID string, results []detector.Result) {
	s.recordAllAt(ctx, userID, results, s.now())
}

func (s *Service) recordAllAt(ctx context.Context, userID string, results []detector.Result, observedAt time.Time) {
	for _, r := range results {
		s.recordAt(ctx, userID, r, observedAt)
	}
}

// Delete removes a user's record for patternType. Deleting a missing record
// succeeds.
func (s *Service) Delete(ctx context.Context, userID, patternType string) error {
	ctx, span := s.tracer.Start(ctx, "insights.delete", trace.WithAttributes(
		attribute.String("insight.pattern_type", patternType),
	))
	defer span.End()

	if err := s.store.Delete(ctx, userID, patternType); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.logger.Info("insight deleted",
		zap.String("user.id", userID),
		zap.String("pattern_type", patternType),
	)

	if s.publisher != nil {
		err := s.publisher.PublishDeleted(ctx, DeletedEvent{
			EventID:     uuid.NewString(),
			UserID:      userID,
			PatternType: patternType,
			DeletedAt:   s.now().UTC(),
		})
		eventsTotal.WithLabelValues(SubjectDeleted, eventResult(err)).Inc()
		if err != nil {
			s.logger.Warn("publishing deleted event failed", zap.String("user.id", userID), zap.Error(err))
		}
	}
	return nil
}

// List returns up to DefaultListLimit records, strongest first.
func (s *Service) List(ctx context.Context, userID string) ([]insightstore.Record, error) {
	ctx, span := s.tracer.Start(ctx, "insights.list")
	defer span.End()

	records, err := s.store.List(ctx, userID, DefaultListLimit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return records, nil
}

// Advisory returns the advisory block for userID, or "" when nothing is
// significant yet.
func (s *Service) Advisory(ctx context.Context, userID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "insights.advisory")
	defer span.End()

	records, err := s.store.List(ctx, userID, 0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	text := s.builder.Build(records)
	span.SetAttributes(attribute.Bool("advisory.empty", text == ""))
	return text, nil
}

func (s *Service) count(ctx context.Context, outcome, patternType string) {
	recordsTotal.WithLabelValues(outcome).Inc()
	if s.recordCounter != nil {
		s.recordCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.String("pattern_type", patternType),
		))
	}
}

// observationFor maps a detection onto the persisted shape. Insight combines
// the description with the reflection prompt and evidence joins the labels.
func observationFor(userID string, r detector.Result, at time.Time) insightstore.Observation {
	insight := r.Description
	if r.ReflectionPrompt != "" {
		insight = strings.TrimSpace(insight + " " + r.ReflectionPrompt)
	}
	return insightstore.Observation{
		UserID:      userID,
		PatternType: r.PatternType,
		InsightType: string(r.Kind),
		Insight:     insight,
		Evidence:    strings.Join(r.Indicators, ", "),
		Strength:    r.Strength,
		ObservedAt:  at,
	}
}
