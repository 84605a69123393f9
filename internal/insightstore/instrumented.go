package insightstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fyrsmithlabs/insightd/internal/insightstore"

var (
	// OperationDuration tracks store operation latency.
	// Labels: backend, op (upsert, delete, list)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "insightd",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Duration of insight store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// OperationErrors counts failed store operations.
	// Labels: backend, op
	OperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "insightd",
			Subsystem: "store",
			Name:      "operation_errors_total",
			Help:      "Total number of failed insight store operations",
		},
		[]string{"backend", "op"},
	)
)

// instrumentedStore records metrics and spans around another Store.
type instrumentedStore struct {
	next    Store
	backend string
	tracer  trace.Tracer
}

// Instrument wraps store with Prometheus metrics and OpenTelemetry spans.
func Instrument(store Store, backend string) Store {
	return &instrumentedStore{
		next:    store,
		backend: backend,
		tracer:  otel.Tracer(instrumentationName),
	}
}

func (s *instrumentedStore) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	attrs = append(attrs, attribute.String("db.system", s.backend))
	ctx, span := s.tracer.Start(ctx, "insightstore."+op, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (s *instrumentedStore) finish(span trace.Span, op string, began time.Time, err error) {
	OperationDuration.WithLabelValues(s.backend, op).Observe(time.Since(began).Seconds())
	if err != nil {
		OperationErrors.WithLabelValues(s.backend, op).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *instrumentedStore) Upsert(ctx context.Context, obs Observation) (*Record, error) {
	ctx, span, began := s.start(ctx, "upsert", attribute.String("insight.pattern_type", obs.PatternType))
	rec, err := s.next.Upsert(ctx, obs)
	if err == nil {
		span.SetAttributes(attribute.Int("insight.occurrences", rec.Occurrences))
	}
	s.finish(span, "upsert", began, err)
	return rec, err
}

func (s *instrumentedStore) Delete(ctx context.Context, userID, patternType string) error {
	ctx, span, began := s.start(ctx, "delete", attribute.String("insight.pattern_type", patternType))
	err := s.next.Delete(ctx, userID, patternType)
	s.finish(span, "delete", began, err)
	return err
}

func (s *instrumentedStore) List(ctx context.Context, userID string, limit int) ([]Record, error) {
	ctx, span, began := s.start(ctx, "list", attribute.Int("insight.limit", limit))
	records, err := s.next.List(ctx, userID, limit)
	if err == nil {
		span.SetAttributes(attribute.Int("insight.count", len(records)))
	}
	s.finish(span, "list", began, err)
	return records, err
}

func (s *instrumentedStore) Close() error {
	return s.next.Close()
}

// Unwrap returns the wrapped store.
func (s *instrumentedStore) Unwrap() Store {
	return s.next
}
