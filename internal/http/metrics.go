package http

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/fyrsmithlabs/insightd/internal/http"

// unmatchedRoute labels requests that matched no route, keeping the label
// set bounded.
const unmatchedRoute = "unmatched"

// requestMetrics records one data point per request, labeled by route
// template rather than raw path so user and conversation IDs never become
// label values.
type requestMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	inflight metric.Int64UpDownCounter
}

func newRequestMetrics(meter metric.Meter) (*requestMetrics, error) {
	requests, err1 := meter.Int64Counter("insightd.http.requests",
		metric.WithDescription("HTTP requests served"),
		metric.WithUnit("{request}"))
	duration, err2 := meter.Float64Histogram("insightd.http.request.duration",
		metric.WithDescription("Time to serve an HTTP request"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	inflight, err3 := meter.Int64UpDownCounter("insightd.http.requests.inflight",
		metric.WithDescription("HTTP requests being served"),
		metric.WithUnit("{request}"))
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}
	return &requestMetrics{requests: requests, duration: duration, inflight: inflight}, nil
}

func routeLabel(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return unmatchedRoute
}

// statusClass maps 404 to "4xx" and so on.
func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// middleware writes handler errors itself so the recorded status is the one
// the client receives.
func (m *requestMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			start := time.Now()
			m.inflight.Add(ctx, 1)
			defer m.inflight.Add(ctx, -1)

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			attrs := metric.WithAttributes(
				attribute.String("http.request.method", c.Request().Method),
				attribute.String("http.route", routeLabel(c)),
				attribute.Int("http.response.status_code", status),
				attribute.String("http.response.status_class", statusClass(status)),
			)
			m.requests.Add(ctx, 1, attrs)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
			return nil
		}
	}
}
