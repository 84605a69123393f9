// Package logging builds the service's zap logger.
//
// NewLogger tees stdout (JSON or console) with the OpenTelemetry log
// pipeline through the otelzap bridge. Every output sits behind a
// redacting core: values of keys such as "token", "dsn" or "evidence"
// become [REDACTED], and connection-string credentials and bearer tokens
// are cut out of messages and string values. User text therefore never
// reaches a log line.
//
// Entries below WarnLevel are sampled per message; drops are counted in
// insightd_logging_entries_dropped_total.
//
// Logger methods take a context and prepend its correlation fields:
//
//	ctx = logging.WithUserID(ctx, "u_42")
//	logger.Info(ctx, "insight recorded", zap.String("pattern_type", pt))
//
// adds "user.id" plus "trace_id" and "span_id" when ctx carries a span.
// Packages that take a *zap.Logger get one from Underlying.
package logging
