// Package observability provides structured logging, Prometheus metrics,
// health checks, OpenTelemetry wiring, and graceful shutdown for the
// collab service.
//
// Logging is slog-backed JSON with a small fluent wrapper. Metrics cover
// the HTTP surface plus the authorization-specific families: validation
// outcomes by token kind and reason, grants issued, scoped reads/writes,
// and rate-limit rejections - the counters an operator actually watches on
// an access-code service.
package observability
