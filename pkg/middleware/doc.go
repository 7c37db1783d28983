// Package middleware provides the HTTP cross-cutting layers for the
// collab service: owner authentication, guest rate limiting, and request
// id propagation.
//
// Owner routes require a Bearer token resolved to an owner identity by a
// TokenVerifier. Guest routes carry no identity at all; they are rate
// limited by client IP instead, with a Redis-backed limiter shared across
// instances and an in-memory fallback.
package middleware
