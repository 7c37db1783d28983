// Package sessions implements the collaboration session authority.
//
// # Overview
//
// A collaboration session is a capability token an owner creates against
// one of their projects. It carries an opaque access code, optional expiry,
// an optional participant cap, and a fixed set of permission flags that
// default to permissive. The authority owns the full lifecycle: create,
// renew, revoke, validate.
//
// # Lifecycle rules
//
// Revocation is a tombstone: the row is never deleted, revoked_at is set
// exactly once, and no operation can clear it. Renewing a revoked session
// fails with Terminal regardless of the requested expiry. Validation checks
// liveness only - participant caps are enforced by the guest gateway at
// admission time, because the authority has no notion of a current
// participant.
//
// # Related Packages
//
//   - pkg/capability: token model, error kinds, code generation
//   - pkg/guest: consumes validation results, enforces admission
package sessions
