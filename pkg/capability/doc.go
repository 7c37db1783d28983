// Package capability defines the capability-token model shared by
// collaboration sessions and project shares.
//
// # Overview
//
// A capability token binds an opaque, unguessable code to exactly one
// project and a permission model. Sessions carry a fixed set of boolean
// flags; shares carry a free-form tag set. Both are represented behind the
// Permissions interface so the authorities and the guest gateway never
// branch on token kind when checking an operation.
//
// # AccessGrant
//
// Validation produces an AccessGrant, the only value guest-facing code is
// allowed to consume. It carries the project id, the token kind, and the
// permission model - nothing else. Owner identity, billing state, and other
// record fields never cross this boundary.
//
//	grant := capability.NewGrant(session.ProjectID, capability.KindSession, session.Flags())
//	if !grant.Allows(capability.OpEditScene) {
//		return capability.Errorf(capability.KindForbidden, "scene editing not permitted")
//	}
//
// # Errors
//
// All authorization failures are *capability.Error values with a Kind that
// callers branch on; no caller should ever match error strings.
//
// # Related Packages
//
//   - pkg/sessions: session authority built on this model
//   - pkg/shares: share authority built on this model
//   - pkg/guest: consumes AccessGrant values
package capability
