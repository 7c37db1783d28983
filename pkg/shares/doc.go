// Package shares implements project share links: revocable, optionally
// deadline-bounded keys that grant tag-based permissions on a single
// project.
//
// Shares mirror the session lifecycle (create, revoke, validate) but
// carry a TagSet instead of fixed flags, and may require owner approval
// before a guest is admitted. The admission state machine is strict:
// pending requests move to approved or rejected exactly once, by the
// owner only.
package shares
