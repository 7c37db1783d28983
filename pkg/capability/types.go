package capability

import "time"

// TokenKind identifies which authority issued a capability token.
type TokenKind string

const (
	KindSession TokenKind = "session"
	KindShare   TokenKind = "share"
)

// Operation is a guest-requested action checked against a token's permissions.
type Operation string

const (
	OpView      Operation = "view"
	OpComment   Operation = "comment"
	OpEdit      Operation = "edit"
	OpDelete    Operation = "delete"
	OpAddScene  Operation = "add_scene"
	OpEditScene Operation = "edit_scene"
)

// Permissions is the capability check common to both token kinds.
type Permissions interface {
	Allows(op Operation) bool
}

// SessionFlags is the fixed permission flag set carried by collaboration
// sessions. Flags default to permissive at creation.
type SessionFlags struct {
	AllowGuests     bool `json:"allow_guests"`
	AllowEdit       bool `json:"allow_edit"`
	AllowDelete     bool `json:"allow_delete"`
	AllowAddScenes  bool `json:"allow_add_scenes"`
	AllowEditScenes bool `json:"allow_edit_scenes"`
}

// DefaultSessionFlags returns the permissive default flag set.
func DefaultSessionFlags() SessionFlags {
	return SessionFlags{
		AllowGuests:     true,
		AllowEdit:       true,
		AllowDelete:     true,
		AllowAddScenes:  true,
		AllowEditScenes: true,
	}
}

// Allows maps operations onto the flag set. View and comment ride on
// AllowGuests since a session without guest access grants nothing.
func (f SessionFlags) Allows(op Operation) bool {
	switch op {
	case OpView, OpComment:
		return f.AllowGuests
	case OpEdit:
		return f.AllowGuests && f.AllowEdit
	case OpDelete:
		return f.AllowGuests && f.AllowDelete
	case OpAddScene:
		return f.AllowGuests && f.AllowAddScenes
	case OpEditScene:
		return f.AllowGuests && f.AllowEditScenes
	default:
		return false
	}
}

// Tag is a granted capability tag on a project share.
type Tag string

const (
	TagView    Tag = "view"
	TagComment Tag = "comment"
	TagEdit    Tag = "edit"
	TagDelete  Tag = "delete"
)

// ValidTag reports whether t is a recognized share permission tag.
func ValidTag(t Tag) bool {
	switch t {
	case TagView, TagComment, TagEdit, TagDelete:
		return true
	}
	return false
}

// TagSet is the share permission model: membership grants the operation.
type TagSet []Tag

// Contains reports whether the set grants the given tag.
func (s TagSet) Contains(t Tag) bool {
	for _, have := range s {
		if have == t {
			return true
		}
	}
	return false
}

// Allows maps operations onto tag membership. Scene mutations fall under
// the edit tag; there is no per-resource tag granularity for shares.
func (s TagSet) Allows(op Operation) bool {
	switch op {
	case OpView:
		return s.Contains(TagView) || s.Contains(TagEdit) || s.Contains(TagComment)
	case OpComment:
		return s.Contains(TagComment) || s.Contains(TagEdit)
	case OpEdit, OpAddScene, OpEditScene:
		return s.Contains(TagEdit)
	case OpDelete:
		return s.Contains(TagDelete)
	default:
		return false
	}
}

// AccessGrant is the minimal authorization result derived from a successful
// validation. It deliberately carries no owner identity and no record
// fields beyond what scoping requires.
type AccessGrant struct {
	ProjectID   int64
	Kind        TokenKind
	Permissions Permissions
}

// NewGrant builds an AccessGrant for a validated token.
func NewGrant(projectID int64, kind TokenKind, perms Permissions) *AccessGrant {
	return &AccessGrant{
		ProjectID:   projectID,
		Kind:        kind,
		Permissions: perms,
	}
}

// Allows checks an operation against the grant's permission model.
func (g *AccessGrant) Allows(op Operation) bool {
	if g == nil || g.Permissions == nil {
		return false
	}
	return g.Permissions.Allows(op)
}

// CheckLiveness applies the shared liveness rule: a token is live when it
// has not been revoked and either never expires or has not yet expired.
// Revocation wins over expiry so a revoked-and-expired token reports Revoked.
func CheckLiveness(revokedAt, expiresAt *time.Time, now time.Time) error {
	if revokedAt != nil {
		return Errorf(KindRevoked, "token revoked at %s", revokedAt.UTC().Format(time.RFC3339))
	}
	if expiresAt != nil && now.After(*expiresAt) {
		return Errorf(KindExpired, "token expired at %s", expiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}
