package sessions

import (
	"time"

	"github.com/fableworks/collab/pkg/capability"
)

// Session is a collaboration session record. project_id, owner_id, and
// access_code are immutable after creation; title, description, expiry,
// and the revocation tombstone are the only mutable fields.
type Session struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	OwnerID     string `json:"owner_id"`
	AccessCode  string `json:"access_code"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	MaxParticipants *int       `json:"max_participants,omitempty"`

	capability.SessionFlags

	IsRevoked bool       `json:"is_revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Flags returns the session's permission flag set.
func (s *Session) Flags() capability.SessionFlags {
	return s.SessionFlags
}

// GuestView is the safe subset of a session returned to guests on
// validation. No id, no owner, no timestamps beyond expiry.
type GuestView struct {
	ProjectID       int64                   `json:"project_id"`
	Title           string                  `json:"title,omitempty"`
	Description     string                  `json:"description,omitempty"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
	MaxParticipants *int                    `json:"max_participants,omitempty"`
	Flags           capability.SessionFlags `json:"permissions"`
}

// GuestView derives the guest-visible shape of a session.
func (s *Session) GuestView() GuestView {
	return GuestView{
		ProjectID:       s.ProjectID,
		Title:           s.Title,
		Description:     s.Description,
		ExpiresAt:       s.ExpiresAt,
		MaxParticipants: s.MaxParticipants,
		Flags:           s.SessionFlags,
	}
}

// CreateRequest carries owner-settable fields for session creation. Unset
// permission flags default to permissive; only explicit false restricts.
type CreateRequest struct {
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ExpiresAt       *time.Time `json:"expires_at"`
	MaxParticipants *int       `json:"max_participants"`

	AllowGuests     *bool `json:"allow_guests"`
	AllowEdit       *bool `json:"allow_edit"`
	AllowDelete     *bool `json:"allow_delete"`
	AllowAddScenes  *bool `json:"allow_add_scenes"`
	AllowEditScenes *bool `json:"allow_edit_scenes"`
}

func (r CreateRequest) flags() capability.SessionFlags {
	f := capability.DefaultSessionFlags()
	if r.AllowGuests != nil {
		f.AllowGuests = *r.AllowGuests
	}
	if r.AllowEdit != nil {
		f.AllowEdit = *r.AllowEdit
	}
	if r.AllowDelete != nil {
		f.AllowDelete = *r.AllowDelete
	}
	if r.AllowAddScenes != nil {
		f.AllowAddScenes = *r.AllowAddScenes
	}
	if r.AllowEditScenes != nil {
		f.AllowEditScenes = *r.AllowEditScenes
	}
	return f
}

// RenewRequest carries the new expiry for a renew call. A null expires_at
// clears expiry entirely.
type RenewRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

// Validation is the structured outcome of validateAccessCode. Reason is set
// only when Valid is false and is one of NotFound, Revoked, Expired.
type Validation struct {
	Valid   bool            `json:"valid"`
	Reason  capability.Kind `json:"reason,omitempty"`
	Session *Session        `json:"session,omitempty"`
}
