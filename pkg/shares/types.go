package shares

import (
	"time"

	"github.com/fableworks/collab/pkg/capability"
)

// Share is a project share record. project_id, owner_id, and share_key
// are immutable after creation.
type Share struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	OwnerID   string `json:"owner_id"`
	ShareKey  string `json:"share_key"`
	Label     string `json:"label,omitempty"`

	Deadline         *time.Time        `json:"deadline,omitempty"`
	RequiresApproval bool              `json:"requires_approval"`
	Permissions      capability.TagSet `json:"permissions"`

	IsRevoked bool       `json:"is_revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Allows checks an operation against the share's tag set.
func (s *Share) Allows(op capability.Operation) bool {
	return s.Permissions.Allows(op)
}

// GuestView is the safe subset of a share returned to guests on
// validation.
type GuestView struct {
	ProjectID        int64             `json:"project_id"`
	Label            string            `json:"label,omitempty"`
	Deadline         *time.Time        `json:"deadline,omitempty"`
	RequiresApproval bool              `json:"requires_approval"`
	Permissions      capability.TagSet `json:"permissions"`
}

// GuestView derives the guest-visible shape of a share.
func (s *Share) GuestView() GuestView {
	return GuestView{
		ProjectID:        s.ProjectID,
		Label:            s.Label,
		Deadline:         s.Deadline,
		RequiresApproval: s.RequiresApproval,
		Permissions:      s.Permissions,
	}
}

// CreateRequest carries owner-settable fields for share creation. An
// empty permission list defaults to view-only: a share that grants
// nothing is never useful, and view is the least it can mean.
type CreateRequest struct {
	Label            string            `json:"label"`
	Deadline         *time.Time        `json:"deadline"`
	RequiresApproval bool              `json:"requires_approval"`
	Permissions      capability.TagSet `json:"permissions"`
}

// Validation is the structured outcome of validateShareKey. Reason is
// set only when Valid is false.
type Validation struct {
	Valid  bool            `json:"valid"`
	Reason capability.Kind `json:"reason,omitempty"`
	Share  *Share          `json:"share,omitempty"`
}

// AdmissionStatus is the state of a guest admission request.
type AdmissionStatus string

const (
	AdmissionPending  AdmissionStatus = "pending"
	AdmissionApproved AdmissionStatus = "approved"
	AdmissionRejected AdmissionStatus = "rejected"
)

// Admission is one guest's request to join an approval-gated share.
// GuestName is a display handle supplied by the guest, not an identity.
type Admission struct {
	ID        int64           `json:"id"`
	ShareID   int64           `json:"share_id"`
	GuestName string          `json:"guest_name"`
	Status    AdmissionStatus `json:"status"`

	RequestedAt time.Time  `json:"requested_at"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
}

// AdmissionRequest is the guest-supplied body of a join call.
type AdmissionRequest struct {
	GuestName string `json:"guest_name"`
}
