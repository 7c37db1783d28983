package audit

import (
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventSessionCreated   EventType = "session.created"
	EventSessionRenewed   EventType = "session.renewed"
	EventSessionRevoked   EventType = "session.revoked"
	EventSessionValidated EventType = "session.validated"

	EventShareCreated   EventType = "share.created"
	EventShareRevoked   EventType = "share.revoked"
	EventShareValidated EventType = "share.validated"

	EventAdmissionRequested EventType = "admission.requested"
	EventAdmissionApproved  EventType = "admission.approved"
	EventAdmissionRejected  EventType = "admission.rejected"

	EventGuestRead  EventType = "guest.read"
	EventGuestWrite EventType = "guest.write"
)

// EventStatus is the outcome of the recorded action.
type EventStatus string

const (
	StatusSuccess EventStatus = "success"
	StatusFailure EventStatus = "failure"
	StatusDenied  EventStatus = "denied"
)

// Event is one audit record. ActorID is the owner identity for owner
// actions and empty for guest actions; guests are correlated by the
// token prefix and client IP instead.
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	ActorID     string `json:"actor_id,omitempty"`
	TokenPrefix string `json:"token_prefix,omitempty"`

	ProjectID *int64 `json:"project_id,omitempty"`
	SessionID *int64 `json:"session_id,omitempty"`
	ShareID   *int64 `json:"share_id,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Filter narrows a Search. Zero values match everything.
type Filter struct {
	EventType EventType
	Status    EventStatus
	ActorID   string
	ProjectID *int64
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Normalize clamps paging to sane bounds.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
