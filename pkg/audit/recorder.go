package audit

import (
	"context"
	"time"
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *Event) error
	Close() error
}

// Nop is a Recorder that discards everything. Used when auditing is
// disabled and in tests.
type Nop struct{}

func (Nop) Record(context.Context, *Event) error { return nil }
func (Nop) Close() error                         { return nil }

// NewEvent builds an event with the timestamp set.
func NewEvent(eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
	}
}

// WithActor sets the owner identity.
func (e *Event) WithActor(actorID string) *Event {
	e.ActorID = actorID
	return e
}

// WithProject sets the project id.
func (e *Event) WithProject(projectID int64) *Event {
	e.ProjectID = &projectID
	return e
}

// WithSession sets the session id.
func (e *Event) WithSession(sessionID int64) *Event {
	e.SessionID = &sessionID
	return e
}

// WithShare sets the share id.
func (e *Event) WithShare(shareID int64) *Event {
	e.ShareID = &shareID
	return e
}

// WithTokenPrefix records the display prefix of a code or key.
func (e *Event) WithTokenPrefix(prefix string) *Event {
	e.TokenPrefix = prefix
	return e
}

// WithMessage sets the human-readable message.
func (e *Event) WithMessage(message string) *Event {
	e.Message = message
	return e
}

// WithRequest records the request id and client address.
func (e *Event) WithRequest(requestID, ipAddress string) *Event {
	e.RequestID = requestID
	e.IPAddress = ipAddress
	return e
}
