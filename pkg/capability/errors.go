package capability

import (
	"errors"
	"fmt"
)

// Kind classifies an authorization failure. Callers branch on Kind, never
// on error strings.
type Kind string

const (
	// KindNotFound means no record exists for the given id, code, or key.
	KindNotFound Kind = "not_found"
	// KindExpired means the token's expiry timestamp has passed.
	KindExpired Kind = "expired"
	// KindRevoked means the token carries a revocation tombstone.
	KindRevoked Kind = "revoked"
	// KindTerminal means a mutation was attempted on a revoked record.
	KindTerminal Kind = "terminal"
	// KindForbidden means the caller lacks ownership or the grant lacks the
	// required permission.
	KindForbidden Kind = "forbidden"
	// KindGenerationExhausted means code generation hit its bounded attempt
	// count without finding a free value.
	KindGenerationExhausted Kind = "generation_exhausted"
	// KindValidationInput means a required field was missing or malformed.
	KindValidationInput Kind = "validation_input"
)

// GuestDeniedMessage is the single guest-visible message for NotFound,
// Revoked, and Expired outcomes. Guests must not be able to distinguish a
// nonexistent code from a dead one; the precise kind stays in logs and
// metrics.
const GuestDeniedMessage = "invalid or expired access code"

// Error is a structured authorization error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match two capability errors by kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// NewError creates a capability error with the given kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a capability error with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error chain, or "" for non-capability
// errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
