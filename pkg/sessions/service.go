package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/projects"
)

// maxCodeAttempts bounds the collision-retry loop in Create. With a
// 256-bit code space a single retry is already vanishingly unlikely; the
// bound exists so a broken unique index cannot turn into a spin.
const maxCodeAttempts = 5

// Authority owns the collaboration session lifecycle.
type Authority struct {
	store  Store
	owners projects.OwnerResolver
	codes  *capability.CodeGenerator
	now    func() time.Time
}

// NewAuthority creates a session authority over the given store.
func NewAuthority(store Store, owners projects.OwnerResolver) *Authority {
	return &Authority{
		store:  store,
		owners: owners,
		codes:  capability.NewSessionCodeGenerator(),
		now:    time.Now,
	}
}

// Create issues a new session for a project the caller owns. Unset flags
// default to permissive. Fails Forbidden when the caller does not own the
// project, and GenerationExhausted if no free access code is found within
// the bounded attempt count.
func (a *Authority) Create(ctx context.Context, ownerID string, projectID int64, req CreateRequest) (*Session, error) {
	if ownerID == "" {
		return nil, capability.NewError(capability.KindValidationInput, "owner id is required")
	}
	if projectID <= 0 {
		return nil, capability.NewError(capability.KindValidationInput, "project id is required")
	}

	owner, err := a.owners.OwnerOf(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, capability.Errorf(capability.KindForbidden, "project %d is not owned by the caller", projectID)
	}

	sess := &Session{
		ProjectID:       projectID,
		OwnerID:         ownerID,
		Title:           req.Title,
		Description:     req.Description,
		ExpiresAt:       req.ExpiresAt,
		MaxParticipants: req.MaxParticipants,
		SessionFlags:    req.flags(),
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := a.codes.Generate()
		if err != nil {
			return nil, err
		}
		sess.AccessCode = code

		err = a.store.Create(ctx, sess)
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	return nil, capability.Errorf(capability.KindGenerationExhausted,
		"no free access code after %d attempts", maxCodeAttempts)
}

// Get returns a session to its owner.
func (a *Authority) Get(ctx context.Context, ownerID string, sessionID int64) (*Session, error) {
	sess, err := a.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, capability.NewError(capability.KindForbidden, "session is not owned by the caller")
	}
	return sess, nil
}

// ListByProject lists a project's sessions for its owner.
func (a *Authority) ListByProject(ctx context.Context, ownerID string, projectID int64) ([]*Session, error) {
	owner, err := a.owners.OwnerOf(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, capability.Errorf(capability.KindForbidden, "project %d is not owned by the caller", projectID)
	}
	return a.store.ListByProject(ctx, projectID)
}

// Renew sets a session's expiry (nil clears it). A revoked session can
// never be renewed: that fails Terminal and leaves the record untouched.
// Renewing to the same value is a state-wise no-op.
func (a *Authority) Renew(ctx context.Context, ownerID string, sessionID int64, newExpiresAt *time.Time) (*Session, error) {
	sess, err := a.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, capability.NewError(capability.KindForbidden, "session is not owned by the caller")
	}
	if sess.IsRevoked {
		return nil, capability.Errorf(capability.KindTerminal, "session %d is revoked", sessionID)
	}
	return a.store.SetExpiry(ctx, sessionID, newExpiresAt)
}

// Revoke tombstones a session. Idempotent: revoking a revoked session
// returns the stored terminal state with its original revoked_at.
func (a *Authority) Revoke(ctx context.Context, ownerID string, sessionID int64) (*Session, error) {
	sess, err := a.store.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != ownerID {
		return nil, capability.NewError(capability.KindForbidden, "session is not owned by the caller")
	}
	if sess.IsRevoked {
		return sess, nil
	}
	return a.store.Revoke(ctx, sessionID, a.now())
}

// ValidateAccessCode resolves an opaque code to a structured liveness
// outcome. Participant caps are not checked here; the gateway enforces
// them at admission. Malformed codes report NotFound rather than leaking
// that the format was recognized.
func (a *Authority) ValidateAccessCode(ctx context.Context, code string) (Validation, error) {
	if err := a.codes.ValidateFormat(code); err != nil {
		return Validation{Valid: false, Reason: capability.KindNotFound}, nil
	}

	sess, err := a.store.GetByCode(ctx, code)
	if capability.IsKind(err, capability.KindNotFound) {
		return Validation{Valid: false, Reason: capability.KindNotFound}, nil
	}
	if err != nil {
		return Validation{}, err
	}

	if err := capability.CheckLiveness(sess.RevokedAt, sess.ExpiresAt, a.now()); err != nil {
		return Validation{Valid: false, Reason: capability.KindOf(err)}, nil
	}

	return Validation{Valid: true, Session: sess}, nil
}
