package shares

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/projects"
)

// maxKeyAttempts bounds the collision-retry loop in Create, mirroring
// the session authority.
const maxKeyAttempts = 5

// Authority owns the project share lifecycle.
type Authority struct {
	store  Store
	owners projects.OwnerResolver
	keys   *capability.CodeGenerator
	now    func() time.Time
}

// NewAuthority creates a share authority over the given store.
func NewAuthority(store Store, owners projects.OwnerResolver) *Authority {
	return &Authority{
		store:  store,
		owners: owners,
		keys:   capability.NewShareKeyGenerator(),
		now:    time.Now,
	}
}

// Create issues a new share for a project the caller owns. An empty
// permission list defaults to view-only; unknown tags are rejected.
func (a *Authority) Create(ctx context.Context, ownerID string, projectID int64, req CreateRequest) (*Share, error) {
	if ownerID == "" {
		return nil, capability.NewError(capability.KindValidationInput, "owner id is required")
	}
	if projectID <= 0 {
		return nil, capability.NewError(capability.KindValidationInput, "project id is required")
	}
	for _, tag := range req.Permissions {
		if !capability.ValidTag(tag) {
			return nil, capability.Errorf(capability.KindValidationInput, "unknown permission tag %q", tag)
		}
	}

	owner, err := a.owners.OwnerOf(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, capability.Errorf(capability.KindForbidden, "project %d is not owned by the caller", projectID)
	}

	perms := req.Permissions
	if len(perms) == 0 {
		perms = capability.TagSet{capability.TagView}
	}

	share := &Share{
		ProjectID:        projectID,
		OwnerID:          ownerID,
		Label:            req.Label,
		Deadline:         req.Deadline,
		RequiresApproval: req.RequiresApproval,
		Permissions:      perms,
	}

	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := a.keys.Generate()
		if err != nil {
			return nil, err
		}
		share.ShareKey = key

		err = a.store.Create(ctx, share)
		if errors.Is(err, ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return share, nil
	}

	return nil, capability.Errorf(capability.KindGenerationExhausted,
		"no free share key after %d attempts", maxKeyAttempts)
}

// Get returns a share to its owner.
func (a *Authority) Get(ctx context.Context, ownerID string, shareID int64) (*Share, error) {
	share, err := a.store.GetByID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if share.OwnerID != ownerID {
		return nil, capability.NewError(capability.KindForbidden, "share is not owned by the caller")
	}
	return share, nil
}

// ListByProject lists a project's shares for its owner.
func (a *Authority) ListByProject(ctx context.Context, ownerID string, projectID int64) ([]*Share, error) {
	owner, err := a.owners.OwnerOf(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if owner != ownerID {
		return nil, capability.Errorf(capability.KindForbidden, "project %d is not owned by the caller", projectID)
	}
	return a.store.ListByProject(ctx, projectID)
}

// Revoke tombstones a share. Idempotent, same as session revocation.
func (a *Authority) Revoke(ctx context.Context, ownerID string, shareID int64) (*Share, error) {
	share, err := a.store.GetByID(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if share.OwnerID != ownerID {
		return nil, capability.NewError(capability.KindForbidden, "share is not owned by the caller")
	}
	if share.IsRevoked {
		return share, nil
	}
	return a.store.Revoke(ctx, shareID, a.now())
}

// ValidateShareKey resolves an opaque key to a structured liveness
// outcome. A share past its deadline reports Expired; approval gating is
// the gateway's concern, not liveness.
func (a *Authority) ValidateShareKey(ctx context.Context, key string) (Validation, error) {
	if err := a.keys.ValidateFormat(key); err != nil {
		return Validation{Valid: false, Reason: capability.KindNotFound}, nil
	}

	share, err := a.store.GetByKey(ctx, key)
	if capability.IsKind(err, capability.KindNotFound) {
		return Validation{Valid: false, Reason: capability.KindNotFound}, nil
	}
	if err != nil {
		return Validation{}, err
	}

	if err := capability.CheckLiveness(share.RevokedAt, share.Deadline, a.now()); err != nil {
		return Validation{Valid: false, Reason: capability.KindOf(err)}, nil
	}

	return Validation{Valid: true, Share: share}, nil
}

// RequestAdmission files a guest's request to join an approval-gated
// share. The share must be live; guests of open shares never need one.
func (a *Authority) RequestAdmission(ctx context.Context, key string, req AdmissionRequest) (*Admission, error) {
	name := strings.TrimSpace(req.GuestName)
	if name == "" {
		return nil, capability.NewError(capability.KindValidationInput, "guest name is required")
	}

	v, err := a.ValidateShareKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, capability.NewError(v.Reason, "share is not live")
	}
	if !v.Share.RequiresApproval {
		return nil, capability.NewError(capability.KindValidationInput, "share does not require approval")
	}

	admission := &Admission{
		ShareID:   v.Share.ID,
		GuestName: name,
	}
	if err := a.store.CreateAdmission(ctx, admission); err != nil {
		return nil, err
	}
	return admission, nil
}

// ListAdmissions lists a share's admission requests for its owner.
func (a *Authority) ListAdmissions(ctx context.Context, ownerID string, shareID int64) ([]*Admission, error) {
	if _, err := a.Get(ctx, ownerID, shareID); err != nil {
		return nil, err
	}
	return a.store.ListAdmissions(ctx, shareID)
}

// Approve moves a pending admission to approved. Repeating the same
// decision is a no-op; reversing a decision fails Terminal.
func (a *Authority) Approve(ctx context.Context, ownerID string, admissionID int64) (*Admission, error) {
	return a.decide(ctx, ownerID, admissionID, AdmissionApproved)
}

// Reject moves a pending admission to rejected. Repeating the same
// decision is a no-op; reversing a decision fails Terminal.
func (a *Authority) Reject(ctx context.Context, ownerID string, admissionID int64) (*Admission, error) {
	return a.decide(ctx, ownerID, admissionID, AdmissionRejected)
}

func (a *Authority) decide(ctx context.Context, ownerID string, admissionID int64, status AdmissionStatus) (*Admission, error) {
	admission, err := a.store.GetAdmission(ctx, admissionID)
	if err != nil {
		return nil, err
	}

	// Owner check goes through the share the admission belongs to.
	if _, err := a.Get(ctx, ownerID, admission.ShareID); err != nil {
		return nil, err
	}

	if admission.Status == status {
		return admission, nil
	}
	if admission.Status != AdmissionPending {
		return nil, capability.Errorf(capability.KindTerminal,
			"admission %d already %s", admissionID, admission.Status)
	}

	decided, err := a.store.DecideAdmission(ctx, admissionID, status, a.now())
	if err != nil {
		return nil, err
	}
	if !decided {
		// Lost a race with another decision.
		return nil, capability.Errorf(capability.KindTerminal, "admission %d already decided", admissionID)
	}

	return a.store.GetAdmission(ctx, admissionID)
}

// IsAdmitted reports whether a guest name holds an approved admission on
// the share. Used by the gateway for approval-gated shares.
func (a *Authority) IsAdmitted(ctx context.Context, shareID int64, guestName string) (bool, error) {
	admissions, err := a.store.ListAdmissions(ctx, shareID)
	if err != nil {
		return false, err
	}
	for _, adm := range admissions {
		if adm.GuestName == guestName && adm.Status == AdmissionApproved {
			return true, nil
		}
	}
	return false, nil
}
