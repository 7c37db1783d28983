package shares

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/collab/pkg/capability"
)

// fakeStore is an in-memory Store for authority tests.
type fakeStore struct {
	shares     map[int64]*Share
	byKey      map[string]*Share
	admissions map[int64]*Admission
	nextShare  int64
	nextAdm    int64

	duplicateCreates int
	createCalls      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		shares:     make(map[int64]*Share),
		byKey:      make(map[string]*Share),
		admissions: make(map[int64]*Admission),
	}
}

func (f *fakeStore) Create(_ context.Context, s *Share) error {
	f.createCalls++
	if f.createCalls <= f.duplicateCreates {
		return ErrDuplicateKey
	}
	f.nextShare++
	s.ID = f.nextShare
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	f.shares[s.ID] = &cp
	f.byKey[s.ShareKey] = &cp
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*Share, error) {
	s, ok := f.shares[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "share %d not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GetByKey(_ context.Context, key string) (*Share, error) {
	s, ok := f.byKey[key]
	if !ok {
		return nil, capability.NewError(capability.KindNotFound, "no share for key")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListByProject(_ context.Context, projectID int64) ([]*Share, error) {
	var out []*Share
	for _, s := range f.shares {
		if s.ProjectID == projectID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) Revoke(_ context.Context, id int64, at time.Time) (*Share, error) {
	s, ok := f.shares[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "share %d not found", id)
	}
	if !s.IsRevoked {
		s.IsRevoked = true
		t := at.UTC()
		s.RevokedAt = &t
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) CreateAdmission(_ context.Context, a *Admission) error {
	f.nextAdm++
	a.ID = f.nextAdm
	a.Status = AdmissionPending
	a.RequestedAt = time.Now().UTC()
	cp := *a
	f.admissions[a.ID] = &cp
	return nil
}

func (f *fakeStore) GetAdmission(_ context.Context, id int64) (*Admission, error) {
	a, ok := f.admissions[id]
	if !ok {
		return nil, capability.Errorf(capability.KindNotFound, "admission %d not found", id)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) ListAdmissions(_ context.Context, shareID int64) ([]*Admission, error) {
	var out []*Admission
	for _, a := range f.admissions {
		if a.ShareID == shareID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) DecideAdmission(_ context.Context, id int64, status AdmissionStatus, at time.Time) (bool, error) {
	a, ok := f.admissions[id]
	if !ok || a.Status != AdmissionPending {
		return false, nil
	}
	a.Status = status
	t := at.UTC()
	a.DecidedAt = &t
	return true, nil
}

var _ Store = (*fakeStore)(nil)

type fakeOwners map[int64]string

func (f fakeOwners) OwnerOf(_ context.Context, projectID int64) (string, error) {
	owner, ok := f[projectID]
	if !ok {
		return "", capability.Errorf(capability.KindNotFound, "project %d not found", projectID)
	}
	return owner, nil
}

func newTestAuthority(store *fakeStore) *Authority {
	return NewAuthority(store, fakeOwners{7: "owner-1", 8: "owner-2"})
}

func TestAuthority_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("empty permissions default to view", func(t *testing.T) {
		a := newTestAuthority(newFakeStore())

		share, err := a.Create(ctx, "owner-1", 7, CreateRequest{Label: "beta readers"})
		require.NoError(t, err)
		assert.Equal(t, capability.TagSet{capability.TagView}, share.Permissions)
		assert.True(t, share.Allows(capability.OpView))
		assert.False(t, share.Allows(capability.OpEdit))
		require.NoError(t, capability.NewShareKeyGenerator().ValidateFormat(share.ShareKey))
	})

	t.Run("edit implies view", func(t *testing.T) {
		a := newTestAuthority(newFakeStore())

		share, err := a.Create(ctx, "owner-1", 7, CreateRequest{
			Permissions: capability.TagSet{capability.TagEdit},
		})
		require.NoError(t, err)
		assert.True(t, share.Allows(capability.OpView))
		assert.True(t, share.Allows(capability.OpEdit))
		assert.False(t, share.Allows(capability.OpDelete))
	})

	t.Run("unknown tag is rejected", func(t *testing.T) {
		a := newTestAuthority(newFakeStore())

		_, err := a.Create(ctx, "owner-1", 7, CreateRequest{
			Permissions: capability.TagSet{"admin"},
		})
		assert.True(t, capability.IsKind(err, capability.KindValidationInput))
	})

	t.Run("non-owner is forbidden", func(t *testing.T) {
		a := newTestAuthority(newFakeStore())

		_, err := a.Create(ctx, "owner-2", 7, CreateRequest{})
		assert.True(t, capability.IsKind(err, capability.KindForbidden))
	})

	t.Run("retries on key collision", func(t *testing.T) {
		store := newFakeStore()
		store.duplicateCreates = 1
		a := newTestAuthority(store)

		_, err := a.Create(ctx, "owner-1", 7, CreateRequest{})
		require.NoError(t, err)
		assert.Equal(t, 2, store.createCalls)
	})
}

func TestAuthority_Revoke_Idempotent(t *testing.T) {
	ctx := context.Background()
	a := newTestAuthority(newFakeStore())

	share, err := a.Create(ctx, "owner-1", 7, CreateRequest{})
	require.NoError(t, err)

	first, err := a.Revoke(ctx, "owner-1", share.ID)
	require.NoError(t, err)
	require.NotNil(t, first.RevokedAt)

	second, err := a.Revoke(ctx, "owner-1", share.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.RevokedAt, *second.RevokedAt)
}

func TestAuthority_ValidateShareKey(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	setup := func() *Authority {
		a := newTestAuthority(newFakeStore())
		a.now = func() time.Time { return now }
		return a
	}

	t.Run("live key is valid", func(t *testing.T) {
		a := setup()
		share, err := a.Create(ctx, "owner-1", 7, CreateRequest{})
		require.NoError(t, err)

		v, err := a.ValidateShareKey(ctx, share.ShareKey)
		require.NoError(t, err)
		assert.True(t, v.Valid)
		assert.Equal(t, int64(7), v.Share.ProjectID)
	})

	t.Run("session code is not a share key", func(t *testing.T) {
		a := setup()
		code, err := capability.NewSessionCodeGenerator().Generate()
		require.NoError(t, err)

		v, err := a.ValidateShareKey(ctx, code)
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, capability.KindNotFound, v.Reason)
	})

	t.Run("past deadline reports expired", func(t *testing.T) {
		a := setup()
		past := now.Add(-time.Hour)
		share, err := a.Create(ctx, "owner-1", 7, CreateRequest{Deadline: &past})
		require.NoError(t, err)

		v, err := a.ValidateShareKey(ctx, share.ShareKey)
		require.NoError(t, err)
		assert.False(t, v.Valid)
		assert.Equal(t, capability.KindExpired, v.Reason)
	})

	t.Run("revoked wins over deadline", func(t *testing.T) {
		a := setup()
		past := now.Add(-time.Hour)
		share, err := a.Create(ctx, "owner-1", 7, CreateRequest{Deadline: &past})
		require.NoError(t, err)
		_, err = a.Revoke(ctx, "owner-1", share.ID)
		require.NoError(t, err)

		v, err := a.ValidateShareKey(ctx, share.ShareKey)
		require.NoError(t, err)
		assert.Equal(t, capability.KindRevoked, v.Reason)
	})
}

func TestAuthority_Admissions(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*Authority, *Share) {
		a := newTestAuthority(newFakeStore())
		share, err := a.Create(ctx, "owner-1", 7, CreateRequest{RequiresApproval: true})
		require.NoError(t, err)
		return a, share
	}

	t.Run("request and approve", func(t *testing.T) {
		a, share := setup(t)

		adm, err := a.RequestAdmission(ctx, share.ShareKey, AdmissionRequest{GuestName: "alex"})
		require.NoError(t, err)
		assert.Equal(t, AdmissionPending, adm.Status)

		approved, err := a.Approve(ctx, "owner-1", adm.ID)
		require.NoError(t, err)
		assert.Equal(t, AdmissionApproved, approved.Status)
		assert.NotNil(t, approved.DecidedAt)

		admitted, err := a.IsAdmitted(ctx, share.ID, "alex")
		require.NoError(t, err)
		assert.True(t, admitted)
	})

	t.Run("reject is final", func(t *testing.T) {
		a, share := setup(t)

		adm, err := a.RequestAdmission(ctx, share.ShareKey, AdmissionRequest{GuestName: "sam"})
		require.NoError(t, err)

		_, err = a.Reject(ctx, "owner-1", adm.ID)
		require.NoError(t, err)

		_, err = a.Approve(ctx, "owner-1", adm.ID)
		assert.True(t, capability.IsKind(err, capability.KindTerminal))

		admitted, err := a.IsAdmitted(ctx, share.ID, "sam")
		require.NoError(t, err)
		assert.False(t, admitted)
	})

	t.Run("repeat decision is a no-op", func(t *testing.T) {
		a, share := setup(t)

		adm, err := a.RequestAdmission(ctx, share.ShareKey, AdmissionRequest{GuestName: "kit"})
		require.NoError(t, err)

		first, err := a.Approve(ctx, "owner-1", adm.ID)
		require.NoError(t, err)

		second, err := a.Approve(ctx, "owner-1", adm.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Status, second.Status)
	})

	t.Run("only the owner decides", func(t *testing.T) {
		a, share := setup(t)

		adm, err := a.RequestAdmission(ctx, share.ShareKey, AdmissionRequest{GuestName: "alex"})
		require.NoError(t, err)

		_, err = a.Approve(ctx, "owner-2", adm.ID)
		assert.True(t, capability.IsKind(err, capability.KindForbidden))
	})

	t.Run("open share refuses admission requests", func(t *testing.T) {
		a := newTestAuthority(newFakeStore())
		share, err := a.Create(ctx, "owner-1", 7, CreateRequest{})
		require.NoError(t, err)

		_, err = a.RequestAdmission(ctx, share.ShareKey, AdmissionRequest{GuestName: "alex"})
		assert.True(t, capability.IsKind(err, capability.KindValidationInput))
	})

	t.Run("revoked share refuses admission requests", func(t *testing.T) {
		a, share := setup(t)
		_, err := a.Revoke(ctx, "owner-1", share.ID)
		require.NoError(t, err)

		_, err = a.RequestAdmission(ctx, share.ShareKey, AdmissionRequest{GuestName: "alex"})
		assert.True(t, capability.IsKind(err, capability.KindRevoked))
	})

	t.Run("blank guest name is rejected", func(t *testing.T) {
		a, share := setup(t)

		_, err := a.RequestAdmission(ctx, share.ShareKey, AdmissionRequest{GuestName: "   "})
		assert.True(t, capability.IsKind(err, capability.KindValidationInput))
	})
}
