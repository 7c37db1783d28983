package guest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/sessions"
	"github.com/fableworks/collab/pkg/shares"
)

type gatewayEnv struct {
	sessionStore *fakeSessionStore
	shareStore   *fakeShareStore
	sessions     *sessions.Authority
	shares       *shares.Authority
	gateway      *Gateway
}

func newGatewayEnv() *gatewayEnv {
	owners := fakeOwners{7: "owner-1", 8: "owner-2"}
	sessionStore := newFakeSessionStore()
	shareStore := newFakeShareStore()
	sessionAuthority := sessions.NewAuthority(sessionStore, owners)
	shareAuthority := shares.NewAuthority(shareStore, owners)
	return &gatewayEnv{
		sessionStore: sessionStore,
		shareStore:   shareStore,
		sessions:     sessionAuthority,
		shares:       shareAuthority,
		gateway:      NewGateway(sessionAuthority, shareAuthority),
	}
}

func TestGatewayResolveSession(t *testing.T) {
	env := newGatewayEnv()
	ctx := context.Background()

	sess, err := env.sessions.Create(ctx, "owner-1", 7, sessions.CreateRequest{Title: "Draft review"})
	require.NoError(t, err)

	res, err := env.gateway.Resolve(ctx, sess.AccessCode)
	require.NoError(t, err)

	require.NotNil(t, res.Session)
	assert.Nil(t, res.Share)
	assert.Equal(t, int64(7), res.Grant.ProjectID)
	assert.Equal(t, capability.KindSession, res.Grant.Kind)
	assert.Equal(t, sess.ID, res.SessionID())
	assert.Zero(t, res.ShareID())
	assert.Equal(t, "Draft review", res.Session.Title)

	// Defaults are permissive, so the grant allows edits.
	assert.True(t, res.Grant.Allows(capability.OpEdit))
}

func TestGatewayResolveDenials(t *testing.T) {
	env := newGatewayEnv()
	ctx := context.Background()

	live, err := env.sessions.Create(ctx, "owner-1", 7, sessions.CreateRequest{})
	require.NoError(t, err)

	revoked, err := env.sessions.Create(ctx, "owner-1", 7, sessions.CreateRequest{})
	require.NoError(t, err)
	_, err = env.sessions.Revoke(ctx, "owner-1", revoked.ID)
	require.NoError(t, err)

	expired, err := env.sessions.Create(ctx, "owner-1", 7, sessions.CreateRequest{})
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	env.sessionStore.byID[expired.ID].ExpiresAt = &past

	// Revocation wins even when the expiry has also passed.
	both, err := env.sessions.Create(ctx, "owner-1", 7, sessions.CreateRequest{})
	require.NoError(t, err)
	env.sessionStore.byID[both.ID].ExpiresAt = &past
	_, err = env.sessions.Revoke(ctx, "owner-1", both.ID)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		kind  capability.Kind
	}{
		{"no known prefix", "bogus-token", capability.KindNotFound},
		{"well formed but unknown", "sess_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", capability.KindNotFound},
		{"malformed payload", "sess_!!!", capability.KindNotFound},
		{"revoked", revoked.AccessCode, capability.KindRevoked},
		{"expired", expired.AccessCode, capability.KindExpired},
		{"revoked beats expired", both.AccessCode, capability.KindRevoked},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.gateway.Resolve(ctx, tc.token)
			require.Error(t, err)
			assert.Equal(t, tc.kind, capability.KindOf(err))
		})
	}

	// The live one still resolves.
	_, err = env.gateway.Resolve(ctx, live.AccessCode)
	assert.NoError(t, err)
}

func TestGatewayResolveGuestsDisabled(t *testing.T) {
	env := newGatewayEnv()
	ctx := context.Background()

	off := false
	sess, err := env.sessions.Create(ctx, "owner-1", 7, sessions.CreateRequest{AllowGuests: &off})
	require.NoError(t, err)

	_, err = env.gateway.Resolve(ctx, sess.AccessCode)
	require.Error(t, err)
	assert.Equal(t, capability.KindForbidden, capability.KindOf(err))
}

func TestGatewayResolveShare(t *testing.T) {
	env := newGatewayEnv()
	ctx := context.Background()

	share, err := env.shares.Create(ctx, "owner-1", 7, shares.CreateRequest{
		Label:       "beta readers",
		Permissions: capability.TagSet{capability.TagView, capability.TagComment},
	})
	require.NoError(t, err)

	res, err := env.gateway.Resolve(ctx, share.ShareKey)
	require.NoError(t, err)

	require.NotNil(t, res.Share)
	assert.Nil(t, res.Session)
	assert.Equal(t, capability.KindShare, res.Grant.Kind)
	assert.Equal(t, share.ID, res.ShareID())
	assert.True(t, res.Grant.Allows(capability.OpView))
	assert.True(t, res.Grant.Allows(capability.OpComment))
	assert.False(t, res.Grant.Allows(capability.OpEditScene))
}

func TestGatewayResolveShareDeadline(t *testing.T) {
	env := newGatewayEnv()
	ctx := context.Background()

	deadline := time.Now().Add(-time.Minute)
	share, err := env.shares.Create(ctx, "owner-1", 7, shares.CreateRequest{Deadline: &deadline})
	require.NoError(t, err)

	_, err = env.gateway.Resolve(ctx, share.ShareKey)
	require.Error(t, err)
	assert.Equal(t, capability.KindExpired, capability.KindOf(err))
}

func TestGatewayAuthorizeApprovalGating(t *testing.T) {
	env := newGatewayEnv()
	ctx := context.Background()

	share, err := env.shares.Create(ctx, "owner-1", 7, shares.CreateRequest{RequiresApproval: true})
	require.NoError(t, err)

	// No name at all: admission cannot even be checked.
	_, err = env.gateway.Authorize(ctx, share.ShareKey, "")
	require.Error(t, err)
	assert.Equal(t, capability.KindForbidden, capability.KindOf(err))

	// A name with no admission on file is still out.
	_, err = env.gateway.Authorize(ctx, share.ShareKey, "nils")
	require.Error(t, err)
	assert.Equal(t, capability.KindForbidden, capability.KindOf(err))

	admission, err := env.shares.RequestAdmission(ctx, share.ShareKey, shares.AdmissionRequest{GuestName: "nils"})
	require.NoError(t, err)

	// Pending is not approved.
	_, err = env.gateway.Authorize(ctx, share.ShareKey, "nils")
	require.Error(t, err)

	_, err = env.shares.Approve(ctx, "owner-1", admission.ID)
	require.NoError(t, err)

	res, err := env.gateway.Authorize(ctx, share.ShareKey, "nils")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Grant.ProjectID)

	// Approval is per name, not per share.
	_, err = env.gateway.Authorize(ctx, share.ShareKey, "someone-else")
	require.Error(t, err)
}

func TestGatewayAuthorizeOpenShareIgnoresName(t *testing.T) {
	env := newGatewayEnv()
	ctx := context.Background()

	share, err := env.shares.Create(ctx, "owner-1", 7, shares.CreateRequest{})
	require.NoError(t, err)

	res, err := env.gateway.Authorize(ctx, share.ShareKey, "")
	require.NoError(t, err)
	assert.NotNil(t, res.Share)
}
