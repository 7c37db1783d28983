package guest

import (
	"context"

	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/sessions"
	"github.com/fableworks/collab/pkg/shares"
)

// Resolution is a successful token resolution: the grant plus the
// guest-safe view of the backing record.
type Resolution struct {
	Grant *capability.AccessGrant

	// Exactly one of these is set, matching Grant.Kind.
	Session *sessions.GuestView `json:"session,omitempty"`
	Share   *shares.GuestView   `json:"share,omitempty"`

	// sessionID and shareID stay internal; guests never see record ids.
	sessionID int64
	shareID   int64
}

// Gateway resolves opaque guest tokens against the session and share
// authorities and derives access grants.
type Gateway struct {
	sessions *sessions.Authority
	shares   *shares.Authority
}

// NewGateway creates a guest gateway over both authorities.
func NewGateway(sessionAuthority *sessions.Authority, shareAuthority *shares.Authority) *Gateway {
	return &Gateway{
		sessions: sessionAuthority,
		shares:   shareAuthority,
	}
}

// Resolve maps a presented token to a grant. Every denial - unknown,
// malformed, expired, revoked, guests-disabled - comes back as a
// capability error whose kind records the real reason; handlers collapse
// it to the generic guest message so the reason never leaks.
func (g *Gateway) Resolve(ctx context.Context, token string) (*Resolution, error) {
	kind, ok := capability.KindForCode(token)
	if !ok {
		return nil, capability.NewError(capability.KindNotFound, "unrecognized token")
	}

	switch kind {
	case capability.KindSession:
		return g.resolveSession(ctx, token)
	case capability.KindShare:
		return g.resolveShare(ctx, token)
	default:
		return nil, capability.NewError(capability.KindNotFound, "unrecognized token")
	}
}

func (g *Gateway) resolveSession(ctx context.Context, code string) (*Resolution, error) {
	v, err := g.sessions.ValidateAccessCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, capability.NewError(v.Reason, "access code is not live")
	}

	sess := v.Session
	if !sess.AllowGuests {
		// A session with guests switched off validates but admits no one.
		return nil, capability.NewError(capability.KindForbidden, "guest access is disabled")
	}

	view := sess.GuestView()
	return &Resolution{
		Grant:     capability.NewGrant(sess.ProjectID, capability.KindSession, sess.Flags()),
		Session:   &view,
		sessionID: sess.ID,
	}, nil
}

func (g *Gateway) resolveShare(ctx context.Context, key string) (*Resolution, error) {
	v, err := g.shares.ValidateShareKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if !v.Valid {
		return nil, capability.NewError(v.Reason, "share key is not live")
	}

	share := v.Share
	view := share.GuestView()
	return &Resolution{
		Grant:   capability.NewGrant(share.ProjectID, capability.KindShare, share.Permissions),
		Share:   &view,
		shareID: share.ID,
	}, nil
}

// SessionID returns the backing session id for admission bookkeeping.
// Zero for share resolutions.
func (r *Resolution) SessionID() int64 { return r.sessionID }

// ShareID returns the backing share id. Zero for session resolutions.
func (r *Resolution) ShareID() int64 { return r.shareID }

// Authorize resolves a token and additionally checks approval gating for
// shares: a share that requires approval only grants data access to a
// guest holding an approved admission under the supplied name.
func (g *Gateway) Authorize(ctx context.Context, token, guestName string) (*Resolution, error) {
	res, err := g.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if res.Share != nil && res.Share.RequiresApproval {
		if guestName == "" {
			return nil, capability.NewError(capability.KindForbidden, "admission required")
		}
		admitted, err := g.shares.IsAdmitted(ctx, res.shareID, guestName)
		if err != nil {
			return nil, err
		}
		if !admitted {
			return nil, capability.NewError(capability.KindForbidden, "admission not approved")
		}
	}

	return res, nil
}
