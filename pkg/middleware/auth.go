package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/fableworks/collab/pkg/httputil"
)

type contextKey string

const ownerIDKey contextKey = "owner_id"

// WithOwnerID stores an authenticated owner identity in the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerIDFrom returns the authenticated owner identity, if any.
func OwnerIDFrom(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerIDKey).(string)
	return ownerID, ok && ownerID != ""
}

// TokenVerifier resolves a bearer token to an owner identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (ownerID string, err error)
}

// OIDCVerifier verifies ID tokens against an OpenID Connect provider and
// uses the subject claim as the owner identity.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider at issuerURL and builds a
// verifier for the given client id.
func NewOIDCVerifier(ctx context.Context, issuerURL, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// Verify checks the token signature and expiry and returns its subject.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return "", fmt.Errorf("token verification failed: %w", err)
	}
	if idToken.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return idToken.Subject, nil
}

// StaticVerifier resolves tokens from a fixed map. Intended for local
// development and tests only.
type StaticVerifier struct {
	tokens map[string]string
}

// NewStaticVerifier creates a verifier over a token -> owner id map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (string, error) {
	ownerID, ok := v.tokens[token]
	if !ok {
		return "", fmt.Errorf("unknown token")
	}
	return ownerID, nil
}

// OwnerAuth provides Bearer-token authentication for owner routes.
type OwnerAuth struct {
	verifier TokenVerifier
}

// NewOwnerAuth creates authentication middleware over a verifier.
func NewOwnerAuth(verifier TokenVerifier) *OwnerAuth {
	return &OwnerAuth{verifier: verifier}
}

// Handler rejects requests without a valid Bearer token and stores the
// resolved owner identity in the request context.
func (m *OwnerAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		ownerID, err := m.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
	})
}

// RequireOwner is a helper for handlers: it returns the owner identity
// or writes a 401 and reports false.
func RequireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := OwnerIDFrom(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return "", false
	}
	return ownerID, true
}
