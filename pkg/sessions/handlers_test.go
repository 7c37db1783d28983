package sessions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fableworks/collab/pkg/audit"
	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/middleware"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()

	store := newFakeStore()
	handler := NewHandler(newTestAuthority(store), audit.Nop{}, nil)

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	auth := middleware.NewOwnerAuth(middleware.NewStaticVerifier(map[string]string{
		"token-1": "owner-1",
		"token-2": "owner-2",
	}))
	api.Use(auth.Handler)
	handler.RegisterRoutes(api)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, store
}

func doJSON(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) Session {
	t.Helper()
	defer resp.Body.Close()
	var sess Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	return sess
}

func TestHandler_Create(t *testing.T) {
	server, _ := newTestServer(t)

	t.Run("creates with defaults", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/projects/7/sessions", "token-1",
			CreateRequest{Title: "writing room"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		sess := decodeSession(t, resp)
		assert.Equal(t, int64(7), sess.ProjectID)
		assert.Equal(t, "writing room", sess.Title)
		assert.True(t, sess.AllowGuests)
		assert.Contains(t, sess.AccessCode, capability.SessionCodePrefix)
	})

	t.Run("rejects missing token", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/projects/7/sessions", "", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects non-owner", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/projects/7/sessions", "token-2", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("rejects bad project id", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/projects/abc/sessions", "token-1", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHandler_Lifecycle(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPost, server.URL+"/api/v1/projects/7/sessions", "token-1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decodeSession(t, resp)

	t.Run("get", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/sessions/%d", server.URL, sess.ID), "token-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		got := decodeSession(t, resp)
		assert.Equal(t, sess.AccessCode, got.AccessCode)
	})

	t.Run("get by wrong owner is forbidden", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/sessions/%d", server.URL, sess.ID), "token-2", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("list", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/projects/7/sessions", "token-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		defer resp.Body.Close()

		var body struct {
			Sessions []Session `json:"sessions"`
			Count    int       `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, 1, body.Count)
	})

	t.Run("revoke then renew conflicts", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/revoke", server.URL, sess.ID), "token-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		revoked := decodeSession(t, resp)
		require.True(t, revoked.IsRevoked)
		require.NotNil(t, revoked.RevokedAt)

		// Revocation is idempotent over HTTP too.
		resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/revoke", server.URL, sess.ID), "token-1", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		again := decodeSession(t, resp)
		assert.Equal(t, *revoked.RevokedAt, *again.RevokedAt)

		resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/sessions/%d/renew", server.URL, sess.ID), "token-1",
			RenewRequest{})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, server.URL+"/api/v1/sessions/9999", "token-1", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

var _ Store = (*fakeStore)(nil)
