package sessions

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fableworks/collab/pkg/audit"
	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/httputil"
	"github.com/fableworks/collab/pkg/middleware"
	"github.com/fableworks/collab/pkg/observability"
)

// Handler serves the owner-facing session lifecycle routes. Guests never
// reach these; their validation path lives in the guest gateway.
type Handler struct {
	authority *Authority
	recorder  audit.Recorder
	metrics   *observability.Metrics
}

// NewHandler creates a session handler. recorder may be audit.Nop{} and
// metrics may be nil.
func NewHandler(authority *Authority, recorder audit.Recorder, metrics *observability.Metrics) *Handler {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Handler{
		authority: authority,
		recorder:  recorder,
		metrics:   metrics,
	}
}

// RegisterRoutes mounts the session routes on an authenticated router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects/{projectID}/sessions", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/projects/{projectID}/sessions", h.List).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{sessionID}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/sessions/{sessionID}/renew", h.Renew).Methods(http.MethodPost)
	router.HandleFunc("/sessions/{sessionID}/revoke", h.Revoke).Methods(http.MethodPost)
}

// Create handles POST /projects/{projectID}/sessions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}

	var req CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sess, err := h.authority.Create(r.Context(), ownerID, projectID, req)
	if err != nil {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("project_id", projectID).
			Warn("session creation failed")
		httputil.WriteServiceError(w, err)
		return
	}

	h.recordEvent(r, audit.NewEvent(audit.EventSessionCreated, audit.StatusSuccess).
		WithActor(ownerID).
		WithProject(sess.ProjectID).
		WithSession(sess.ID).
		WithTokenPrefix(capability.DisplayPrefix(sess.AccessCode)))
	if h.metrics != nil {
		h.metrics.RecordGrant(string(capability.KindSession))
	}

	httputil.WriteCreated(w, sess)
}

// List handles GET /projects/{projectID}/sessions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	projectID, ok := httputil.ParsePathInt64OrError(w, r, "projectID")
	if !ok {
		return
	}

	list, err := h.authority.ListByProject(r.Context(), ownerID, projectID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": list,
		"count":    len(list),
	})
}

// Get handles GET /sessions/{sessionID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	sessionID, ok := httputil.ParsePathInt64OrError(w, r, "sessionID")
	if !ok {
		return
	}

	sess, err := h.authority.Get(r.Context(), ownerID, sessionID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, sess)
}

// Renew handles POST /sessions/{sessionID}/renew. A null expires_at in
// the body clears the expiry.
func (h *Handler) Renew(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	sessionID, ok := httputil.ParsePathInt64OrError(w, r, "sessionID")
	if !ok {
		return
	}

	var req RenewRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sess, err := h.authority.Renew(r.Context(), ownerID, sessionID, req.ExpiresAt)
	if err != nil {
		h.recordEvent(r, audit.NewEvent(audit.EventSessionRenewed, auditStatus(err)).
			WithActor(ownerID).
			WithSession(sessionID).
			WithMessage(err.Error()))
		httputil.WriteServiceError(w, err)
		return
	}

	h.recordEvent(r, audit.NewEvent(audit.EventSessionRenewed, audit.StatusSuccess).
		WithActor(ownerID).
		WithProject(sess.ProjectID).
		WithSession(sess.ID))

	httputil.WriteJSON(w, http.StatusOK, sess)
}

// Revoke handles POST /sessions/{sessionID}/revoke. Idempotent.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	sessionID, ok := httputil.ParsePathInt64OrError(w, r, "sessionID")
	if !ok {
		return
	}

	sess, err := h.authority.Revoke(r.Context(), ownerID, sessionID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	h.recordEvent(r, audit.NewEvent(audit.EventSessionRevoked, audit.StatusSuccess).
		WithActor(ownerID).
		WithProject(sess.ProjectID).
		WithSession(sess.ID))

	httputil.WriteJSON(w, http.StatusOK, sess)
}

func (h *Handler) recordEvent(r *http.Request, event *audit.Event) {
	event.WithRequest(observability.GetRequestID(r.Context()), middleware.ClientIP(r))
	if err := h.recorder.Record(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record audit event")
	}
}

func auditStatus(err error) audit.EventStatus {
	switch capability.KindOf(err) {
	case capability.KindForbidden, capability.KindTerminal:
		return audit.StatusDenied
	default:
		return audit.StatusFailure
	}
}
