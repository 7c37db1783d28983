package shares

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fableworks/collab/pkg/audit"
	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/httputil"
	"github.com/fableworks/collab/pkg/middleware"
	"github.com/fableworks/collab/pkg/observability"
)

// Handler serves the owner-facing share lifecycle and admission review
// routes.
type Handler struct {
	authority *Authority
	recorder  audit.Recorder
	metrics   *observability.Metrics
}

// NewHandler creates a share handler. recorder may be audit.Nop{} and
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

// RegisterRoutes mounts the share routes on an authenticated router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects/{projectID}/shares", h.Create).Methods(http.MethodPost)
	router.HandleFunc("/projects/{projectID}/shares", h.List).Methods(http.MethodGet)
	router.HandleFunc("/shares/{shareID}", h.Get).Methods(http.MethodGet)
	router.HandleFunc("/shares/{shareID}/revoke", h.Revoke).Methods(http.MethodPost)
	router.HandleFunc("/shares/{shareID}/admissions", h.ListAdmissions).Methods(http.MethodGet)
	router.HandleFunc("/admissions/{admissionID}/approve", h.Approve).Methods(http.MethodPost)
	router.HandleFunc("/admissions/{admissionID}/reject", h.Reject).Methods(http.MethodPost)
}

// Create handles POST /projects/{projectID}/shares.
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

	share, err := h.authority.Create(r.Context(), ownerID, projectID, req)
	if err != nil {
		observability.FromContext(r.Context()).
			WithError(err).
			WithField("project_id", projectID).
			Warn("share creation failed")
		httputil.WriteServiceError(w, err)
		return
	}

	h.recordEvent(r, audit.NewEvent(audit.EventShareCreated, audit.StatusSuccess).
		WithActor(ownerID).
		WithProject(share.ProjectID).
		WithShare(share.ID).
		WithTokenPrefix(capability.DisplayPrefix(share.ShareKey)))
	if h.metrics != nil {
		h.metrics.RecordGrant(string(capability.KindShare))
	}

	httputil.WriteCreated(w, share)
}

// List handles GET /projects/{projectID}/shares.
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
		"shares": list,
		"count":  len(list),
	})
}

// Get handles GET /shares/{shareID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	shareID, ok := httputil.ParsePathInt64OrError(w, r, "shareID")
	if !ok {
		return
	}

	share, err := h.authority.Get(r.Context(), ownerID, shareID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, share)
}

// Revoke handles POST /shares/{shareID}/revoke. Idempotent.
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	shareID, ok := httputil.ParsePathInt64OrError(w, r, "shareID")
	if !ok {
		return
	}

	share, err := h.authority.Revoke(r.Context(), ownerID, shareID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	h.recordEvent(r, audit.NewEvent(audit.EventShareRevoked, audit.StatusSuccess).
		WithActor(ownerID).
		WithProject(share.ProjectID).
		WithShare(share.ID))

	httputil.WriteJSON(w, http.StatusOK, share)
}

// ListAdmissions handles GET /shares/{shareID}/admissions.
func (h *Handler) ListAdmissions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	shareID, ok := httputil.ParsePathInt64OrError(w, r, "shareID")
	if !ok {
		return
	}

	list, err := h.authority.ListAdmissions(r.Context(), ownerID, shareID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"admissions": list,
		"count":      len(list),
	})
}

// Approve handles POST /admissions/{admissionID}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.authority.Approve, audit.EventAdmissionApproved)
}

// Reject handles POST /admissions/{admissionID}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.authority.Reject, audit.EventAdmissionRejected)
}

func (h *Handler) decide(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, ownerID string, admissionID int64) (*Admission, error),
	eventType audit.EventType,
) {
	ownerID, ok := middleware.RequireOwner(w, r)
	if !ok {
		return
	}

	admissionID, ok := httputil.ParsePathInt64OrError(w, r, "admissionID")
	if !ok {
		return
	}

	admission, err := op(r.Context(), ownerID, admissionID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	h.recordEvent(r, audit.NewEvent(eventType, audit.StatusSuccess).
		WithActor(ownerID).
		WithShare(admission.ShareID).
		WithMessage("guest "+admission.GuestName))

	httputil.WriteJSON(w, http.StatusOK, admission)
}

func (h *Handler) recordEvent(r *http.Request, event *audit.Event) {
	event.WithRequest(observability.GetRequestID(r.Context()), middleware.ClientIP(r))
	if err := h.recorder.Record(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record audit event")
	}
}
