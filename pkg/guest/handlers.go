package guest

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fableworks/collab/pkg/audit"
	"github.com/fableworks/collab/pkg/capability"
	"github.com/fableworks/collab/pkg/httputil"
	"github.com/fableworks/collab/pkg/middleware"
	"github.com/fableworks/collab/pkg/observability"
	"github.com/fableworks/collab/pkg/projects"
	"github.com/fableworks/collab/pkg/shares"
)

// GuestNameHeader carries the guest's display handle on data requests.
// Approval-gated shares require it; everything else ignores it.
const GuestNameHeader = "X-Guest-Name"

// JoinRequest is the body of a session join call.
type JoinRequest struct {
	GuestName string `json:"guest_name"`
}

// Handler serves every unauthenticated route: token validation, session
// joins, share admission requests, and project-scoped data access.
type Handler struct {
	gateway      *Gateway
	shares       *shares.Authority
	participants ParticipantRegistry
	store        projects.Store
	cache        *SummaryCache
	recorder     audit.Recorder
	metrics      *observability.Metrics
}

// NewHandler creates the guest handler. recorder may be audit.Nop{},
// metrics and cache may be nil.
func NewHandler(
	gateway *Gateway,
	shareAuthority *shares.Authority,
	participants ParticipantRegistry,
	store projects.Store,
	cache *SummaryCache,
	recorder audit.Recorder,
	metrics *observability.Metrics,
) *Handler {
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Handler{
		gateway:      gateway,
		shares:       shareAuthority,
		participants: participants,
		store:        store,
		cache:        cache,
		recorder:     recorder,
		metrics:      metrics,
	}
}

// RegisterRoutes mounts all guest routes on an unauthenticated,
// rate-limited router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	h.RegisterValidationRoutes(router)
	h.RegisterDataRoutes(router)
}

// RegisterValidationRoutes mounts the token-presenting routes. These are
// the brute-force surface and usually sit behind tighter limits than the
// data routes.
func (h *Handler) RegisterValidationRoutes(router *mux.Router) {
	router.HandleFunc("/collab/{code}", h.ValidateSession).Methods(http.MethodGet)
	router.HandleFunc("/collab/{code}/join", h.JoinSession).Methods(http.MethodPost)
	router.HandleFunc("/shared/{key}", h.ValidateShare).Methods(http.MethodGet)
	router.HandleFunc("/shared/{key}/join", h.RequestAdmission).Methods(http.MethodPost)
}

// RegisterDataRoutes mounts the project-scoped data routes.
func (h *Handler) RegisterDataRoutes(router *mux.Router) {
	router.HandleFunc("/guest/{token}/project", h.Project).Methods(http.MethodGet)
	router.HandleFunc("/guest/{token}/characters", h.Characters).Methods(http.MethodGet)
	router.HandleFunc("/guest/{token}/locations", h.Locations).Methods(http.MethodGet)
	router.HandleFunc("/guest/{token}/scenes", h.Scenes).Methods(http.MethodGet)
	router.HandleFunc("/guest/{token}/scenes/{sceneID}", h.Scene).Methods(http.MethodGet)
	router.HandleFunc("/guest/{token}/scenes", h.CreateScene).Methods(http.MethodPost)
	router.HandleFunc("/guest/{token}/scenes/{sceneID}", h.UpdateScene).Methods(http.MethodPut)
	router.HandleFunc("/guest/{token}/scenes/{sceneID}", h.DeleteScene).Methods(http.MethodDelete)
}

// ValidateSession handles GET /collab/{code}. Every denial collapses to
// the same generic 404 so probing reveals nothing.
func (h *Handler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	res, err := h.gateway.Resolve(r.Context(), code)
	if err != nil || res.Session == nil {
		h.denied(w, r, code, capability.KindSession, err)
		return
	}

	h.countValidation(capability.KindSession, "valid")
	httputil.WriteJSON(w, http.StatusOK, res.Session)
}

// JoinSession handles POST /collab/{code}/join, claiming a seat subject
// to the participant cap.
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	var req JoinRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.GuestName == "" {
		httputil.WriteBadRequest(w, "guest_name is required")
		return
	}

	res, err := h.gateway.Resolve(r.Context(), code)
	if err != nil || res.Session == nil {
		h.denied(w, r, code, capability.KindSession, err)
		return
	}

	if err := h.participants.Join(r.Context(), res.SessionID(), req.GuestName, res.Session.MaxParticipants); err != nil {
		if capability.IsKind(err, capability.KindForbidden) {
			h.countAdmission("full")
			h.recordEvent(r, audit.NewEvent(audit.EventAdmissionRequested, audit.StatusDenied).
				WithSession(res.SessionID()).
				WithTokenPrefix(capability.DisplayPrefix(code)).
				WithMessage("session full"))
			httputil.WriteForbidden(w, "session is full")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	h.countAdmission("joined")
	h.recordEvent(r, audit.NewEvent(audit.EventAdmissionRequested, audit.StatusSuccess).
		WithSession(res.SessionID()).
		WithTokenPrefix(capability.DisplayPrefix(code)).
		WithMessage("guest "+req.GuestName+" joined"))

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"joined":  true,
		"session": res.Session,
	})
}

// ValidateShare handles GET /shared/{key}. Open shares include the safe
// project summary; approval-gated shares withhold it until the guest is
// admitted.
func (h *Handler) ValidateShare(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	res, err := h.gateway.Resolve(r.Context(), key)
	if err != nil || res.Share == nil {
		h.denied(w, r, key, capability.KindShare, err)
		return
	}

	payload := map[string]interface{}{"share": res.Share}
	if !res.Share.RequiresApproval {
		if sum, err := NewProjectReader(res.Grant, h.store, h.cache).Summary(r.Context()); err == nil {
			payload["project"] = sum
		}
	}

	h.countValidation(capability.KindShare, "valid")
	httputil.WriteJSON(w, http.StatusOK, payload)
}

// RequestAdmission handles POST /shared/{key}/join for approval-gated
// shares.
func (h *Handler) RequestAdmission(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req shares.AdmissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	admission, err := h.shares.RequestAdmission(r.Context(), key, req)
	if err != nil {
		switch capability.KindOf(err) {
		case capability.KindValidationInput:
			httputil.WriteServiceError(w, err)
		case capability.KindNotFound, capability.KindExpired, capability.KindRevoked:
			h.denied(w, r, key, capability.KindShare, err)
		default:
			httputil.WriteInternalError(w, err)
		}
		return
	}

	h.countAdmission("requested")
	h.recordEvent(r, audit.NewEvent(audit.EventAdmissionRequested, audit.StatusSuccess).
		WithShare(admission.ShareID).
		WithTokenPrefix(capability.DisplayPrefix(key)).
		WithMessage("guest "+admission.GuestName))

	httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":       admission.Status,
		"requested_at": admission.RequestedAt,
	})
}

// reader authorizes the request's token and builds the scoped reader.
func (h *Handler) reader(w http.ResponseWriter, r *http.Request) (*ProjectReader, bool) {
	token := mux.Vars(r)["token"]

	res, err := h.gateway.Authorize(r.Context(), token, r.Header.Get(GuestNameHeader))
	if err != nil {
		kind, _ := capability.KindForCode(token)
		h.denied(w, r, token, kind, err)
		return nil, false
	}

	return NewProjectReader(res.Grant, h.store, h.cache), true
}

func listFilter(r *http.Request) projects.Filter {
	return projects.Filter{
		NameContains: r.URL.Query().Get("q"),
		Limit:        httputil.ParseQueryInt(r, "limit", 0),
		Offset:       httputil.ParseQueryInt(r, "offset", 0),
	}
}

// Project handles GET /guest/{token}/project.
func (h *Handler) Project(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	sum, err := reader.Summary(r.Context())
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	h.countRead("summary")
	httputil.WriteJSON(w, http.StatusOK, sum)
}

// Characters handles GET /guest/{token}/characters.
func (h *Handler) Characters(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	list, err := reader.Characters(r.Context(), listFilter(r))
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	h.countRead("characters")
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"characters": list, "count": len(list)})
}

// Locations handles GET /guest/{token}/locations.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	list, err := reader.Locations(r.Context(), listFilter(r))
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	h.countRead("locations")
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"locations": list, "count": len(list)})
}

// Scenes handles GET /guest/{token}/scenes.
func (h *Handler) Scenes(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	list, err := reader.Scenes(r.Context(), listFilter(r))
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	h.countRead("scenes")
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"scenes": list, "count": len(list)})
}

// Scene handles GET /guest/{token}/scenes/{sceneID}.
func (h *Handler) Scene(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	sceneID, ok := httputil.ParsePathInt64OrError(w, r, "sceneID")
	if !ok {
		return
	}

	scene, err := reader.Scene(r.Context(), sceneID)
	if err != nil {
		h.writeReadError(w, err)
		return
	}

	h.countRead("scene")
	httputil.WriteJSON(w, http.StatusOK, scene)
}

// CreateScene handles POST /guest/{token}/scenes.
func (h *Handler) CreateScene(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	var in projects.SceneInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	scene, err := reader.CreateScene(r.Context(), &in)
	if err != nil {
		h.writeWriteError(w, r, "create_scene", err)
		return
	}

	h.countWrite("create_scene", "success")
	h.recordWrite(r, "scene created")
	httputil.WriteCreated(w, scene)
}

// UpdateScene handles PUT /guest/{token}/scenes/{sceneID}.
func (h *Handler) UpdateScene(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	sceneID, ok := httputil.ParsePathInt64OrError(w, r, "sceneID")
	if !ok {
		return
	}

	var in projects.SceneInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}

	scene, err := reader.UpdateScene(r.Context(), sceneID, &in)
	if err != nil {
		h.writeWriteError(w, r, "update_scene", err)
		return
	}

	h.countWrite("update_scene", "success")
	h.recordWrite(r, "scene updated")
	httputil.WriteJSON(w, http.StatusOK, scene)
}

// DeleteScene handles DELETE /guest/{token}/scenes/{sceneID}.
func (h *Handler) DeleteScene(w http.ResponseWriter, r *http.Request) {
	reader, ok := h.reader(w, r)
	if !ok {
		return
	}

	sceneID, ok := httputil.ParsePathInt64OrError(w, r, "sceneID")
	if !ok {
		return
	}

	if err := reader.DeleteScene(r.Context(), sceneID); err != nil {
		h.writeWriteError(w, r, "delete_scene", err)
		return
	}

	h.countWrite("delete_scene", "success")
	h.recordWrite(r, "scene deleted")
	httputil.WriteNoContent(w)
}

// denied collapses every token denial into the generic guest answer and
// records the real reason in metrics and the audit trail only.
func (h *Handler) denied(w http.ResponseWriter, r *http.Request, token string, kind capability.TokenKind, err error) {
	reason := "invalid"
	var capErr *capability.Error
	if errors.As(err, &capErr) {
		reason = string(capErr.Kind)
	}

	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	h.countValidation(capability.TokenKind(label), reason)

	eventType := audit.EventSessionValidated
	if kind == capability.KindShare {
		eventType = audit.EventShareValidated
	}
	h.recordEvent(r, audit.NewEvent(eventType, audit.StatusDenied).
		WithTokenPrefix(capability.DisplayPrefix(token)).
		WithMessage(reason))

	observability.FromContext(r.Context()).
		WithField("token_prefix", capability.DisplayPrefix(token)).
		WithField("reason", reason).
		Info("guest access denied")

	httputil.WriteGuestDenied(w)
}

// writeReadError maps reader failures: permission denials are explicit
// 403s on a live token, everything else keeps its shape.
func (h *Handler) writeReadError(w http.ResponseWriter, err error) {
	if capability.IsKind(err, capability.KindForbidden) {
		httputil.WriteForbidden(w, "operation not permitted")
		return
	}
	httputil.WriteServiceError(w, err)
}

func (h *Handler) writeWriteError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if capability.IsKind(err, capability.KindForbidden) {
		h.countWrite(op, "denied")
		h.recordEvent(r, audit.NewEvent(audit.EventGuestWrite, audit.StatusDenied).
			WithMessage(op+" not permitted"))
		httputil.WriteForbidden(w, "operation not permitted")
		return
	}
	h.countWrite(op, "error")
	httputil.WriteServiceError(w, err)
}

func (h *Handler) recordWrite(r *http.Request, message string) {
	h.recordEvent(r, audit.NewEvent(audit.EventGuestWrite, audit.StatusSuccess).
		WithTokenPrefix(capability.DisplayPrefix(mux.Vars(r)["token"])).
		WithMessage(message))
}

func (h *Handler) recordEvent(r *http.Request, event *audit.Event) {
	event.WithRequest(observability.GetRequestID(r.Context()), middleware.ClientIP(r))
	if err := h.recorder.Record(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to record audit event")
	}
}

func (h *Handler) countValidation(kind capability.TokenKind, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordValidation(string(kind), outcome)
	}
}

func (h *Handler) countAdmission(outcome string) {
	if h.metrics != nil {
		h.metrics.AdmissionsTotal.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) countRead(resource string) {
	if h.metrics != nil {
		h.metrics.ScopedReadsTotal.WithLabelValues(resource).Inc()
	}
}

func (h *Handler) countWrite(op, outcome string) {
	if h.metrics != nil {
		h.metrics.ScopedWritesTotal.WithLabelValues(op, outcome).Inc()
	}
}
