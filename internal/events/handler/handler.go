package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"crvs/internal/events/eventconfig"
	"crvs/internal/events/models"
	id "crvs/pkg/domain"
	dErrors "crvs/pkg/domain-errors"
	"crvs/pkg/platform/httputil"
	"crvs/pkg/requestcontext"
)

// Service is the action lifecycle as seen by the transport.
type Service interface {
	Create(ctx context.Context, req *models.CreateEventRequest) (*models.EventDocument, error)
	Get(ctx context.Context, eventID id.EventID) (*models.EventDocument, error)
	StateWithDraft(ctx context.Context, eventID id.EventID) (*models.EventState, error)
	List(ctx context.Context, eventType string, filter models.ListFilter) ([]*models.EventDocument, error)
	ListConfigs(ctx context.Context) ([]*eventconfig.EventConfig, error)
	Act(ctx context.Context, req *models.ActionRequest) (*models.EventDocument, error)
	RequestCorrection(ctx context.Context, req *models.ActionRequest) (*models.EventDocument, error)
	Resolve(ctx context.Context, req *models.ResolveRequest) (*models.EventDocument, error)
	ApproveCorrection(ctx context.Context, req *models.CorrectionDecisionRequest) (*models.EventDocument, error)
	RejectCorrection(ctx context.Context, req *models.CorrectionDecisionRequest) (*models.EventDocument, error)
	Assign(ctx context.Context, req *models.AssignmentRequest) (*models.EventDocument, error)
	Unassign(ctx context.Context, req *models.AssignmentRequest) (*models.EventDocument, error)
	SaveDraft(ctx context.Context, req *models.SaveDraftRequest) (*models.Draft, error)
	ListDrafts(ctx context.Context) ([]*models.Draft, error)
	DeleteDraft(ctx context.Context, eventID id.EventID) error
}

// Handler exposes registration records over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the event routes. Authentication runs before these.
func (h *Handler) Register(r chi.Router) {
	r.Get("/event-configs", h.HandleListConfigs)
	r.Get("/drafts", h.HandleListDrafts)

	r.Route("/events", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)

		r.Route("/{eventId}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Get("/state", h.HandleState)

			r.Post("/actions/custom", h.HandleCustomAction)
			r.Post("/actions/custom/{action}/{decision}", h.HandleResolve)
			r.Post("/actions/{action}", h.HandleAction)
			r.Post("/actions/{action}/{decision}", h.HandleResolve)

			r.Post("/corrections", h.HandleRequestCorrection)
			r.Post("/corrections/{requestId}/{decision}", h.HandleCorrectionDecision)

			r.Post("/assign", h.HandleAssign)
			r.Post("/unassign", h.HandleUnassign)

			r.Put("/drafts", h.HandleSaveDraft)
			r.Delete("/drafts", h.HandleDeleteDraft)
		})
	})
}

// HandleCreate handles POST /events.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEventRequest
	if !h.decode(w, r, &req) {
		return
	}
	doc, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "create event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleGet handles GET /events/{eventId}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), eventID)
	if err != nil {
		h.fail(w, r, "get event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleState handles GET /events/{eventId}/state. withDraft=true overlays
// the caller's draft.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	withDraft := false
	if raw := r.URL.Query().Get("withDraft"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "withDraft must be a boolean"))
			return
		}
		withDraft = parsed
	}

	if withDraft {
		state, err := h.service.StateWithDraft(r.Context(), eventID)
		if err != nil {
			h.fail(w, r, "get event state", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, state)
		return
	}
	doc, err := h.service.Get(r.Context(), eventID)
	if err != nil {
		h.fail(w, r, "get event state", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc.State)
}

// HandleList handles GET /events?type=&status=&assignedTo=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter models.ListFilter
	if raw := q.Get("status"); raw != "" {
		filter.Status = models.EventStatus(raw)
		if !filter.Status.IsValid() {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown status "+raw))
			return
		}
	}
	if raw := q.Get("assignedTo"); raw != "" {
		user, err := id.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.AssignedTo = user
	}
	docs, err := h.service.List(r.Context(), q.Get("type"), filter)
	if err != nil {
		h.fail(w, r, "list events", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, docs)
}

// HandleListConfigs handles GET /event-configs.
func (h *Handler) HandleListConfigs(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.service.ListConfigs(r.Context())
	if err != nil {
		h.fail(w, r, "list event configs", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cfgs)
}

// HandleAction handles POST /events/{eventId}/actions/{action} for the
// built-in action types.
func (h *Handler) HandleAction(w http.ResponseWriter, r *http.Request) {
	actionType, err := models.ParseActionType(chi.URLParam(r, "action"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.act(w, r, actionType)
}

// HandleCustomAction handles POST /events/{eventId}/actions/custom.
func (h *Handler) HandleCustomAction(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, models.ActionCustom)
}

// HandleRequestCorrection handles POST /events/{eventId}/corrections.
func (h *Handler) HandleRequestCorrection(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, models.ActionRequestCorrection)
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, t models.ActionType) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	var req models.ActionRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	req.Type = t

	var (
		doc *models.EventDocument
		err error
	)
	if t == models.ActionRequestCorrection {
		doc, err = h.service.RequestCorrection(r.Context(), &req)
	} else {
		doc, err = h.service.Act(r.Context(), &req)
	}
	if err != nil {
		h.fail(w, r, "submit action", err, "action_type", string(t), "event_id", eventID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleResolve handles the confirmation callbacks
// POST /events/{eventId}/actions/[custom/]{actionId}/accept|reject.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	requestID, err := id.ParseActionID(chi.URLParam(r, "action"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	decision := models.Decision(chi.URLParam(r, "decision"))
	if !decision.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown route"))
		return
	}
	var req models.ResolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	req.RequestID = requestID
	req.Decision = decision

	doc, err := h.service.Resolve(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "resolve action", err, "event_id", eventID.String(), "action_id", requestID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleCorrectionDecision handles
// POST /events/{eventId}/corrections/{requestId}/approve|reject.
func (h *Handler) HandleCorrectionDecision(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	requestID, err := id.ParseActionID(chi.URLParam(r, "requestId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var decide func(context.Context, *models.CorrectionDecisionRequest) (*models.EventDocument, error)
	switch chi.URLParam(r, "decision") {
	case "approve":
		decide = h.service.ApproveCorrection
	case "reject":
		decide = h.service.RejectCorrection
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "unknown route"))
		return
	}
	var req models.CorrectionDecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	req.RequestID = requestID

	doc, err := decide(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "decide correction", err, "event_id", eventID.String(), "request_id", requestID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleAssign handles POST /events/{eventId}/assign.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	h.assignment(w, r, h.service.Assign)
}

// HandleUnassign handles POST /events/{eventId}/unassign.
func (h *Handler) HandleUnassign(w http.ResponseWriter, r *http.Request) {
	h.assignment(w, r, h.service.Unassign)
}

func (h *Handler) assignment(w http.ResponseWriter, r *http.Request, op func(context.Context, *models.AssignmentRequest) (*models.EventDocument, error)) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	var req models.AssignmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	doc, err := op(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "change assignment", err, "event_id", eventID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleSaveDraft handles PUT /events/{eventId}/drafts.
func (h *Handler) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	var req models.SaveDraftRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.EventID = eventID
	draft, err := h.service.SaveDraft(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "save draft", err, "event_id", eventID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

// HandleListDrafts handles GET /drafts.
func (h *Handler) HandleListDrafts(w http.ResponseWriter, r *http.Request) {
	drafts, err := h.service.ListDrafts(r.Context())
	if err != nil {
		h.fail(w, r, "list drafts", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, drafts)
}

// HandleDeleteDraft handles DELETE /events/{eventId}/drafts.
func (h *Handler) HandleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	eventID, ok := h.eventID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(r.Context(), eventID); err != nil {
		h.fail(w, r, "delete draft", err, "event_id", eventID.String())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) eventID(w http.ResponseWriter, r *http.Request) (id.EventID, bool) {
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventId"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.EventID{}, false
	}
	return eventID, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httputil.DecodeJSON(r, dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		httputil.WriteError(w, err)
		return false
	}
	return true
}

// fail logs server-side failures at error level and client errors at warn.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error, attrs ...any) {
	ctx := r.Context()
	args := append([]any{
		"request_id", requestcontext.RequestID(ctx),
		"user_id", requestcontext.UserID(ctx).String(),
		"error", err,
	}, attrs...)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeUpstream, dErrors.CodeTimeout:
		h.logger.ErrorContext(ctx, op+" failed", args...)
	default:
		h.logger.WarnContext(ctx, op+" refused", args...)
	}
	httputil.WriteError(w, err)
}
