package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"remedia/internal/workflow/models"
	"remedia/internal/workflow/ports"
	id "remedia/pkg/domain"
	dErrors "remedia/pkg/domain-errors"
	"remedia/pkg/platform/httputil"
)

func (h *Handler) HandleCreateObservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[createObservationRequest](w, r, h.logger)
	if !ok {
		return
	}
	input, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	obs, err := h.observations.Create(ctx, input, actorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "observation creation failed",
			"audit_id", req.AuditID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromObservation(obs))
}

func (h *Handler) HandleListObservations(w http.ResponseWriter, r *http.Request) {
	filter, err := observationFilterFromQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	observations, err := h.observations.List(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservations(observations))
}

func observationFilterFromQuery(r *http.Request) (ports.ObservationFilter, error) {
	var filter ports.ObservationFilter
	q := r.URL.Query()

	if raw := q.Get("audit_id"); raw != "" {
		auditID, err := id.ParseAuditID(raw)
		if err != nil {
			return filter, dErrors.Wrap(err, dErrors.CodeValidation, "malformed audit_id filter")
		}
		filter.AuditID = &auditID
	}
	if raw := q.Get("status"); raw != "" {
		status := models.ObservationStatus(raw)
		if !status.IsValid() {
			return filter, dErrors.Newf(dErrors.CodeValidation, "unknown status filter %q", raw)
		}
		filter.Status = &status
	}
	if raw := q.Get("owner_id"); raw != "" {
		ownerID, err := id.ParseUserID(raw)
		if err != nil {
			return filter, dErrors.Wrap(err, dErrors.CodeValidation, "malformed owner_id filter")
		}
		filter.OwnerID = &ownerID
	}
	filter.IncludeDeleted = q.Get("include_deleted") == "true"
	return filter, nil
}

func (h *Handler) HandleGetObservation(w http.ResponseWriter, r *http.Request) {
	observationID, err := id.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	obs, err := h.observations.Get(r.Context(), observationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}

func (h *Handler) HandleUpdateObservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	observationID, err := id.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[updateObservationRequest](w, r, h.logger)
	if !ok {
		return
	}
	input, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	obs, err := h.observations.Update(ctx, observationID, input, actorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}

func (h *Handler) HandleTransitionObservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	observationID, err := id.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[transitionRequest](w, r, h.logger)
	if !ok {
		return
	}

	obs, err := h.observations.Transition(ctx, observationID, models.ObservationStatus(req.Target), actorID, req.Reason)
	if err != nil {
		h.logger.WarnContext(ctx, "observation transition refused",
			"observation_id", observationID.String(),
			"target", req.Target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}

func (h *Handler) HandleDeleteObservation(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	observationID, err := id.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.observations.SoftDelete(r.Context(), observationID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleObservationHistory(w http.ResponseWriter, r *http.Request) {
	observationID, err := id.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries, err := h.history.List(r.Context(), observationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromHistory(entries))
}
