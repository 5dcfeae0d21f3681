package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"remedia/internal/workflow/models"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/httputil"
)

func (h *Handler) HandleCreateAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[createAuditRequest](w, r, h.logger)
	if !ok {
		return
	}
	input, err := req.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	audit, err := h.audits.Create(ctx, input, actorID)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit creation failed", "number", req.Number, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromAudit(audit))
}

func (h *Handler) HandleListAudits(w http.ResponseWriter, r *http.Request) {
	audits, err := h.audits.List(r.Context(), r.URL.Query().Get("include_deleted") == "true")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAudits(audits))
}

func (h *Handler) HandleGetAudit(w http.ResponseWriter, r *http.Request) {
	auditID, err := id.ParseAuditID(chi.URLParam(r, "auditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	audit, err := h.audits.Get(r.Context(), auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAudit(audit))
}

func (h *Handler) HandleTransitionAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	auditID, err := id.ParseAuditID(chi.URLParam(r, "auditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[transitionRequest](w, r, h.logger)
	if !ok {
		return
	}

	audit, err := h.audits.Transition(ctx, auditID, models.AuditStatus(req.Target), actorID)
	if err != nil {
		h.logger.WarnContext(ctx, "audit transition refused",
			"audit_id", auditID.String(),
			"target", req.Target,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAudit(audit))
}

func (h *Handler) HandleDeleteAudit(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	auditID, err := id.ParseAuditID(chi.URLParam(r, "auditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.audits.SoftDelete(r.Context(), auditID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
