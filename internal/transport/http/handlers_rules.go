package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	id "remedia/pkg/domain"
	"remedia/pkg/platform/httputil"
)

func (h *Handler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}
	req, ok := httputil.Decode[createRuleRequest](w, r, h.logger)
	if !ok {
		return
	}

	rule, err := h.rules.Create(ctx, req.toInput())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromRule(rule))
}

func (h *Handler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromRules(rules))
}

func (h *Handler) HandleDeactivateRule(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.rules.Deactivate(r.Context(), ruleID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}

	marked, err := h.sweeper.Sweep(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual sweep failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sweepResponse{Marked: marked})
}
