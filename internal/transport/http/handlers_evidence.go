package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"remedia/internal/evidence"
	id "remedia/pkg/domain"
	"remedia/pkg/platform/httputil"
)

func (h *Handler) HandleUploadEvidence(w http.ResponseWriter, r *http.Request) {
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
	req, ok := httputil.Decode[uploadEvidenceRequest](w, r, h.logger)
	if !ok {
		return
	}

	ev, err := h.evidence.Upload(ctx, evidence.UploadInput{
		ObservationID: observationID,
		FileName:      req.FileName,
		FileRef:       req.FileRef,
	}, actorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromEvidence(ev))
}

func (h *Handler) HandleListEvidence(w http.ResponseWriter, r *http.Request) {
	observationID, err := id.ParseObservationID(chi.URLParam(r, "observationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	list, err := h.evidence.ListByObservation(r.Context(), observationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromEvidenceList(list))
}

func (h *Handler) HandleSupersedeEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[uploadEvidenceRequest](w, r, h.logger)
	if !ok {
		return
	}

	ev, err := h.evidence.Supersede(ctx, evidenceID, evidence.UploadInput{
		FileName: req.FileName,
		FileRef:  req.FileRef,
	}, actorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromEvidence(ev))
}

func (h *Handler) HandleReviewEvidence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	evidenceID, err := id.ParseEvidenceID(chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[reviewEvidenceRequest](w, r, h.logger)
	if !ok {
		return
	}

	ev, err := h.evidence.Review(ctx, evidenceID, req.toInput(), actorID)
	if err != nil {
		h.logger.WarnContext(ctx, "evidence review refused",
			"evidence_id", evidenceID.String(),
			"decision", req.Decision,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromEvidence(ev))
}

func (h *Handler) HandleSubmitForReview(w http.ResponseWriter, r *http.Request) {
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

	obs, err := h.evidence.SubmitForReview(ctx, observationID, actorID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}

func (h *Handler) HandleApproveAndClose(w http.ResponseWriter, r *http.Request) {
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

	obs, err := h.evidence.ApproveAndClose(ctx, observationID, actorID)
	if err != nil {
		h.logger.WarnContext(ctx, "approve and close refused",
			"observation_id", observationID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromObservation(obs))
}
