package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lcastro/eventcore/internal/domain/evaluation"
)

// EvaluationController drives the event-producing side of the pipeline. The
// surface is deliberately thin; the full assessment product lives elsewhere.
type EvaluationController struct {
	repo evaluation.Repository
}

func NewEvaluationController(repo evaluation.Repository) *EvaluationController {
	return &EvaluationController{repo: repo}
}

// Create handles POST /api/v1/evaluations
func (h *EvaluationController) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEvaluationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	e, err := evaluation.New(req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Create(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, FromEvaluation(e))
}

// Get handles GET /api/v1/evaluations/{id}
func (h *EvaluationController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid evaluation id", "invalid_id")
		return
	}

	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, FromEvaluation(e))
}

// RecordScore handles POST /api/v1/evaluations/{id}/scores
func (h *EvaluationController) RecordScore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid evaluation id", "invalid_id")
		return
	}

	var req RecordScoreRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := e.RecordScore(req.Trait, req.Score); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Save(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, FromEvaluation(e))
}

// Complete handles POST /api/v1/evaluations/{id}/complete. Saving a completed
// evaluation publishes EVALUATION_COMPLETED to the subscribed handlers.
func (h *EvaluationController) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid evaluation id", "invalid_id")
		return
	}

	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := e.Complete(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Save(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, FromEvaluation(e))
}

// Archive handles POST /api/v1/evaluations/{id}/archive.
func (h *EvaluationController) Archive(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid evaluation id", "invalid_id")
		return
	}

	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := e.Archive(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Save(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, FromEvaluation(e))
}
