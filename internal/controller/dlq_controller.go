package controller

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	svcdlq "github.com/lcastro/eventcore/internal/dlq"
	"github.com/lcastro/eventcore/internal/domain/dlq"
)

// DLQController exposes dead letter inspection and recovery.
type DLQController struct {
	service *svcdlq.Service
	bus     svcdlq.Publisher
}

func NewDLQController(service *svcdlq.Service, bus svcdlq.Publisher) *DLQController {
	return &DLQController{service: service, bus: bus}
}

// List handles GET /api/v1/dlq
func (h *DLQController) List(w http.ResponseWriter, r *http.Request) {
	filter := dlq.Filter{}

	if s := r.URL.Query().Get("status"); s != "" {
		status := dlq.Status(s)
		if !status.Valid() {
			writeBadRequest(w, "invalid status filter", "invalid_status")
			return
		}
		filter.Status = &status
	}
	if s := r.URL.Query().Get("event_name"); s != "" {
		filter.EventName = &s
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	entries := h.service.GetFailedEvents(r.Context(), filter)

	resp := make([]*EntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, FromEntry(e))
	}
	writeSuccess(w, http.StatusOK, resp)
}

// Retry handles POST /api/v1/dlq/{id}/retry
func (h *DLQController) Retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid entry id", "invalid_id")
		return
	}

	if ok := h.service.RetryEvent(r.Context(), id, h.bus); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, APIResponse{
			Status:  "error",
			Message: "retry did not resolve the entry",
			Code:    "retry_failed",
		})
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"entry_id": id.String(), "result": "resolved"})
}

// RetryAll handles POST /api/v1/dlq/retry. The filter body narrows the batch
// by status (default pending) and event name; retrying failed entries is how
// operators re-drive a batch that did not resolve.
func (h *DLQController) RetryAll(w http.ResponseWriter, r *http.Request) {
	var req BulkRetryRequest
	if r.ContentLength > 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	status := dlq.StatusPending
	if req.Status != nil {
		status = dlq.Status(*req.Status)
		if !status.Valid() {
			writeBadRequest(w, "invalid status filter", "invalid_status")
			return
		}
	}
	filter := dlq.Filter{Status: &status, EventName: req.EventName}

	report := h.service.RetryEvents(r.Context(), filter, h.bus)
	writeSuccess(w, http.StatusOK, report)
}

// Resolve handles POST /api/v1/dlq/{id}/resolve
func (h *DLQController) Resolve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid entry id", "invalid_id")
		return
	}

	if ok := h.service.ResolveEntry(r.Context(), id); !ok {
		writeJSON(w, http.StatusNotFound, APIResponse{
			Status:  "error",
			Message: "entry not found",
			Code:    "not_found",
		})
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"entry_id": id.String(), "result": "resolved"})
}

// Delete handles DELETE /api/v1/dlq/{id}
func (h *DLQController) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "invalid entry id", "invalid_id")
		return
	}

	if ok := h.service.DeleteEntry(r.Context(), id); !ok {
		writeJSON(w, http.StatusNotFound, APIResponse{
			Status:  "error",
			Message: "entry not found",
			Code:    "not_found",
		})
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"entry_id": id.String(), "result": "deleted"})
}
