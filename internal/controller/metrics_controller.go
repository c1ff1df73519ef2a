package controller

import (
	"net/http"
	"sort"

	"github.com/lcastro/eventcore/internal/eventbus"
)

// MetricsController exposes the bus's per-type delivery counters.
type MetricsController struct {
	bus *eventbus.Bus
}

func NewMetricsController(bus *eventbus.Bus) *MetricsController {
	return &MetricsController{bus: bus}
}

// Events handles GET /api/v1/metrics/events
func (h *MetricsController) Events(w http.ResponseWriter, r *http.Request) {
	resp := FromTypeMetrics(h.bus.Metrics())
	sort.Slice(resp, func(i, j int) bool { return resp[i].EventType < resp[j].EventType })
	writeSuccess(w, http.StatusOK, resp)
}

// Reset handles POST /api/v1/metrics/events/reset
func (h *MetricsController) Reset(w http.ResponseWriter, r *http.Request) {
	h.bus.ResetMetrics()
	writeSuccess(w, http.StatusOK, map[string]string{"result": "reset"})
}
