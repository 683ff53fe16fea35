// internal/handler/dispatch_handler.go
package handler

import (
	"net/http"

	"github.com/vendaops/vendaops-backend/internal/service"
)

// DispatchHandler exposes the manual "process pending now" trigger and the
// dashboard projections.
type DispatchHandler struct {
	Dispatcher *service.Dispatcher
	Messages   *service.MessageService
	Schedules  *service.ScheduleService
}

// Run executes one scheduler pass synchronously and reports counts.
func (h *DispatchHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.Dispatcher.ProcessPending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Stats returns read-only projections for the dashboard and kanban views.
func (h *DispatchHandler) Stats(w http.ResponseWriter, r *http.Request) {
	byStatus, err := h.Messages.CountByStatus()
	if err != nil {
		writeError(w, err)
		return
	}
	byStage, err := h.Schedules.CountByStage()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scheduled_by_status": byStatus,
		"recurring_by_stage":  byStage,
	})
}
