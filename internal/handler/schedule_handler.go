// internal/handler/schedule_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vendaops/vendaops-backend/internal/service"
)

// ScheduleHandler exposes recurring schedules over HTTP.
type ScheduleHandler struct {
	Service *service.ScheduleService
}

func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sched, err := h.Service.Create(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	stage := r.URL.Query().Get("stage")

	schedules, pagination, err := h.Service.List(page, pageSize, stage)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       schedules,
		"pagination": pagination,
	})
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	sched, err := h.Service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if sched == nil {
		http.Error(w, "recurring schedule not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ScheduleHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	active, err := h.Service.Toggle(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}
