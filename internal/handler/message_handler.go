// internal/handler/message_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vendaops/vendaops-backend/internal/service"
)

// MessageHandler exposes one-off scheduled messages over HTTP.
type MessageHandler struct {
	Service *service.MessageService
}

func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateMessageInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.Service.Create(in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	messages, pagination, err := h.Service.List(page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       messages,
		"pagination": pagination,
	})
}

func (h *MessageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	msg, err := h.Service.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if msg == nil {
		http.Error(w, "scheduled message not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MessageHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Retry(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pending"})
}

func (h *MessageHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *MessageHandler) Approve(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Approve(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"requires_approval": false})
}

func (h *MessageHandler) SendNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Service.SendNow(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"queued": id})
}
