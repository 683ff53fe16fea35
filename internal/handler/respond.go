// internal/handler/respond.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vendaops/vendaops-backend/internal/apperrors"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var verr *apperrors.ValidationError
	var nf *apperrors.NotFoundError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), http.StatusBadRequest)
	case errors.As(err, &nf):
		http.Error(w, nf.Error(), http.StatusNotFound)
	case errors.Is(err, apperrors.ErrConcurrencyLost):
		http.Error(w, "conflict: record state already changed", http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
