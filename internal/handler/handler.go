package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/edupay/fee-engine/internal/models"
	"github.com/edupay/fee-engine/internal/service"
)

type Handler struct {
	svc *service.Service
	log *logrus.Logger
}

func NewHandler(svc *service.Service, log *logrus.Logger) *Handler {
	return &Handler{svc: svc, log: log}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.log.Errorf("Failed to encode response: %v", err)
		}
	}
}

// respondError maps the domain error taxonomy onto HTTP statuses: validation
// errors block with 422, conflicts with 409, everything unexpected is a 500.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		h.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  verr.Msg,
			"fields": verr.Fields,
		})
		return
	}
	var cerr *models.ConflictError
	if errors.As(err, &cerr) {
		h.respondJSON(w, http.StatusConflict, map[string]any{"error": cerr.Msg})
		return
	}
	if errors.Is(err, models.ErrNotFound) {
		h.respondJSON(w, http.StatusNotFound, map[string]any{"error": "not found"})
		return
	}
	h.log.Errorf("Request failed: %v", err)
	h.respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal server error"})
}
