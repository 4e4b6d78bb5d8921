package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/edupay/fee-engine/internal/models"
)

// CreateSchedule handles POST /payment-schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var cfg models.PaymentSchedule
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	sched, warnings, err := h.svc.CreateSchedule(r.Context(), &cfg)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"data": sched, "warnings": warnings})
}

// UpdateSchedule handles PUT /payment-schedules/{id}
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var cfg models.PaymentSchedule
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}

	sched, warnings, err := h.svc.UpdateSchedule(r.Context(), id, &cfg)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"data": sched, "warnings": warnings})
}

// DeleteSchedule handles DELETE /payment-schedules/{id}
func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSchedule(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"message": "schedule deleted"})
}

// BulkSetStatus handles POST /payment-schedules/bulk
func (h *Handler) BulkSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScheduleIDs []string              `json:"schedule_ids"`
		Status      models.ScheduleStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return
	}
	if len(req.ScheduleIDs) == 0 {
		h.respondJSON(w, http.StatusBadRequest, map[string]any{"error": "schedule_ids is required"})
		return
	}

	results := h.svc.BulkSetStatus(r.Context(), req.ScheduleIDs, req.Status)
	h.respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// GetStatus handles GET /payment-schedules/{id}/status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfDate(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	view, err := h.svc.GetStatus(r.Context(), mux.Vars(r)["id"], asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"data": view})
}

// SendReminderNow handles POST /payment-schedules/{id}/send-reminder
func (h *Handler) SendReminderNow(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfDate(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	report, err := h.svc.SendReminderNow(r.Context(), mux.Vars(r)["id"], asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"data": report})
}

// RunRecompute handles POST /recompute, the scheduled entry point. An
// explicit as_of date supports historical reruns and previews.
func (h *Handler) RunRecompute(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfDate(r)
	if err != nil {
		h.respondJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	report, err := h.svc.RunDailyRecompute(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"data": report})
}

// asOfDate reads the optional as_of query parameter, defaulting to today. A
// malformed value is rejected rather than silently recomputing against now.
func asOfDate(r *http.Request) (time.Time, error) {
	v := r.URL.Query().Get("as_of")
	if v == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("as_of must be a YYYY-MM-DD date")
	}
	return t, nil
}
