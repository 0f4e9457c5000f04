package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quickagent/callminder/internal/appointments"
	"github.com/quickagent/callminder/internal/callhistory"
	"github.com/quickagent/callminder/internal/reminders"
	"github.com/quickagent/callminder/internal/telephony"
	"github.com/quickagent/callminder/pkg/logging"
)

// Dispatcher places a manually triggered reminder call.
type Dispatcher interface {
	Dispatch(ctx context.Context, appt *appointments.Appointment, kind reminders.Kind) (string, error)
}

// DashboardHandler serves the operator REST API: appointment CRUD, manual
// call triggering, and call history.
type DashboardHandler struct {
	appts      *appointments.Store
	history    *callhistory.Store
	dispatcher Dispatcher
	logger     *logging.Logger
}

func NewDashboardHandler(appts *appointments.Store, history *callhistory.Store, dispatcher Dispatcher, logger *logging.Logger) *DashboardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DashboardHandler{
		appts:      appts,
		history:    history,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

type createAppointmentRequest struct {
	Name          string    `json:"name"`
	PhoneNumber   string    `json:"phone_number"`
	AppointmentAt time.Time `json:"appointment_at"`
	Notes         string    `json:"notes,omitempty"`
}

// CreateAppointment handles POST /api/appointments.
func (h *DashboardHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.AppointmentAt.IsZero() {
		writeError(w, http.StatusBadRequest, "name and appointment_at are required")
		return
	}
	phone := telephony.NormalizeE164(req.PhoneNumber)
	if phone != "" && !telephony.ValidE164(phone) {
		writeError(w, http.StatusBadRequest, "phone_number is not a valid E.164 number")
		return
	}

	appt := &appointments.Appointment{
		Name:        req.Name,
		PhoneNumber: phone,
		At:          req.AppointmentAt.UTC(),
		Notes:       req.Notes,
	}
	if err := h.appts.Create(r.Context(), appt); err != nil {
		h.logger.Error("create appointment failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ListAppointments handles GET /api/appointments?name=&limit=.
func (h *DashboardHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	list, err := h.appts.List(r.Context(), r.URL.Query().Get("name"), limit)
	if err != nil {
		h.logger.Error("list appointments failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}
	if list == nil {
		list = []appointments.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// GetAppointment handles GET /api/appointments/{id}.
func (h *DashboardHandler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("get appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// TriggerCall handles POST /api/appointments/{id}/call. Manual calls use the
// general reminder kind and skip the ledger: an operator clicking the button
// twice means two calls, by request.
func (h *DashboardHandler) TriggerCall(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}
	appt, err := h.appts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		h.logger.Error("get appointment failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}

	sessionID, err := h.dispatcher.Dispatch(r.Context(), appt, reminders.KindGeneral)
	if err != nil {
		if reminders.IsDispatchError(err) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.logger.Error("manual call dispatch failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusBadGateway, "call could not be placed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

// RecentCalls handles GET /api/calls/recent?limit=.
func (h *DashboardHandler) RecentCalls(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	calls, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent calls failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list calls")
		return
	}
	if calls == nil {
		calls = []callhistory.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": calls})
}

// DashboardData handles GET /api/dashboard-data: the aggregate view the
// operator UI renders on load.
func (h *DashboardHandler) DashboardData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	upcoming, past, err := h.appts.CountByTimeframe(ctx, now)
	if err != nil {
		h.logger.Error("appointment counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard data")
		return
	}
	outcomes, err := h.history.CountByOutcome(ctx)
	if err != nil {
		h.logger.Error("outcome counts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard data")
		return
	}
	recent, err := h.history.ListRecent(ctx, 10)
	if err != nil {
		h.logger.Error("recent calls failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard data")
		return
	}
	if recent == nil {
		recent = []callhistory.Summary{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"upcoming_appointments": upcoming,
		"past_appointments":     past,
		"call_outcomes":         outcomes,
		"recent_calls":          recent,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
