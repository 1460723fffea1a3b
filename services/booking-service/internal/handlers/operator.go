package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookwell/libs/auth"
	"github.com/md-rashed-zaman/bookwell/libs/httpx"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

// OperatorHandler serves agency staff. Every route expects auth.RequireAuth
// upstream; the agency comes from the token, never from the request.
type OperatorHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewOperatorHandler(svc *booking.Service, logger *slog.Logger) *OperatorHandler {
	return &OperatorHandler{svc: svc, logger: logger}
}

type createClientRequest struct {
	Name        string `json:"name"`
	BookingSlug string `json:"booking_slug"`
	Timezone    string `json:"timezone"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

type updateClientRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Timezone *string `json:"timezone"`
	IsActive *bool   `json:"is_active"`
}

type settingsRequest struct {
	AppointmentDurationMinutes int `json:"appointment_duration_minutes"`
	BufferTimeMinutes          int `json:"buffer_time_minutes"`
	MaxBookingsPerDay          int `json:"max_bookings_per_day"`
	MinNoticeHours             int `json:"min_notice_hours"`
	MaxAdvanceDays             int `json:"max_advance_days"`
}

type ruleRequest struct {
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

type availabilityRequest struct {
	Rules []ruleRequest `json:"rules"`
}

type updateAppointmentRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func agencyID(r *http.Request) string {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return claims.AgencyID
}

func (h *OperatorHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cfg, err := h.svc.CreateClient(r.Context(), agencyID(r), booking.NewClient{
		Name:        req.Name,
		BookingSlug: req.BookingSlug,
		Timezone:    req.Timezone,
		Email:       req.Email,
		Phone:       req.Phone,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusCreated, cfg)
}

func (h *OperatorHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.ListClients(r.Context(), agencyID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, clients)
}

func (h *OperatorHandler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	var req updateClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.UpdateClient(r.Context(), agencyID(r), r.PathValue("id"), booking.ClientPatch{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Timezone: req.Timezone,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, c)
}

func (h *OperatorHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteClient(r.Context(), agencyID(r), r.PathValue("id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *OperatorHandler) GetClient(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.GetClientConfig(r.Context(), agencyID(r), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, cfg)
}

func (h *OperatorHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.svc.PutSettings(r.Context(), agencyID(r), r.PathValue("id"), model.ClientSettings{
		AppointmentDurationMinutes: req.AppointmentDurationMinutes,
		BufferTimeMinutes:          req.BufferTimeMinutes,
		MaxBookingsPerDay:          req.MaxBookingsPerDay,
		MinNoticeHours:             req.MinNoticeHours,
		MaxAdvanceDays:             req.MaxAdvanceDays,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, s)
}

func (h *OperatorHandler) PutAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rules := make([]model.AvailabilityRule, 0, len(req.Rules))
	for _, rr := range req.Rules {
		rules = append(rules, model.AvailabilityRule{
			DayOfWeek:   rr.DayOfWeek,
			StartTime:   strings.TrimSpace(rr.StartTime),
			EndTime:     strings.TrimSpace(rr.EndTime),
			IsAvailable: rr.IsAvailable,
		})
	}
	saved, err := h.svc.PutAvailability(r.Context(), agencyID(r), r.PathValue("id"), rules)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, saved)
}

func (h *OperatorHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.AppointmentFilter{
		ClientID: strings.TrimSpace(q.Get("client_id")),
		Status:   model.AppointmentStatus(strings.TrimSpace(q.Get("status"))),
	}
	var ok bool
	if f.From, ok = parseTimeParam(w, q.Get("from"), "from"); !ok {
		return
	}
	if f.To, ok = parseTimeParam(w, q.Get("to"), "to"); !ok {
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeValidation(w, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	appts, err := h.svc.ListAppointments(r.Context(), agencyID(r), f)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	httpx.WriteData(w, http.StatusOK, appts)
}

// parseTimeParam accepts RFC 3339 or a bare YYYY-MM-DD (UTC midnight).
func parseTimeParam(w http.ResponseWriter, raw, name string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
		Code:    string(booking.CodeValidation),
		Message: name + " must be RFC 3339 or YYYY-MM-DD",
		Details: map[string]any{"field": name},
	})
	return time.Time{}, false
}

func (h *OperatorHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	var req updateAppointmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var upd booking.UpdateRequest
	if req.Status != nil {
		s := model.AppointmentStatus(strings.TrimSpace(*req.Status))
		upd.Status = &s
	}
	upd.Notes = req.Notes

	appt, err := h.svc.UpdateAppointment(r.Context(), agencyID(r), r.PathValue("id"), upd)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}
