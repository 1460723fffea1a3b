package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/bookwell/libs/httpx"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
)

// BookingHandler serves the unauthenticated booking page API.
type BookingHandler struct {
	svc    *booking.Service
	logger *slog.Logger
}

func NewBookingHandler(svc *booking.Service, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, logger: logger}
}

type createBookingRequest struct {
	ClientID      string `json:"client_id"`
	Client        string `json:"client"`
	StartTime     string `json:"start_time"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	Notes         string `json:"notes"`
}

type slotItem struct {
	Time    string `json:"time"`
	Display string `json:"display"`
	Start   string `json:"start_time"`
	End     string `json:"end_time"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	client := strings.TrimSpace(q.Get("client"))
	if client == "" {
		client = strings.TrimSpace(q.Get("client_id"))
	}
	date := strings.TrimSpace(q.Get("date"))
	if client == "" || date == "" {
		writeValidation(w, "client and date are required")
		return
	}

	slots, err := h.svc.Slots(r.Context(), client, date)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			Time:    s.Time,
			Display: s.Display,
			Start:   s.Start.UTC().Format(time.RFC3339),
			End:     s.End.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteData(w, http.StatusOK, items)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	clientRef := req.ClientID
	if clientRef == "" {
		clientRef = req.Client
	}
	startTime, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{
			Code:    string(booking.CodeValidation),
			Message: "start_time must be an RFC 3339 timestamp",
			Details: map[string]any{"field": "start_time"},
		})
		return
	}

	res, err := h.svc.Book(r.Context(), booking.BookRequest{
		ClientRef:      clientRef,
		StartTime:      startTime,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if res.Replayed {
		httpx.WriteData(w, http.StatusOK, res)
		return
	}
	httpx.WriteData(w, http.StatusCreated, res)
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.GetWithToken(r.Context(), r.PathValue("id"), bookingToken(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.CancelWithToken(r.Context(), r.PathValue("id"), bookingToken(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteData(w, http.StatusOK, appt)
}

// bookingToken reads the cancellation token from the query string or the
// X-Cancellation-Token header.
func bookingToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("token")); t != "" {
		return t
	}
	return strings.TrimSpace(r.Header.Get("X-Cancellation-Token"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, http.StatusRequestEntityTooLarge, httpx.ErrorBody{Code: string(booking.CodeValidation), Message: "request body too large"})
			return false
		}
		if errors.Is(err, io.EOF) {
			writeValidation(w, "request body is required")
			return false
		}
		writeValidation(w, "invalid json body")
		return false
	}
	return true
}

func writeValidation(w http.ResponseWriter, msg string) {
	httpx.WriteError(w, http.StatusBadRequest, httpx.ErrorBody{Code: string(booking.CodeValidation), Message: msg})
}

// writeServiceError renders a classified error. Internal failures are logged
// with the request id and shown with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	e := booking.AsError(err)
	if e.Code == booking.CodeInternal {
		logger.ErrorContext(r.Context(), "request failed", "request_id", httpx.RequestIDFromContext(r.Context()), "path", r.URL.Path, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, httpx.ErrorBody{Code: string(booking.CodeInternal), Message: "internal error"})
		return
	}
	httpx.WriteError(w, e.Code.HTTPStatus(), httpx.ErrorBody{Code: string(e.Code), Message: e.Message, Details: e.Details})
}
