package handlers

import (
	"log/slog"
	"net/http"

	"github.com/md-rashed-zaman/bookwell/libs/auth"
	"github.com/md-rashed-zaman/bookwell/libs/httpx"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
)

// OperatorRoles may use the operator API. Changing or removing a client
// needs OwnerRole.
var OperatorRoles = []string{"owner", "admin", "staff"}

const OwnerRole = "owner"

type RoutesConfig struct {
	Verifier auth.Verifier
	// Public wraps the unauthenticated booking routes, typically a rate limiter.
	Public httpx.Middleware
}

// Register mounts the public and operator APIs on mux.
func Register(mux *http.ServeMux, svc *booking.Service, logger *slog.Logger, cfg RoutesConfig) {
	pub := NewBookingHandler(svc, logger)
	public := func(h http.HandlerFunc) http.Handler {
		if cfg.Public == nil {
			return h
		}
		return httpx.Chain(h, cfg.Public)
	}
	mux.Handle("GET /api/v1/public/slots", public(pub.Slots))
	mux.Handle("POST /api/v1/public/bookings", public(pub.Create))
	mux.Handle("GET /api/v1/public/bookings/{id}", public(pub.Get))
	mux.Handle("POST /api/v1/public/bookings/{id}/cancel", public(pub.Cancel))

	op := NewOperatorHandler(svc, logger)
	operator := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, auth.RequireAuth(cfg.Verifier), auth.RequireRole(OperatorRoles...))
	}
	owner := func(h http.HandlerFunc) http.Handler {
		return httpx.Chain(h, auth.RequireAuth(cfg.Verifier), auth.RequireRole(OwnerRole))
	}
	mux.Handle("GET /api/v1/clients", operator(op.ListClients))
	mux.Handle("POST /api/v1/clients", operator(op.CreateClient))
	mux.Handle("GET /api/v1/clients/{id}", operator(op.GetClient))
	mux.Handle("PATCH /api/v1/clients/{id}", owner(op.UpdateClient))
	mux.Handle("DELETE /api/v1/clients/{id}", owner(op.DeleteClient))
	mux.Handle("PUT /api/v1/clients/{id}/settings", operator(op.PutSettings))
	mux.Handle("PUT /api/v1/clients/{id}/availability", operator(op.PutAvailability))
	mux.Handle("GET /api/v1/appointments", operator(op.ListAppointments))
	mux.Handle("PATCH /api/v1/appointments/{id}", operator(op.UpdateAppointment))
}
