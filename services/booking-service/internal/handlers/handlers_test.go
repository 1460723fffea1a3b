package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/md-rashed-zaman/bookwell/libs/auth"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/tokens"
)

const secret = "test-secret"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func newServer(t *testing.T) (*httptest.Server, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	_, err := store.CreateClient(context.Background(), model.Client{
		ID: "c1", AgencyID: "agency-1", Name: "Acme Dental", BookingSlug: "acme", Timezone: "UTC", IsActive: true,
	}, model.DefaultSettings("c1"), model.DefaultRules("c1"))
	require.NoError(t, err)

	now := time.Date(2026, 2, 23, 8, 0, 0, 0, time.UTC)
	svc := booking.NewService(booking.Options{
		Store:  store,
		Tokens: tokens.NewIssuer(bcrypt.MinCost),
		Now:    func() time.Time { return now },
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mux := http.NewServeMux()
	Register(mux, svc, logger, RoutesConfig{Verifier: auth.Verifier{Secret: secret}})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, store
}

func operatorToken(t *testing.T, agency, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.NewClaims("user-1", agency, role, time.Hour), secret)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, method, url, token string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func bookingBody(start string) map[string]any {
	return map[string]any{
		"client":         "acme",
		"start_time":     start,
		"customer_name":  "Jane Doe",
		"customer_email": "jane@example.com",
	}
}

func TestSlotsEndpoint(t *testing.T) {
	srv, _ := newServer(t)

	status, env := do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?client=acme&date=2026-03-02", "", nil)
	require.Equal(t, http.StatusOK, status)
	var slots []slotItem
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	require.NotEmpty(t, slots)
	assert.Equal(t, "09:00", slots[0].Time)
	assert.Equal(t, "9:00 AM", slots[0].Display)
	assert.Equal(t, "2026-03-02T09:00:00Z", slots[0].Start)

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?client=unknown&date=2026-03-02", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?client=acme", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestBookingLifecycleEndpoints(t *testing.T) {
	srv, _ := newServer(t)

	status, env := do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", bookingBody("2026-03-02T09:00:00Z"))
	require.Equal(t, http.StatusCreated, status)
	var res booking.BookResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "2026-03-02T09:30:00Z", res.Appointment.EndTime.UTC().Format(time.RFC3339))
	require.NotEmpty(t, res.CancellationToken)
	assert.NotContains(t, string(env.Data), "token_hash")

	status, env = do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", bookingBody("2026-03-02T09:00:00Z"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "SLOT_UNAVAILABLE", env.Error.Code)

	base := srv.URL + "/api/v1/public/bookings/" + res.Appointment.ID
	status, _ = do(t, http.MethodGet, base+"?token="+res.CancellationToken, "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = do(t, http.MethodPost, base+"/cancel", "", nil, "X-Cancellation-Token", res.CancellationToken)
	require.Equal(t, http.StatusOK, status)
	var cancelled model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &cancelled))
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	status, env = do(t, http.MethodPost, base+"/cancel?token="+res.CancellationToken, "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCreateBookingErrors(t *testing.T) {
	srv, _ := newServer(t)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"bad start", bookingBody("tomorrow"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"past", bookingBody("2026-02-20T09:00:00Z"), http.StatusBadRequest, "BOOKING_IN_PAST"},
		{"notice", bookingBody("2026-02-23T15:00:00Z"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown field", map[string]any{"client": "acme", "end_time": "x"}, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, env := do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", tc.body)
			assert.Equal(t, tc.status, status)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}

	body := bookingBody("2026-03-02T09:00:00Z")
	body["client"] = "missing"
	status, env := do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", body)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestConcurrentBookingRequests(t *testing.T) {
	srv, _ := newServer(t)

	const n = 10
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i], _ = do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", bookingBody("2026-03-03T10:30:00Z"))
		}(i)
	}
	wg.Wait()

	counts := map[int]int{}
	for _, s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[http.StatusCreated])
	assert.Equal(t, n-1, counts[http.StatusConflict])
}

func TestIdempotencyKeyHeader(t *testing.T) {
	srv, store := newServer(t)

	status, first := do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", bookingBody("2026-03-02T09:00:00Z"), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusCreated, status)
	status, second := do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", bookingBody("2026-03-02T09:00:00Z"), "Idempotency-Key", "abc")
	require.Equal(t, http.StatusOK, status)

	var a, b booking.BookResult
	require.NoError(t, json.Unmarshal(first.Data, &a))
	require.NoError(t, json.Unmarshal(second.Data, &b))
	assert.Equal(t, a.Appointment.ID, b.Appointment.ID)
	assert.NotEmpty(t, a.CancellationToken)
	assert.Empty(t, b.CancellationToken)
	assert.True(t, b.Replayed)
	assert.NotContains(t, string(second.Data), "cancellation_token")

	appts, err := store.ListAppointments(context.Background(), "agency-1", model.AppointmentFilter{})
	require.NoError(t, err)
	assert.Len(t, appts, 1)
}

func TestOperatorRequiresAuth(t *testing.T) {
	srv, _ := newServer(t)

	status, env := do(t, http.MethodGet, srv.URL+"/api/v1/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/appointments", operatorToken(t, "agency-1", "customer"), nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)
}

func TestOperatorFlow(t *testing.T) {
	srv, _ := newServer(t)
	tok := operatorToken(t, "agency-1", "admin")

	status, env := do(t, http.MethodPost, srv.URL+"/api/v1/clients", tok, map[string]any{
		"name": "Beta Spa", "booking_slug": "beta-spa", "timezone": "UTC",
	})
	require.Equal(t, http.StatusCreated, status)
	var cfg booking.ClientConfig
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	assert.Equal(t, "agency-1", cfg.Client.AgencyID)

	status, env = do(t, http.MethodPut, srv.URL+"/api/v1/clients/beta-spa/settings", tok, map[string]any{
		"appointment_duration_minutes": 60,
		"buffer_time_minutes":          0,
		"max_bookings_per_day":         5,
		"min_notice_hours":             2,
		"max_advance_days":             30,
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = do(t, http.MethodPut, srv.URL+"/api/v1/clients/beta-spa/availability", tok, map[string]any{
		"rules": []map[string]any{{"day_of_week": 0, "start_time": "10:00", "end_time": "12:00", "is_available": true}},
	})
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?client=beta-spa&date=2026-03-02", "", nil)
	require.Equal(t, http.StatusOK, status)
	var slots []slotItem
	require.NoError(t, json.Unmarshal(env.Data, &slots))
	require.Len(t, slots, 2)
	assert.Equal(t, "10:00", slots[0].Time)
	assert.Equal(t, "11:00", slots[1].Time)

	body := bookingBody(slots[1].Start)
	body["client"] = "beta-spa"
	status, env = do(t, http.MethodPost, srv.URL+"/api/v1/public/bookings", "", body)
	require.Equal(t, http.StatusCreated, status)
	var res booking.BookResult
	require.NoError(t, json.Unmarshal(env.Data, &res))

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/appointments?client_id=beta-spa&from=2026-03-02", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var list []model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)

	status, env = do(t, http.MethodPatch, srv.URL+"/api/v1/appointments/"+res.Appointment.ID, tok, map[string]any{"status": "no_show"})
	require.Equal(t, http.StatusOK, status)
	var updated model.Appointment
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, model.StatusNoShow, updated.Status)

	other := operatorToken(t, "agency-2", "owner")
	status, env = do(t, http.MethodPatch, srv.URL+"/api/v1/appointments/"+res.Appointment.ID, other, map[string]any{"status": "cancelled"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/appointments?from=yesterday", tok, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestClientManagementRoutes(t *testing.T) {
	srv, store := newServer(t)
	owner := operatorToken(t, "agency-1", "owner")
	staff := operatorToken(t, "agency-1", "staff")

	status, env := do(t, http.MethodGet, srv.URL+"/api/v1/clients", staff, nil)
	require.Equal(t, http.StatusOK, status)
	var list []model.Client
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "acme", list[0].BookingSlug)

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/clients", operatorToken(t, "agency-2", "owner"), nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, env = do(t, http.MethodPatch, srv.URL+"/api/v1/clients/acme", staff, map[string]any{"name": "Acme Care"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, env = do(t, http.MethodPatch, srv.URL+"/api/v1/clients/acme", operatorToken(t, "agency-2", "owner"), map[string]any{"name": "Acme Care"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, env = do(t, http.MethodPatch, srv.URL+"/api/v1/clients/acme", owner, map[string]any{"timezone": "Nowhere/Land"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	status, env = do(t, http.MethodPatch, srv.URL+"/api/v1/clients/acme", owner, map[string]any{"name": "Acme Care", "is_active": false})
	require.Equal(t, http.StatusOK, status)
	var updated model.Client
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "Acme Care", updated.Name)
	assert.False(t, updated.IsActive)

	status, env = do(t, http.MethodGet, srv.URL+"/api/v1/public/slots?client=acme&date=2026-03-02", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(env.Data))

	status, _ = do(t, http.MethodDelete, srv.URL+"/api/v1/clients/acme", staff, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = do(t, http.MethodDelete, srv.URL+"/api/v1/clients/acme", owner, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"success":true}`, string(env.Data))

	status, _ = do(t, http.MethodGet, srv.URL+"/api/v1/clients/acme", owner, nil)
	assert.Equal(t, http.StatusNotFound, status)
	_, err := store.ClientByRef(context.Background(), "c1")
	assert.ErrorIs(t, err, booking.ErrNotFound)
}
