package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/outbox"
)

type busyKey struct {
	clientID, source, externalID string
}

type idemKey struct {
	clientID, key string
}

// Memory is a process-local booking.Store used when no database is
// configured and in tests. Client locks are one-slot channels so waiting
// honours context cancellation; writes made inside WithClientLock are
// staged and applied only when fn returns nil.
type Memory struct {
	mu       sync.RWMutex
	clients  map[string]model.Client
	slugs    map[string]string
	settings map[string]model.ClientSettings
	rules    map[string][]model.AvailabilityRule
	appts    map[string]model.Appointment
	busy     map[busyKey]model.BusyBlock
	idem     map[idemKey][]byte
	events   []outbox.Record
	inbox    map[string]struct{}
	nextID   int64
	now      func() time.Time

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	publishMu sync.Mutex
	remindMu  sync.Mutex
}

func NewMemory() *Memory {
	return &Memory{
		clients:  map[string]model.Client{},
		slugs:    map[string]string{},
		settings: map[string]model.ClientSettings{},
		rules:    map[string][]model.AvailabilityRule{},
		appts:    map[string]model.Appointment{},
		busy:     map[busyKey]model.BusyBlock{},
		idem:     map[idemKey][]byte{},
		inbox:    map[string]struct{}{},
		now:      time.Now,
		locks:    map[string]chan struct{}{},
	}
}

var _ booking.Store = (*Memory)(nil)

func (m *Memory) ClientByRef(_ context.Context, ref string) (model.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.clients[ref]; ok {
		return c, nil
	}
	if id, ok := m.slugs[ref]; ok {
		return m.clients[id], nil
	}
	return model.Client{}, booking.ErrNotFound
}

func (m *Memory) CreateClient(_ context.Context, c model.Client, s model.ClientSettings, rules []model.AvailabilityRule) (model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slugs[c.BookingSlug]; ok {
		return model.Client{}, booking.ErrDuplicate
	}
	if _, ok := m.clients[c.ID]; ok {
		return model.Client{}, booking.ErrDuplicate
	}
	c.CreatedAt = m.now().UTC()
	m.clients[c.ID] = c
	m.slugs[c.BookingSlug] = c.ID
	m.settings[c.ID] = s
	m.rules[c.ID] = append([]model.AvailabilityRule(nil), rules...)
	return c, nil
}

func (m *Memory) ListClients(_ context.Context, agencyID string) ([]model.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []model.Client{}
	for _, c := range m.clients {
		if c.AgencyID == agencyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) UpdateClient(_ context.Context, c model.Client) (model.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.clients[c.ID]
	if !ok {
		return model.Client{}, booking.ErrNotFound
	}
	prev.Name = c.Name
	prev.Email = c.Email
	prev.Phone = c.Phone
	prev.Timezone = c.Timezone
	prev.IsActive = c.IsActive
	m.clients[c.ID] = prev
	return prev, nil
}

func (m *Memory) DeleteClient(_ context.Context, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[clientID]
	if !ok {
		return booking.ErrNotFound
	}
	delete(m.clients, clientID)
	delete(m.slugs, c.BookingSlug)
	delete(m.settings, clientID)
	delete(m.rules, clientID)
	for id, a := range m.appts {
		if a.ClientID == clientID {
			delete(m.appts, id)
		}
	}
	for k := range m.busy {
		if k.clientID == clientID {
			delete(m.busy, k)
		}
	}
	for k := range m.idem {
		if k.clientID == clientID {
			delete(m.idem, k)
		}
	}
	return nil
}

// PutClient stores c as is. Used for seeding.
func (m *Memory) PutClient(c model.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.clients[c.ID]; ok {
		delete(m.slugs, prev.BookingSlug)
	}
	m.clients[c.ID] = c
	if c.BookingSlug != "" {
		m.slugs[c.BookingSlug] = c.ID
	}
}

func (m *Memory) Settings(_ context.Context, clientID string) (model.ClientSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.settings[clientID]; ok {
		return s, nil
	}
	return model.DefaultSettings(clientID), nil
}

func (m *Memory) SaveSettings(_ context.Context, s model.ClientSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.ClientID] = s
	return nil
}

func (m *Memory) Rules(_ context.Context, clientID string) ([]model.AvailabilityRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := append([]model.AvailabilityRule(nil), m.rules[clientID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].DayOfWeek < out[j].DayOfWeek })
	return out, nil
}

func (m *Memory) ReplaceRules(_ context.Context, clientID string, rules []model.AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[clientID] = append([]model.AvailabilityRule(nil), rules...)
	return nil
}

func (m *Memory) ListConfirmed(_ context.Context, clientID string, from, to time.Time) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.confirmedLocked(clientID, from, to, nil), nil
}

func (m *Memory) confirmedLocked(clientID string, from, to time.Time, staged map[string]model.Appointment) []model.Appointment {
	var out []model.Appointment
	consider := func(a model.Appointment) {
		if a.ClientID == clientID && a.Status == model.StatusConfirmed && a.StartTime.Before(to) && a.EndTime.After(from) {
			out = append(out, a)
		}
	}
	for id, a := range m.appts {
		if s, ok := staged[id]; ok {
			a = s
		}
		consider(a)
	}
	for id, a := range staged {
		if _, ok := m.appts[id]; !ok {
			consider(a)
		}
	}
	sortAppointments(out)
	return out
}

func (m *Memory) ListBusyBlocks(_ context.Context, clientID string, from, to time.Time) ([]model.BusyBlock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.busyLocked(clientID, from, to), nil
}

func (m *Memory) busyLocked(clientID string, from, to time.Time) []model.BusyBlock {
	var out []model.BusyBlock
	for _, b := range m.busy {
		if b.ClientID == clientID && b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (m *Memory) UpsertBusyBlock(_ context.Context, b model.BusyBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy[busyKey{b.ClientID, b.Source, b.ExternalID}] = b
	return nil
}

func (m *Memory) DeleteBusyBlock(_ context.Context, clientID, source, externalID string) (model.BusyBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := busyKey{clientID, source, externalID}
	b, ok := m.busy[k]
	if !ok {
		return model.BusyBlock{}, booking.ErrNotFound
	}
	delete(m.busy, k)
	return b, nil
}

func (m *Memory) Appointment(_ context.Context, id string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, booking.ErrNotFound
	}
	return a, nil
}

func (m *Memory) ListAppointments(_ context.Context, agencyID string, f model.AppointmentFilter) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		c, ok := m.clients[a.ClientID]
		switch {
		case !ok || c.AgencyID != agencyID:
			continue
		case f.ClientID != "" && a.ClientID != f.ClientID:
			continue
		case f.Status != "" && a.Status != f.Status:
			continue
		case !f.From.IsZero() && a.StartTime.Before(f.From):
			continue
		case !f.To.IsZero() && !a.StartTime.Before(f.To):
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortAppointments(a []model.Appointment) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].StartTime.Equal(a[j].StartTime) {
			return a[i].ID < a[j].ID
		}
		return a[i].StartTime.Before(a[j].StartTime)
	})
}

func (m *Memory) clientLock(clientID string) chan struct{} {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[clientID]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[clientID] = l
	}
	return l
}

func (m *Memory) WithClientLock(ctx context.Context, clientID string, fn func(booking.Tx) error) error {
	l := m.clientLock(clientID)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l }()

	tx := &memTx{m: m, appts: map[string]model.Appointment{}}
	if err := fn(tx); err != nil {
		return err
	}
	return m.commit(tx)
}

func (m *Memory) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range tx.appts {
		if a.Status == model.StatusConfirmed && m.overlapsLocked(a) {
			return booking.ErrSlotTaken
		}
	}
	for id, a := range tx.appts {
		m.appts[id] = a
	}
	for _, evt := range tx.events {
		m.nextID++
		m.events = append(m.events, outbox.Record{ID: m.nextID, EventID: uuid.NewString(), Event: evt})
	}
	for k, v := range tx.idem {
		m.idem[k] = v
	}
	return nil
}

// overlapsLocked mirrors the appointments exclusion constraint: confirmed
// rows of one client may not share any instant of [start, end+buffer).
func (m *Memory) overlapsLocked(a model.Appointment) bool {
	for id, b := range m.appts {
		if id == a.ID || b.ClientID != a.ClientID || b.Status != model.StatusConfirmed {
			continue
		}
		if a.StartTime.Before(b.BlockedUntil()) && b.StartTime.Before(a.BlockedUntil()) {
			return true
		}
	}
	return false
}

type memTx struct {
	m      *Memory
	appts  map[string]model.Appointment
	events []outbox.Event
	idem   map[idemKey][]byte
}

func (t *memTx) ListConfirmed(_ context.Context, clientID string, from, to time.Time) ([]model.Appointment, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	return t.m.confirmedLocked(clientID, from, to, t.appts), nil
}

func (t *memTx) ListBusyBlocks(ctx context.Context, clientID string, from, to time.Time) ([]model.BusyBlock, error) {
	return t.m.ListBusyBlocks(ctx, clientID, from, to)
}

func (t *memTx) CountConfirmed(_ context.Context, clientID string, from, to time.Time) (int, error) {
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	n := 0
	for _, a := range t.m.confirmedLocked(clientID, from, to.Add(time.Nanosecond), t.appts) {
		if !a.StartTime.Before(from) && !a.StartTime.After(to) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	t.m.mu.RLock()
	for _, b := range t.m.confirmedLocked(a.ClientID, a.StartTime.Add(-24*time.Hour), a.BlockedUntil().Add(24*time.Hour), t.appts) {
		if a.StartTime.Before(b.BlockedUntil()) && b.StartTime.Before(a.BlockedUntil()) {
			t.m.mu.RUnlock()
			return booking.ErrSlotTaken
		}
	}
	now := t.m.now().UTC()
	t.m.mu.RUnlock()

	a.ID = uuid.NewString()
	a.CreatedAt = now
	a.UpdatedAt = now
	t.appts[a.ID] = *a
	return nil
}

func (t *memTx) TransitionStatus(_ context.Context, id string, from, to model.AppointmentStatus, notes *string, at time.Time) (model.Appointment, error) {
	a, ok := t.appts[id]
	if !ok {
		t.m.mu.RLock()
		a, ok = t.m.appts[id]
		t.m.mu.RUnlock()
	}
	if !ok || a.Status != from {
		return model.Appointment{}, booking.ErrNotFound
	}
	a.Status = to
	if notes != nil {
		a.Notes = *notes
	}
	a.UpdatedAt = at
	if to == model.StatusCancelled {
		cancelledAt := at
		a.CancelledAt = &cancelledAt
	}
	t.appts[id] = a
	return a, nil
}

func (t *memTx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

func (m *Memory) Idempotency(_ context.Context, clientID, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.idem[idemKey{clientID, key}]
	return v, ok, nil
}

func (t *memTx) Idempotency(_ context.Context, clientID, key string) ([]byte, bool, error) {
	k := idemKey{clientID, key}
	if v, ok := t.idem[k]; ok {
		return v, true, nil
	}
	t.m.mu.RLock()
	defer t.m.mu.RUnlock()
	v, ok := t.m.idem[k]
	return v, ok, nil
}

func (t *memTx) SaveIdempotency(_ context.Context, clientID, key, _ string, response []byte) error {
	if t.idem == nil {
		t.idem = map[idemKey][]byte{}
	}
	t.idem[idemKey{clientID, key}] = append([]byte(nil), response...)
	return nil
}

// PublishBatch hands up to limit unpublished events to fn and drops them
// once fn succeeds.
func (m *Memory) PublishBatch(ctx context.Context, limit int, fn func(context.Context, []outbox.Record) error) (int, error) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.RLock()
	n := len(m.events)
	if limit > 0 && n > limit {
		n = limit
	}
	batch := append([]outbox.Record(nil), m.events[:n]...)
	m.mu.RUnlock()
	if len(batch) == 0 {
		return 0, nil
	}
	if err := fn(ctx, batch); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.events = m.events[n:]
	m.mu.Unlock()
	return n, nil
}

// Events returns the events not yet published.
func (m *Memory) Events() []outbox.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]outbox.Record(nil), m.events...)
}

func (m *Memory) ProcessDueReminders(ctx context.Context, from, to time.Time, limit int, fn func(context.Context, model.Client, model.Appointment) error) (sent int, failed int, err error) {
	m.remindMu.Lock()
	defer m.remindMu.Unlock()

	m.mu.RLock()
	var due []model.Appointment
	for _, a := range m.appts {
		if a.Status == model.StatusConfirmed && !a.ReminderSent && !a.StartTime.Before(from) && !a.StartTime.After(to) {
			due = append(due, a)
		}
	}
	m.mu.RUnlock()
	sortAppointments(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for _, a := range due {
		// An earlier send in this batch may have taken long enough for the
		// appointment to be cancelled or rescheduled out of the window.
		m.mu.RLock()
		cur, exists := m.appts[a.ID]
		c, ok := m.clients[a.ClientID]
		m.mu.RUnlock()
		if !exists || cur.Status != model.StatusConfirmed || cur.ReminderSent ||
			cur.StartTime.Before(from) || cur.StartTime.After(to) {
			continue
		}
		if !ok {
			failed++
			continue
		}
		if err := fn(ctx, c, cur); err != nil {
			failed++
			continue
		}
		m.mu.Lock()
		if cur, exists := m.appts[a.ID]; exists {
			cur.ReminderSent = true
			m.appts[a.ID] = cur
		}
		m.mu.Unlock()
		sent++
	}
	return sent, failed, nil
}

// Record marks an inbound event as seen; false means it was seen before.
func (m *Memory) Record(_ context.Context, eventID, _ string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.inbox[eventID]; ok {
		return false, nil
	}
	m.inbox[eventID] = struct{}{}
	return true, nil
}
