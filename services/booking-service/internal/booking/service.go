package booking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/tokens"
)

var tracer = otel.Tracer("bookwell.booking-service.booking")

type Options struct {
	Store    Store
	Tokens   *tokens.Issuer
	Notifier Notifier
	Cache    SlotCache
	Metrics  *metrics.BookingMetrics
	Logger   *slog.Logger
	Now      func() time.Time

	NotifyTimeout     time.Duration
	NotifyConcurrency int
}

// Service owns slot computation, the booking transaction and appointment
// lifecycle changes. It is safe for concurrent use.
type Service struct {
	store    Store
	tokens   *tokens.Issuer
	notifier Notifier
	cache    SlotCache
	metrics  *metrics.BookingMetrics
	logger   *slog.Logger
	now      func() time.Time

	notifyTimeout time.Duration
	notifySem     chan struct{}
	wg            sync.WaitGroup
}

func NewService(opts Options) *Service {
	if opts.Tokens == nil {
		opts.Tokens = tokens.NewIssuer(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 15 * time.Second
	}
	if opts.NotifyConcurrency <= 0 {
		opts.NotifyConcurrency = 8
	}
	return &Service{
		store:         opts.Store,
		tokens:        opts.Tokens,
		notifier:      opts.Notifier,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		now:           opts.Now,
		notifyTimeout: opts.NotifyTimeout,
		notifySem:     make(chan struct{}, opts.NotifyConcurrency),
	}
}

// Wait blocks until in-flight notifications finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Slots lists bookable start times for a client-local date. Unknown or
// inactive clients and unparseable dates yield an empty list.
func (s *Service) Slots(ctx context.Context, clientRef, date string) ([]model.Slot, error) {
	ctx, span := tracer.Start(ctx, "booking.slots")
	defer span.End()
	span.SetAttributes(attribute.String("bookwell.client_ref", clientRef), attribute.String("bookwell.date", date))

	empty := []model.Slot{}
	client, err := s.store.ClientByRef(ctx, clientRef)
	if errors.Is(err, ErrNotFound) {
		return empty, nil
	}
	if err != nil {
		return nil, s.fail(span, internal("load client", err))
	}
	if !client.IsActive {
		return empty, nil
	}
	day, err := availability.ParseDate(date)
	if err != nil {
		return empty, nil
	}
	settings, err := s.store.Settings(ctx, client.ID)
	if err != nil {
		return nil, s.fail(span, internal("load settings", err))
	}

	slots, hit := s.cachedSlots(ctx, client.ID, date)
	s.metrics.ObserveSlotQuery(hit)
	if !hit {
		gen, cacheable := s.cacheGeneration(ctx, client.ID)
		slots, err = s.computeSlots(ctx, client, settings, day)
		if err != nil {
			return nil, s.fail(span, err)
		}
		if cacheable {
			if err := s.cache.Set(ctx, client.ID, date, gen, slots); err != nil {
				s.logger.Warn("slot cache write failed", "client_id", client.ID, "err", err)
			}
		}
	}

	window := availability.Window{MinNotice: settings.MinNotice(), MaxAdvanceDays: settings.MaxAdvanceDays, Loc: client.Location()}
	now := s.now()
	out := make([]model.Slot, 0, len(slots))
	for _, sl := range slots {
		if window.Eligible(sl.Start, now) {
			out = append(out, sl)
		}
	}
	span.SetAttributes(attribute.Int("bookwell.slots", len(out)))
	return out, nil
}

func (s *Service) cachedSlots(ctx context.Context, clientID, date string) ([]model.Slot, bool) {
	if s.cache == nil {
		return nil, false
	}
	slots, ok, err := s.cache.Get(ctx, clientID, date)
	if err != nil {
		s.logger.Warn("slot cache read failed", "client_id", clientID, "err", err)
		return nil, false
	}
	return slots, ok
}

// cacheGeneration must be read before the grid is computed; see SlotCache.
func (s *Service) cacheGeneration(ctx context.Context, clientID string) (int64, bool) {
	if s.cache == nil {
		return 0, false
	}
	gen, err := s.cache.Generation(ctx, clientID)
	if err != nil {
		s.logger.Warn("slot cache generation read failed", "client_id", clientID, "err", err)
		return 0, false
	}
	return gen, true
}

// computeSlots runs the grid and conflict stages; the notice/advance stage is
// applied by the caller so cached results never go stale with the clock.
func (s *Service) computeSlots(ctx context.Context, client model.Client, settings model.ClientSettings, day time.Time) ([]model.Slot, error) {
	rules, err := s.store.Rules(ctx, client.ID)
	if err != nil {
		return nil, internal("load rules", err)
	}
	loc := client.Location()
	rule := availability.RuleFor(rules, availability.DateWeekday(day))
	grid := availability.Grid(day, loc, rule, settings.Duration(), settings.Buffer())
	if len(grid) == 0 {
		return []model.Slot{}, nil
	}

	buffer := settings.Buffer()
	from := grid[0].Start.Add(-buffer)
	to := grid[len(grid)-1].End.Add(buffer)
	booked, busy, err := loadBusy(ctx, s.store, client.ID, from, to)
	if err != nil {
		return nil, err
	}
	return availability.ToSlots(availability.FilterConflicts(grid, booked, buffer, busy), loc), nil
}

type busyReader interface {
	ListConfirmed(ctx context.Context, clientID string, from, to time.Time) ([]model.Appointment, error)
	ListBusyBlocks(ctx context.Context, clientID string, from, to time.Time) ([]model.BusyBlock, error)
}

func loadBusy(ctx context.Context, r busyReader, clientID string, from, to time.Time) ([]availability.Interval, []availability.Interval, error) {
	appts, err := r.ListConfirmed(ctx, clientID, from, to)
	if err != nil {
		return nil, nil, internal("list confirmed appointments", err)
	}
	blocks, err := r.ListBusyBlocks(ctx, clientID, from, to)
	if err != nil {
		return nil, nil, internal("list busy blocks", err)
	}
	booked := make([]availability.Interval, 0, len(appts))
	for _, a := range appts {
		if a.Status == model.StatusConfirmed {
			booked = append(booked, availability.Interval{Start: a.StartTime, End: a.EndTime})
		}
	}
	busy := make([]availability.Interval, 0, len(blocks))
	for _, b := range blocks {
		busy = append(busy, availability.Interval{Start: b.StartTime, End: b.EndTime})
	}
	return booked, busy, nil
}

// invalidate drops cached grids for every local date the interval (padded by
// buffer) touches.
func (s *Service) invalidate(ctx context.Context, client model.Client, start, end time.Time, buffer time.Duration) {
	if s.cache == nil {
		return
	}
	loc := client.Location()
	var dates []string
	for d := start.Add(-buffer).In(loc); ; d = d.AddDate(0, 0, 1) {
		y, m, dd := d.Date()
		dates = append(dates, time.Date(y, m, dd, 0, 0, 0, 0, time.UTC).Format("2006-01-02"))
		if !time.Date(y, m, dd+1, 0, 0, 0, 0, loc).Before(end.Add(buffer)) {
			break
		}
	}
	if err := s.cache.Invalidate(ctx, client.ID, dates...); err != nil {
		s.logger.Warn("slot cache invalidation failed", "client_id", client.ID, "err", err)
	}
}

func (s *Service) invalidateClient(ctx context.Context, clientID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateClient(ctx, clientID); err != nil {
		s.logger.Warn("slot cache invalidation failed", "client_id", clientID, "err", err)
	}
}

// dispatch runs fn on a bounded goroutine with a context detached from the
// request so a slow provider never delays or fails the caller.
func (s *Service) dispatch(ctx context.Context, kind string, fn func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.notifySem <- struct{}{}
		defer func() { <-s.notifySem }()

		ctx, cancel := context.WithTimeout(base, s.notifyTimeout)
		defer cancel()
		err := fn(ctx)
		s.metrics.ObserveNotification(kind, err)
		if err != nil {
			s.logger.Warn("notification failed", "kind", kind, "err", err)
		}
	}()
}

func (s *Service) fail(span trace.Span, err error) error {
	e := AsError(err)
	if e.Code == CodeInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("bookwell.error_code", string(e.Code)))
	return e
}
