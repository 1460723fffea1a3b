package reminders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

// Store locks due appointments and marks them reminded when fn succeeds.
type Store interface {
	ProcessDueReminders(ctx context.Context, from, to time.Time, limit int, fn func(context.Context, model.Client, model.Appointment) error) (sent int, failed int, err error)
}

type Sender interface {
	SendReminder(ctx context.Context, c model.Client, a model.Appointment) error
}

type Config struct {
	// Schedule is a cron spec; "@every 15m" by default.
	Schedule  string
	Lead      time.Duration
	Slack     time.Duration
	BatchSize int
	Timeout   time.Duration
}

// Sweeper sends one reminder per confirmed appointment starting roughly
// Lead from now. The window is [now+Lead-Slack, now+Lead+Slack], wide
// enough that consecutive runs overlap.
type Sweeper struct {
	store   Store
	sender  Sender
	metrics *metrics.BookingMetrics
	logger  *slog.Logger
	now     func() time.Time
	cfg     Config
}

func NewSweeper(store Store, sender Sender, m *metrics.BookingMetrics, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 15m"
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.Slack <= 0 {
		cfg.Slack = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, sender: sender, metrics: m, logger: logger, now: time.Now, cfg: cfg}
}

// RunOnce processes one batch and returns how many reminders were sent.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	from := now.Add(s.cfg.Lead - s.cfg.Slack)
	to := now.Add(s.cfg.Lead + s.cfg.Slack)

	sent, failed, err := s.store.ProcessDueReminders(ctx, from, to, s.cfg.BatchSize, func(ctx context.Context, c model.Client, a model.Appointment) error {
		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		err := s.sender.SendReminder(sendCtx, c, a)
		switch {
		case err == nil:
			return nil
		case anyDelivered(err):
			// The customer was reached; a retry would duplicate it.
			s.logger.Warn("reminder partially delivered", "appointment_id", a.ID, "err", err)
			return nil
		default:
			s.logger.Warn("reminder failed", "appointment_id", a.ID, "err", err)
			return err
		}
	})
	for i := 0; i < sent; i++ {
		s.metrics.ObserveReminder("sent")
	}
	for i := 0; i < failed; i++ {
		s.metrics.ObserveReminder("failed")
	}
	if err != nil {
		s.metrics.ObserveReminder("error")
		return sent, err
	}
	if sent > 0 || failed > 0 {
		s.logger.Info("reminder sweep", "sent", sent, "failed", failed)
	}
	return sent, nil
}

func anyDelivered(err error) bool {
	var partial interface{ AnyDelivered() bool }
	return errors.As(err, &partial) && partial.AnyDelivered()
}

// Start schedules RunOnce on the cron spec. Stop the returned cron to end
// the schedule; its Stop context completes when a running sweep finishes.
func (s *Sweeper) Start(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("reminder sweep failed", "err", err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
