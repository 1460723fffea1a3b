package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/bookwell/libs/auth"
	"github.com/md-rashed-zaman/bookwell/libs/config"
	"github.com/md-rashed-zaman/bookwell/libs/db"
	"github.com/md-rashed-zaman/bookwell/libs/grpcx"
	"github.com/md-rashed-zaman/bookwell/libs/httpx"
	"github.com/md-rashed-zaman/bookwell/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookwell/libs/otel"
	"github.com/md-rashed-zaman/bookwell/libs/runtime"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/consumer"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/reminders"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/slotcache"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/tokens"
)

// backend is everything the process needs from persistence. Postgres splits
// it between the store and the outbox repository; the memory store covers
// all of it.
type backend struct {
	store  booking.Store
	outbox outbox.Source
	inbox  consumer.Inbox
	due    reminders.Store
	ready  runtime.ReadyCheck
	close  func()
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	defer be.close()

	rdb := openRedis(cfg, logger)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}
	var cache booking.SlotCache
	if rdb != nil {
		cache = slotcache.NewRedis(rdb, cfg.SlotCacheTTL, cfg.RedisPrefix)
	}

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)
	notifier := notify.NewNotifier(emailSender(cfg, logger), smsSender(cfg), cfg.PublicBaseURL)

	svc := booking.NewService(booking.Options{
		Store:    be.store,
		Tokens:   tokens.NewIssuer(cfg.TokenBcryptCost),
		Notifier: notifier,
		Cache:    cache,
		Metrics:  bookingMetrics,
		Logger:   logger,
	})

	if publisher := outbox.NewPublisher(be.outbox, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	}); publisher != nil {
		go publisher.Run(ctx)
	} else {
		logger.Warn("kafka not configured; outbox events stay unpublished")
	}

	if c := consumer.New(logger, be.inbox, consumer.Config{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaGroupID,
		Topic:    cfg.BusyBlocksTopic,
		Attempts: 3,
	}, consumer.BusyBlocks(svc)); c != nil {
		go c.Run(ctx)
	}

	var stopSweeper func() context.Context
	if cfg.RemindersEnabled {
		sweeper := reminders.NewSweeper(be.due, notifier, bookingMetrics, logger, reminders.Config{
			Schedule: cfg.ReminderSchedule,
			Lead:     cfg.ReminderLead,
		})
		c, err := sweeper.Start(ctx)
		if err != nil {
			logger.Error("reminder sweeper init failed", "err", err)
		} else {
			stopSweeper = c.Stop
		}
	}

	grpcServer, health := grpcx.NewServer(cfg.Service)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()
	health.SetServingStatus(cfg.Service, healthpb.HealthCheckResponse_SERVING)

	checks := []runtime.ReadyCheck{be.ready}
	if cfg.KafkaBrokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.Handler())

	handlers.Register(mux, svc, logger, handlers.RoutesConfig{
		Verifier: verifier(cfg),
		Public:   publicLimiter(cfg, rdb, logger),
	})

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Cancellation-Token", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	health.SetServingStatus(cfg.Service, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcServer.GracefulStop()
	if stopSweeper != nil {
		select {
		case <-stopSweeper().Done():
		case <-shutdownCtx.Done():
		}
	}
	svc.Wait()
	logger.Info("http server stopped")
}

func openBackend(ctx context.Context, cfg appConfig, logger *slog.Logger) (backend, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		logger.Warn("DATABASE_URL not set; using in-memory storage")
		mem := storage.NewMemory()
		return backend{
			store:  mem,
			outbox: mem,
			inbox:  mem,
			due:    mem,
			ready:  runtime.ReadyCheck{Name: "storage"},
			close:  func() {},
		}, nil
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{
		MaxConns:        int32(cfg.DBMaxConns),
		ApplicationName: cfg.Service,
		ConnectAttempts: 5,
	})
	if err != nil {
		return backend{}, err
	}
	pg := storage.NewPostgres(pool)
	return backend{
		store:  pg,
		outbox: outbox.NewRepository(pool),
		inbox:  pg,
		due:    pg,
		ready:  runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		close:  pool.Close,
	}, nil
}

func openRedis(cfg appConfig, logger *slog.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL; slot cache disabled", "err", err)
		return nil
	}
	return redis.NewClient(opts)
}

func publicLimiter(cfg appConfig, rdb *redis.Client, logger *slog.Logger) httpx.Middleware {
	if rdb != nil {
		return httpx.NewRedisRateLimiter(rdb, cfg.PublicRateLimit, time.Minute, cfg.RedisPrefix+":rl").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(cfg.PublicRateLimit, time.Minute).Middleware()
}

func verifier(cfg appConfig) auth.Verifier {
	v := auth.Verifier{Secret: cfg.JWTSecret}
	if url := strings.TrimSpace(cfg.JWKSURL); url != "" {
		v.JWKS = auth.NewJWKSClient(url, 10*time.Minute)
	}
	return v
}

func emailSender(cfg appConfig, logger *slog.Logger) notify.EmailSender {
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.EmailFrom,
		FromName:  cfg.EmailFromName,
	}); sg != nil {
		return sg
	}
	if host := strings.TrimSpace(cfg.SMTPHost); host != "" {
		return notify.NewSMTPSender(host, cfg.SMTPPort, cfg.EmailFrom)
	}
	return notify.NewLogEmailSender(logger)
}

func smsSender(cfg appConfig) notify.SMSSender {
	if tw := notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom); tw != nil {
		return tw
	}
	if url := strings.TrimSpace(cfg.SMSWebhookURL); url != "" {
		return notify.NewWebhookSender(url, cfg.SMSWebhookToken)
	}
	return notify.NewNoopSender()
}
