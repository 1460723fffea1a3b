package main

import (
	"time"

	"github.com/md-rashed-zaman/bookwell/libs/config"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/consumer"
)

type appConfig struct {
	Service  string
	Port     string
	GRPCPort string
	LogLevel string

	DatabaseURL string
	DBMaxConns  int

	RedisURL     string
	RedisPrefix  string
	SlotCacheTTL time.Duration

	KafkaBrokers    string
	KafkaGroupID    string
	BusyBlocksTopic string

	PublicBaseURL   string
	PublicRateLimit int
	RequestTimeout  time.Duration
	CORSOrigins     []string

	JWTSecret string
	JWKSURL   string

	TokenBcryptCost int

	RemindersEnabled bool
	ReminderSchedule string
	ReminderLead     time.Duration

	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string
	SMTPHost       string
	SMTPPort       string

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
	SMSWebhookURL    string
	SMSWebhookToken  string
}

func loadConfig() (appConfig, error) {
	var (
		cfg appConfig
		err error
	)
	cfg.Service = config.String("SERVICE_NAME", "booking-service")
	if cfg.Port, err = config.Port("PORT", "8083"); err != nil {
		return cfg, err
	}
	if cfg.GRPCPort, err = config.Port("GRPC_PORT", "9093"); err != nil {
		return cfg, err
	}
	cfg.LogLevel = config.String("LOG_LEVEL", "info")

	cfg.DatabaseURL = config.String("DATABASE_URL", "")
	if cfg.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return cfg, err
	}

	cfg.RedisURL = config.String("REDIS_URL", "")
	cfg.RedisPrefix = config.String("REDIS_PREFIX", "bookwell")
	if cfg.SlotCacheTTL, err = config.Duration("SLOT_CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}

	cfg.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	cfg.KafkaGroupID = config.String("KAFKA_GROUP_ID", "booking-service")
	cfg.BusyBlocksTopic = config.String("KAFKA_BUSY_BLOCKS_TOPIC", consumer.TopicBusyBlocksSynced)

	cfg.PublicBaseURL = config.String("PUBLIC_BASE_URL", "http://localhost:8083")
	if cfg.PublicRateLimit, err = config.Int("PUBLIC_RATE_LIMIT", 120); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return cfg, err
	}
	cfg.CORSOrigins = config.List("CORS_ALLOWED_ORIGINS")

	cfg.JWTSecret = config.String("JWT_SECRET", "")
	cfg.JWKSURL = config.String("JWKS_URL", "")

	if cfg.TokenBcryptCost, err = config.Int("TOKEN_BCRYPT_COST", 0); err != nil {
		return cfg, err
	}

	cfg.RemindersEnabled = config.Bool("REMINDERS_ENABLED", true)
	cfg.ReminderSchedule = config.String("REMINDER_SCHEDULE", "@every 15m")
	if cfg.ReminderLead, err = config.Duration("REMINDER_LEAD", 24*time.Hour); err != nil {
		return cfg, err
	}

	cfg.SendGridAPIKey = config.String("SENDGRID_API_KEY", "")
	cfg.EmailFrom = config.String("EMAIL_FROM", "")
	cfg.EmailFromName = config.String("EMAIL_FROM_NAME", "Bookwell")
	cfg.SMTPHost = config.String("SMTP_HOST", "")
	cfg.SMTPPort = config.String("SMTP_PORT", "25")

	cfg.TwilioAccountSID = config.String("TWILIO_ACCOUNT_SID", "")
	cfg.TwilioAuthToken = config.String("TWILIO_AUTH_TOKEN", "")
	cfg.TwilioFrom = config.String("TWILIO_FROM", "")
	cfg.SMSWebhookURL = config.String("SMS_WEBHOOK_URL", "")
	cfg.SMSWebhookToken = config.String("SMS_WEBHOOK_TOKEN", "")
	return cfg, nil
}
