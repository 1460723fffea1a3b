package db

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestOptionsApply(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://u:p@localhost:5432/bookwell")
	if err != nil {
		t.Fatal(err)
	}
	Options{MaxConns: 4, ApplicationName: "booking-service"}.apply(cfg)
	if cfg.MaxConns != 4 || cfg.MinConns != 1 || cfg.MaxConnLifetime != 30*time.Minute {
		t.Fatalf("unexpected pool config: %d %d %v", cfg.MaxConns, cfg.MinConns, cfg.MaxConnLifetime)
	}
	if cfg.ConnConfig.RuntimeParams["application_name"] != "booking-service" {
		t.Fatalf("application_name not set: %v", cfg.ConnConfig.RuntimeParams)
	}
}

func TestOpenRejectsBadURL(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://localhost:notaport/bookwell", Options{}); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestReadyCheckWithoutPool(t *testing.T) {
	if err := ReadyCheck(nil)(context.Background()); err == nil {
		t.Fatalf("expected error for missing pool")
	}
}
