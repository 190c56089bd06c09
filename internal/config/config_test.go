package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("LEDGER_JOURNAL_TIMEOUT_MS", "")
	t.Setenv("LEDGER_REJECTION_WINDOW_HOURS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %s", cfg.App.Addr())
	}
	if cfg.Postgres.DSN != "" {
		t.Errorf("DSN = %q, want empty", cfg.Postgres.DSN)
	}
	if cfg.Ledger.JournalTimeout() != 2*time.Second {
		t.Errorf("JournalTimeout = %s", cfg.Ledger.JournalTimeout())
	}
	if cfg.Ledger.RejectionWindow() != 24*time.Hour {
		t.Errorf("RejectionWindow = %s", cfg.Ledger.RejectionWindow())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("LEDGER_REPLAY_ON_START", "false")
	t.Setenv("LEDGER_EVENT_CHANNEL", "audit")
	t.Setenv("LEDGER_REJECTION_WINDOW_HOURS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != "9090" || cfg.Ledger.ReplayOnStart || cfg.Ledger.EventChannel != "audit" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.Ledger.RejectionWindowHours != 24 {
		t.Errorf("unparsable value should fall back, got %d", cfg.Ledger.RejectionWindowHours)
	}
}

func TestValidateJoinsAllProblems(t *testing.T) {
	cfg := Config{
		App:      AppConfig{Port: "http"},
		Postgres: PostgresConfig{MinConns: 5, MaxConns: 1},
		Ledger:   LedgerConfig{JournalTimeoutMillis: -1},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"APP_PORT", "POSTGRES_MIN_CONNS", "LEDGER_JOURNAL_TIMEOUT_MS", "LEDGER_REJECTION_WINDOW_HOURS", "LEDGER_EVENT_CHANNEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}
