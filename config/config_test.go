package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: unexpected error: %v", err)
	}
	if cfg.Auth.OpeningBalance != 100000 {
		t.Fatalf("expected default opening balance 100000, got %d", cfg.Auth.OpeningBalance)
	}
	if cfg.Relay.PollInterval != time.Second {
		t.Fatalf("expected default poll interval 1s, got %s", cfg.Relay.PollInterval)
	}
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Run("opening balance not a number", func(t *testing.T) {
		t.Setenv("OPENING_BALANCE", "lots")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for malformed OPENING_BALANCE")
		}
	})

	t.Run("opening balance negative", func(t *testing.T) {
		t.Setenv("OPENING_BALANCE", "-5")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for negative OPENING_BALANCE")
		}
	})

	t.Run("poll interval not a number", func(t *testing.T) {
		t.Setenv("RELAY_POLL_MILLIS", "soon")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for malformed RELAY_POLL_MILLIS")
		}
	})

	t.Run("poll interval zero", func(t *testing.T) {
		t.Setenv("RELAY_POLL_MILLIS", "0")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for zero RELAY_POLL_MILLIS")
		}
	})
}
