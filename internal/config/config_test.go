package config

import (
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

var envKeys = []string{
	"DB_URL", "RABBITMQ_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_TTL_SECONDS",
	"LEASE_STALE_AFTER", "LEASE_SWEEP_SCHEDULE",
	"FAILURE_CAP", "DEFAULT_DAILY_LIMIT", "QUOTA_TIMEZONE",
	"SIMULATE_SENDS", "MAX_CONCURRENT_SENDS", "DRIVER_URL", "DISCOVERY_LIMIT", "CONTACT_POOL",
	"WORKER_PORT", "WORKER_POLL_INTERVAL", "WORKER_BATCH_SIZE",
	"API_PORT", "API_WAIT_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Lease.StaleAfter != 10*time.Minute {
		t.Errorf("unexpected StaleAfter default: %v", cfg.Lease.StaleAfter)
	}
	if cfg.Lease.SweepSchedule != "*/5 * * * *" {
		t.Errorf("unexpected SweepSchedule default: %q", cfg.Lease.SweepSchedule)
	}
	if cfg.Quota.FailureCap != 3 || cfg.Quota.DefaultDailyLimit != 10 {
		t.Errorf("unexpected quota defaults: %+v", cfg.Quota)
	}
	if cfg.Quota.Location != time.Local {
		t.Errorf("expected local timezone, got %v", cfg.Quota.Location)
	}
	if !cfg.Send.Simulate {
		t.Error("expected simulate mode by default")
	}
	if cfg.Send.MaxConcurrent != 2 || cfg.Send.DiscoveryLimit != 500 || cfg.Send.Pool != "session" {
		t.Errorf("unexpected send defaults: %+v", cfg.Send)
	}
	if cfg.Redis.Enabled {
		t.Error("expected Redis disabled when REDIS_ADDR not set")
	}
	if cfg.API.Port != "8080" || cfg.Worker.Port != "8082" {
		t.Errorf("unexpected ports: api=%s worker=%s", cfg.API.Port, cfg.Worker.Port)
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LEASE_STALE_AFTER", "90s")
	t.Setenv("LEASE_SWEEP_SCHEDULE", "@every 1m")
	t.Setenv("FAILURE_CAP", "5")
	t.Setenv("QUOTA_TIMEZONE", "Europe/Moscow")
	t.Setenv("SIMULATE_SENDS", "false")
	t.Setenv("MAX_CONCURRENT_SENDS", "4")
	t.Setenv("CONTACT_POOL", "STORE")
	t.Setenv("API_WAIT_TIMEOUT", "30")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_TTL_SECONDS", "60")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Lease.StaleAfter != 90*time.Second {
		t.Errorf("expected 90s, got %v", cfg.Lease.StaleAfter)
	}
	if cfg.Quota.FailureCap != 5 {
		t.Errorf("expected failure cap 5, got %d", cfg.Quota.FailureCap)
	}
	if cfg.Quota.Location.String() != "Europe/Moscow" {
		t.Errorf("unexpected location: %v", cfg.Quota.Location)
	}
	if cfg.Send.Simulate {
		t.Error("expected real sends")
	}
	if cfg.Send.MaxConcurrent != 4 || cfg.Send.Pool != "store" {
		t.Errorf("unexpected send config: %+v", cfg.Send)
	}
	if cfg.API.WaitTimeout != 30*time.Second {
		t.Errorf("expected plain seconds to parse, got %v", cfg.API.WaitTimeout)
	}
	if !cfg.Redis.Enabled || cfg.Redis.Addr != "localhost:6379" || cfg.Redis.TTL != time.Minute {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}

	p := cfg.Quota.Policy()
	if p.FailureCap != 5 || p.Location != cfg.Quota.Location {
		t.Errorf("unexpected policy: %+v", p)
	}
}

func TestLoad_CollectsAllErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("FAILURE_CAP", "three")
	t.Setenv("MAX_CONCURRENT_SENDS", "0")
	t.Setenv("LEASE_SWEEP_SCHEDULE", "sometimes")
	t.Setenv("QUOTA_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}

	msg := err.Error()
	for _, want := range []string{"FAILURE_CAP", "MAX_CONCURRENT_SENDS", "LEASE_SWEEP_SCHEDULE", "QUOTA_TIMEZONE"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %s, got: %s", want, msg)
		}
	}
}
