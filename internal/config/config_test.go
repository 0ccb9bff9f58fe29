package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Graph.Endpoint != "https://graph.microsoft.com/v1.0" {
		t.Fatalf("unexpected graph endpoint: %s", cfg.Graph.Endpoint)
	}
	if cfg.Monitor.PollIntervalDuration() != 6*time.Hour {
		t.Fatalf("unexpected poll interval: %s", cfg.Monitor.PollIntervalDuration())
	}
	if cfg.Monitor.RetryDelayDuration() != 10*time.Second {
		t.Fatalf("unexpected retry delay: %s", cfg.Monitor.RetryDelayDuration())
	}
	if cfg.Monitor.MaxRetries != 3 {
		t.Fatalf("unexpected max retries: %d", cfg.Monitor.MaxRetries)
	}

	hour, minute, second := cfg.Daily.BriefClock()
	if hour != 9 || minute != 0 || second != 0 {
		t.Fatalf("unexpected brief time: %02d:%02d:%02d", hour, minute, second)
	}
	if cfg.Daily.Location() != time.UTC {
		t.Fatalf("unexpected timezone: %v", cfg.Daily.Location())
	}
	if !cfg.Daily.RedeliverInDaily() {
		t.Fatal("daily redelivery should default to on")
	}
	if !cfg.State.NotifyOnEmptyEnabled() {
		t.Fatal("notify-on-empty should default to on")
	}
	if cfg.State.Dir != "data" {
		t.Fatalf("unexpected state dir: %s", cfg.State.Dir)
	}
}

func TestLoadYAMLFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
graph:
  tenantId: file-tenant
  clientId: file-client
monitor:
  pollInterval: 30m
daily:
  briefTime: "07:30"
  timezone: Europe/Berlin
  lookbackHours: 48
  redeliver: false
state:
  dir: /var/lib/m365monitor
  notifyOnEmpty: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(configPathEnv, path)
	t.Setenv(tenantIDEnv, "env-tenant")
	t.Setenv(teamsWebhookEnv, "https://example.com/hook")
	t.Setenv(dryRunEnv, "true")

	cfg := Load()

	if cfg.Graph.TenantID != "env-tenant" {
		t.Fatalf("env must override file: %s", cfg.Graph.TenantID)
	}
	if cfg.Graph.ClientID != "file-client" {
		t.Fatalf("file value lost: %s", cfg.Graph.ClientID)
	}
	if cfg.Monitor.PollIntervalDuration() != 30*time.Minute {
		t.Fatalf("unexpected poll interval: %s", cfg.Monitor.PollIntervalDuration())
	}
	if cfg.Teams.WebhookURL != "https://example.com/hook" {
		t.Fatalf("webhook not applied: %s", cfg.Teams.WebhookURL)
	}
	if !cfg.Teams.DryRun {
		t.Fatal("dry run not applied")
	}

	hour, minute, _ := cfg.Daily.BriefClock()
	if hour != 7 || minute != 30 {
		t.Fatalf("brief time not applied: %02d:%02d", hour, minute)
	}
	if cfg.Daily.Location().String() != "Europe/Berlin" {
		t.Fatalf("timezone not applied: %v", cfg.Daily.Location())
	}
	if cfg.Daily.LookbackHours != 48 {
		t.Fatalf("lookback not applied: %d", cfg.Daily.LookbackHours)
	}
	if cfg.Daily.RedeliverInDaily() {
		t.Fatal("redeliver=false not applied")
	}
	if cfg.State.NotifyOnEmptyEnabled() {
		t.Fatal("notifyOnEmpty=false not applied")
	}
	if cfg.State.Dir != "/var/lib/m365monitor" {
		t.Fatalf("state dir not applied: %s", cfg.State.Dir)
	}
}

func TestLoadUnknownTimezoneRevertsToUTC(t *testing.T) {
	t.Setenv(timezoneEnv, "Mars/Olympus_Mons")

	cfg := Load()
	if cfg.Daily.Location() != time.UTC {
		t.Fatalf("expected UTC fallback, got %v", cfg.Daily.Location())
	}
}

func TestLoadMalformedBriefTimeFallsBack(t *testing.T) {
	t.Setenv(dailyBriefTimeEnv, "quarter past nine")

	cfg := Load()
	hour, minute, second := cfg.Daily.BriefClock()
	if hour != 9 || minute != 0 || second != 0 {
		t.Fatalf("expected 09:00:00 fallback, got %02d:%02d:%02d", hour, minute, second)
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in                   string
		hour, minute, second int
	}{
		{"06:15", 6, 15, 0},
		{"23:59:59", 23, 59, 59},
		{"24:00", 9, 0, 0},
		{"09:60", 9, 0, 0},
		{"", 9, 0, 0},
	}
	for _, tc := range cases {
		hour, minute, second := parseClock(tc.in)
		if hour != tc.hour || minute != tc.minute || second != tc.second {
			t.Fatalf("parseClock(%q) = %d:%d:%d, want %d:%d:%d",
				tc.in, hour, minute, second, tc.hour, tc.minute, tc.second)
		}
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()

	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		if !parseBool(v) {
			t.Fatalf("parseBool(%q) should be true", v)
		}
	}
	for _, v := range []string{"", "0", "false", "no", "off"} {
		if parseBool(v) {
			t.Fatalf("parseBool(%q) should be false", v)
		}
	}
}
