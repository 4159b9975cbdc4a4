package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

const minimalYAML = `
telegram:
  token: "t"
  report_chat_id: -100200
backend:
  base_url: "http://localhost:3000"
storage:
  path: "/tmp/pmbot"
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", minimalYAML))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.ReportChatID != -100200 {
		t.Fatalf("report_chat_id = %d", cfg.Telegram.ReportChatID)
	}
	if cfg.Backend.BaseURL != "http://localhost:3000" {
		t.Fatalf("base_url = %q", cfg.Backend.BaseURL)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.yaml", minimalYAML+"\nsurprise: true\n"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewManager(writeConfig(t, "config.json",
		`{"telegram":{"token":"t","report_chat_id":5},"backend":{"base_url":"http://x"},"storage":{"path":"/tmp/x"}}`))
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.ReportChatID != 5 {
		t.Fatalf("report_chat_id = %d", cfg.Telegram.ReportChatID)
	}
}

func TestEnvFallbackForTokens(t *testing.T) {
	cfg := &Config{}
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-telegram")
	t.Setenv("GITHUB_TOKEN", "env-github")

	applyEnvFallbacks(cfg)
	if cfg.Telegram.Token != "env-telegram" || cfg.GitHub.Token != "env-github" {
		t.Fatalf("tokens = %q / %q", cfg.Telegram.Token, cfg.GitHub.Token)
	}

	// A file-provided token wins over the environment.
	cfg2 := &Config{}
	cfg2.Telegram.Token = "file-token"
	applyEnvFallbacks(cfg2)
	if cfg2.Telegram.Token != "file-token" {
		t.Fatalf("file token overridden: %q", cfg2.Telegram.Token)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config { return &Config{} }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"empty config is valid", func(*Config) {}, false},
		{"hour out of range", func(c *Config) { c.Reports.Hours = []int{8, 24} }, true},
		{"valid hours", func(c *Config) { c.Reports.Hours = []int{0, 8, 23} }, false},
		{"bad timezone", func(c *Config) { c.Reports.Timezone = "Mars/Olympus" }, true},
		{"valid timezone", func(c *Config) { c.Reports.Timezone = "Asia/Kolkata" }, false},
		{"unknown recipient mode", func(c *Config) { c.Review.RecipientMode = "everyone" }, true},
		{"fixed mode needs recipient", func(c *Config) { c.Review.RecipientMode = "fixed" }, true},
		{"fixed mode with recipient", func(c *Config) {
			c.Review.RecipientMode = "fixed"
			c.Review.RecipientID = "100"
		}, false},
		{"unknown storage driver", func(c *Config) { c.Storage.Driver = "redis" }, true},
		{"bad duration", func(c *Config) { c.Poller.Interval = "five minutes" }, true},
		{"negative duration", func(c *Config) { c.Query.CacheTTL = "-5m" }, true},
		{"valid duration", func(c *Config) { c.Poller.Interval = "90s" }, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate err = %v, wantErr = %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 5*time.Minute)
	if err != nil || d != 5*time.Minute {
		t.Fatalf("empty = %v, %v; want default", d, err)
	}
	d, err = ParseDurationOrDefault("x", "30s", 5*time.Minute)
	if err != nil || d != 30*time.Second {
		t.Fatalf("30s = %v, %v", d, err)
	}
	if _, err := ParseDurationOrDefault("x", "nope", 5*time.Minute); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestSubscribePublishDropsOldest(t *testing.T) {
	t.Parallel()
	m := NewManager("unused")

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{}
	m.publish(first)
	m.publish(second) // buffer full: oldest dropped, newest queued

	got := <-ch
	if got != second {
		t.Fatal("subscriber did not receive the newest config")
	}
}
