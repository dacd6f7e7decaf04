package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validYAML = `
feed:
  situation_url: "https://example.org/publicData.json"
  timeout: "30s"
schedule:
  poll: "65s"
telegram:
  token: "123:abc"
  chat_id: -100123
publisher:
  post_interval: "67.5s"
  max_attempts: 10
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()

	m := NewManager(writeConfig(t, "config.yaml", validYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.SituationURL != "https://example.org/publicData.json" {
		t.Errorf("situation_url = %q", cfg.Feed.SituationURL)
	}
	if cfg.Telegram.ChatID != -100123 {
		t.Errorf("chat_id = %d", cfg.Telegram.ChatID)
	}
	if cfg.Publisher.MaxAttempts != 10 {
		t.Errorf("max_attempts = %d", cfg.Publisher.MaxAttempts)
	}
	if m.Get() != cfg {
		t.Error("Get should return the committed config")
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()

	body := `{
  "feed": {"situation_url": "https://example.org/feed.json"},
  "schedule": {"poll": "65s"},
  "telegram": {"token": "123:abc", "chat_id": 5}
}`
	m := NewManager(writeConfig(t, "config.json", body))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule.Poll != "65s" {
		t.Errorf("poll = %q", cfg.Schedule.Poll)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	body := validYAML + "\nnot_a_section:\n  x: 1\n"
	m := NewManager(writeConfig(t, "config.yaml", body))
	if _, err := m.Load(); err == nil {
		t.Fatal("Load accepted an unknown top-level section")
	}
}

func TestLoadValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(string) string
		want string
	}{
		{
			name: "missing feed url",
			edit: func(s string) string { return strings.Replace(s, "situation_url", "perimeter_url", 1) },
			want: "feed.situation_url",
		},
		{
			name: "bad duration",
			edit: func(s string) string { return strings.Replace(s, `"67.5s"`, `"sixty"`, 1) },
			want: "publisher.post_interval",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewManager(writeConfig(t, "config.yaml", tt.edit(validYAML)))
			_, err := m.Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load = %v, want error mentioning %s", err, tt.want)
			}
		})
	}
}

func TestLoadWithoutTelegramCredentials(t *testing.T) {
	t.Parallel()

	// A dry-run deployment has no credentials; the config must still load.
	body := `
feed:
  situation_url: "https://example.org/publicData.json"
`
	m := NewManager(writeConfig(t, "config.yaml", body))
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load without telegram section: %v", err)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "  ", want: 0},
		{raw: "65s", want: 65 * time.Second},
		{raw: " 1.5m ", want: 90 * time.Second},
		{raw: "sixty", wantErr: true},
		{raw: "-5s", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x.y", tt.raw)
		if tt.wantErr {
			if err == nil || !strings.Contains(err.Error(), "x.y") {
				t.Errorf("ParseDurationField(%q) err = %v, want error naming the field", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseDurationField(%q) = %v, %v, want %v", tt.raw, got, err, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("x.y", "", time.Minute); err != nil || d != time.Minute {
		t.Errorf("unset field = %v, %v, want the default", d, err)
	}
	if d, err := ParseDurationOrDefault("x.y", "0s", time.Minute); err != nil || d != time.Minute {
		t.Errorf("zero field = %v, %v, want the default", d, err)
	}
	if d, err := ParseDurationOrDefault("x.y", "2s", time.Minute); err != nil || d != 2*time.Second {
		t.Errorf("set field = %v, %v, want 2s", d, err)
	}
}

func TestValidateQueueDriver(t *testing.T) {
	t.Parallel()

	body := validYAML + "\nqueue:\n  driver: \"redis\"\n"
	m := NewManager(writeConfig(t, "config.yaml", body))
	if _, err := m.Load(); err == nil || !strings.Contains(err.Error(), "queue.driver") {
		t.Fatalf("Load = %v, want queue.driver error", err)
	}
}
