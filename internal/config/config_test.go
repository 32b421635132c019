package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
chat:
  platform: telegram
  telegram:
    token: "123:abc"
tracker:
  host: jira.example.com
  sprint_field: customfield_10010
mention:
  pattern: "([A-Z][A-Z0-9]+-[0-9]+)"
formats:
  normal:
    description: true
    fields: [Status, Assignee]
profiles:
  default: normal
  at_mention: normal
dedup:
  window: 2m
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("cfg.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if cfg.Chat.Platform != "telegram" || cfg.Tracker.Host != "jira.example.com" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	f, ok := cfg.Formats["normal"]
	if !ok || !f.Description || len(f.Fields) != 2 || f.Fields[1] != "Assignee" {
		t.Fatalf("unexpected format: %+v", f)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate error: %v", err)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := Decode("cfg.json", []byte(`{"chat":{"platform":"slack"},"bogus":1}`))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("error should name the key, got %v", err)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	t.Parallel()
	if _, err := Decode("cfg.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Chat:    ChatConfig{Platform: "slack", Slack: SlackConfig{BotToken: "xoxb-1", AppToken: "nope"}},
		Mention: MentionConfig{Pattern: "([A-Z"},
		Dedup:   DedupConfig{Window: "soon", Store: StoreConfig{Driver: "sqlite"}},
		Profiles: ProfilesConfig{
			Default:       "missing",
			Conversations: map[string]string{"C1": "also-missing"},
		},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"app_token",
		"tracker.host",
		"mention.pattern",
		"dedup.window",
		"dedup.store.path",
		"profiles.default",
		"profiles.conversations[C1]",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestEnvOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	if err := os.WriteFile(path, []byte(`{"chat":{"platform":"telegram","telegram":{"token":"file"}},"tracker":{"host":"h","password":"file"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewConfigManager(path)
	m.getenv = func(k string) string {
		switch k {
		case EnvTrackerPassword:
			return "from-env"
		case EnvTelegramToken:
			return "  "
		}
		return ""
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Tracker.Password != "from-env" {
		t.Fatalf("password = %q, want env override", cfg.Tracker.Password)
	}
	if cfg.Chat.Telegram.Token != "file" {
		t.Fatalf("blank env value must not override, got %q", cfg.Chat.Telegram.Token)
	}
	if m.Get() != cfg {
		t.Fatal("Load should commit the parsed config")
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw      string
		keepZero bool
		want     time.Duration
	}{
		{raw: "", want: time.Minute},
		{raw: "5s", want: 5 * time.Second},
		{raw: "0s", want: time.Minute},
		{raw: "0s", keepZero: true, want: 0},
	}
	for _, tt := range tests {
		got, err := ParseDurationOrDefault("x", tt.raw, time.Minute, tt.keepZero)
		if err != nil {
			t.Fatalf("ParseDurationOrDefault(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseDurationOrDefault(%q, keepZero=%v) = %v, want %v", tt.raw, tt.keepZero, got, tt.want)
		}
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Tracker: TrackerConfig{Host: "h", Password: "p1"}}
	newCfg := &Config{
		Tracker: TrackerConfig{Host: "h", Password: "p2", SprintField: "customfield_1"},
		Formats: map[string]FormatConfig{"a": {}},
	}
	sections, _ := SummarizeConfigChange(oldCfg, newCfg)
	got := strings.Join(sections, ",")
	if got != "tracker.fields,tracker,formats" {
		t.Fatalf("sections = %q", got)
	}
	if !RequiresRestart("tracker") || RequiresRestart("tracker.fields") || RequiresRestart("formats") {
		t.Fatal("unexpected restart classification")
	}
}
