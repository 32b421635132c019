package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	logx "issuebot/pkg/logx"
)

const (
	DefaultPattern        = `[A-Z][A-Z0-9]+-[0-9]+`
	DefaultProfile        = "default"
	DefaultWindow         = "5m"
	DefaultSweepInterval  = "1m"
	DefaultStoreDriver    = "memory"
	DefaultTrackerTimeout = "10s"
)

// Validate checks cfg for errors that would make the bot misbehave.
// It never mutates cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	switch p := strings.ToLower(strings.TrimSpace(cfg.Chat.Platform)); p {
	case "telegram":
		if strings.TrimSpace(cfg.Chat.Telegram.Token) == "" {
			add(fmt.Errorf("chat.telegram.token is required (or set %s)", EnvTelegramToken))
		}
		_, err := ParseDurationField("chat.telegram.poll_timeout", cfg.Chat.Telegram.PollTimeout)
		add(err)
	case "slack":
		if strings.TrimSpace(cfg.Chat.Slack.BotToken) == "" {
			add(fmt.Errorf("chat.slack.bot_token is required (or set %s)", EnvSlackBotToken))
		}
		if !strings.HasPrefix(strings.TrimSpace(cfg.Chat.Slack.AppToken), "xapp-") {
			add(fmt.Errorf("chat.slack.app_token must be an app-level token (xapp-...)"))
		}
	case "":
		add(errors.New("chat.platform is required (telegram|slack)"))
	default:
		add(fmt.Errorf("chat.platform: unknown platform %q", p))
	}

	if strings.TrimSpace(cfg.Tracker.Host) == "" {
		add(errors.New("tracker.host is required"))
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Tracker.Protocol)) {
	case "", "http", "https":
	default:
		add(fmt.Errorf("tracker.protocol: want http or https, got %q", cfg.Tracker.Protocol))
	}
	if cfg.Tracker.Port < 0 || cfg.Tracker.Port > 65535 {
		add(fmt.Errorf("tracker.port out of range: %d", cfg.Tracker.Port))
	}
	if cfg.Tracker.RatePerSec < 0 {
		add(errors.New("tracker.rate_per_sec must be >= 0"))
	}
	_, err := ParseDurationField("tracker.timeout", cfg.Tracker.Timeout)
	add(err)

	if _, err := regexp.Compile(PatternOrDefault(cfg.Mention.Pattern)); err != nil {
		add(fmt.Errorf("mention.pattern: %w", err))
	}

	for _, name := range []struct{ path, v string }{
		{"profiles.default", cfg.Profiles.Default},
		{"profiles.at_mention", cfg.Profiles.AtMention},
	} {
		if v := strings.TrimSpace(name.v); v != "" && v != DefaultProfile {
			if _, ok := cfg.Formats[v]; !ok {
				add(fmt.Errorf("%s: unknown format %q", name.path, v))
			}
		}
	}
	for conv, v := range cfg.Profiles.Conversations {
		if v == DefaultProfile {
			continue
		}
		if _, ok := cfg.Formats[v]; !ok {
			add(fmt.Errorf("profiles.conversations[%s]: unknown format %q", conv, v))
		}
	}

	_, err = ParseDurationField("dedup.window", cfg.Dedup.Window)
	add(err)
	_, err = ParseDurationField("dedup.sweep_interval", cfg.Dedup.SweepInterval)
	add(err)
	switch d := strings.ToLower(strings.TrimSpace(cfg.Dedup.Store.Driver)); d {
	case "", "memory", "none":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Dedup.Store.Path) == "" {
			add(fmt.Errorf("dedup.store.path is required when driver=%s", d))
		}
		_, err = ParseDurationField("dedup.store.busy_timeout", cfg.Dedup.Store.BusyTimeout)
		add(err)
	default:
		add(fmt.Errorf("dedup.store.driver: unknown driver %q", d))
	}

	if cfg.Dispatch.MaxInflight < 0 {
		add(errors.New("dispatch.max_inflight must be >= 0"))
	}
	if cfg.Dispatch.UpdatesBuffer < 0 {
		add(errors.New("dispatch.updates_buffer must be >= 0"))
	}
	_, err = ParseDurationField("dispatch.send_timeout", cfg.Dispatch.SendTimeout)
	add(err)

	for _, d := range []struct{ path, v string }{
		{"ops.read_timeout", cfg.Ops.ReadTimeout},
		{"ops.write_timeout", cfg.Ops.WriteTimeout},
		{"ops.idle_timeout", cfg.Ops.IdleTimeout},
	} {
		_, err := ParseDurationField(d.path, d.v)
		add(err)
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !logx.ValidLevel(cfg.Logging.Chat.MinLevel) {
		add(fmt.Errorf("logging.chat.min_level: unknown level %q", cfg.Logging.Chat.MinLevel))
	}

	return errors.Join(errs...)
}

// PatternOrDefault returns the configured identifier pattern or the default.
func PatternOrDefault(p string) string {
	if strings.TrimSpace(p) == "" {
		return DefaultPattern
	}
	return p
}
