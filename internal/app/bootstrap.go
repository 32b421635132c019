package app

import (
	"fmt"
	"strings"
	"time"

	"issuebot/internal/config"
	"issuebot/internal/dedup"
	"issuebot/internal/dispatch"
	"issuebot/internal/ops"
	kit "issuebot/internal/transport"
	"issuebot/internal/transport/slack"
	"issuebot/internal/transport/telegram"
	logx "issuebot/pkg/logx"
)

const defaultUpdatesBuffer = 256

func newAdapter(cfg *config.Config, log logx.Logger) (kit.Adapter, error) {
	switch p := strings.ToLower(strings.TrimSpace(cfg.Chat.Platform)); p {
	case telegram.Platform:
		poll, err := config.ParseDurationOrDefault("chat.telegram.poll_timeout", cfg.Chat.Telegram.PollTimeout, 10*time.Second, false)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:       cfg.Chat.Telegram.Token,
			PollTimeout: poll,
		}, log.With(logx.String("comp", "telegram")))
	case slack.Platform:
		return slack.New(slack.Config{
			BotToken: cfg.Chat.Slack.BotToken,
			AppToken: cfg.Chat.Slack.AppToken,
			Debug:    cfg.Chat.Slack.Debug,
		}, log.With(logx.String("comp", "slack")))
	default:
		return nil, fmt.Errorf("chat.platform: unknown platform %q", p)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Chat: logx.ChatConfig{
			Enabled:        l.Chat.Enabled,
			ConversationID: l.Chat.ConversationID,
			ThreadID:       l.Chat.ThreadID,
			MinLevel:       l.Chat.MinLevel,
			RatePerSec:     l.Chat.RatePerSec,
		},
	}
}

func mapDedupOptions(cfg *config.Config, log logx.Logger) (dedup.Options, error) {
	// "0s" disables suppression, so an explicit zero is kept.
	window, err := config.ParseDurationOrDefault("dedup.window", cfg.Dedup.Window, dedup.DefaultWindow, true)
	if err != nil {
		return dedup.Options{}, err
	}
	sweep, err := config.ParseDurationOrDefault("dedup.sweep_interval", cfg.Dedup.SweepInterval, dedup.DefaultSweepInterval, false)
	if err != nil {
		return dedup.Options{}, err
	}
	return dedup.Options{Window: window, SweepInterval: sweep, Log: log}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, int, error) {
	send, err := config.ParseDurationOrDefault("dispatch.send_timeout", cfg.Dispatch.SendTimeout, dispatch.DefaultSendTimeout, false)
	if err != nil {
		return dispatch.Config{}, 0, err
	}
	buf := cfg.Dispatch.UpdatesBuffer
	if buf <= 0 {
		buf = defaultUpdatesBuffer
	}
	return dispatch.Config{MaxInflight: cfg.Dispatch.MaxInflight, SendTimeout: send}, buf, nil
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	o := cfg.Ops
	out := ops.Config{
		Enabled:       o.Enabled,
		Addr:          o.Addr,
		Prefix:        o.Prefix,
		Token:         o.Token,
		AllowInsecure: o.AllowInsecure,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("ops.read_timeout", o.ReadTimeout, 10*time.Second, false); err != nil {
		return ops.Config{}, err
	}
	// pprof/profile streams for up to 30s by default
	if out.WriteTimeout, err = config.ParseDurationOrDefault("ops.write_timeout", o.WriteTimeout, 60*time.Second, false); err != nil {
		return ops.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("ops.idle_timeout", o.IdleTimeout, 60*time.Second, false); err != nil {
		return ops.Config{}, err
	}
	return out, nil
}
