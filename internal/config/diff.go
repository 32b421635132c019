package config

import (
	"reflect"
	"strings"

	logx "issuebot/pkg/logx"
)

// restartSections cannot be applied to a running process.
var restartSections = map[string]bool{
	"chat":     true,
	"tracker":  true,
	"dedup":    true,
	"dispatch": true,
	"ops":      true,
}

// RequiresRestart reports whether a changed section needs a process restart.
func RequiresRestart(section string) bool { return restartSections[section] }

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. Secrets (tokens, passwords) are never included;
// only whether they are set.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Chat, newCfg.Chat) {
		changed = append(changed, "chat")
		attrs = append(attrs,
			logx.String("chat.platform", newCfg.Chat.Platform),
			logx.Bool("chat.telegram_token_set", strings.TrimSpace(newCfg.Chat.Telegram.Token) != ""),
			logx.Bool("chat.slack_token_set", strings.TrimSpace(newCfg.Chat.Slack.BotToken) != ""),
		)
	}

	// Field wiring in tracker is hot-reloadable; connection settings are not.
	oldT, newT := oldCfg.Tracker, newCfg.Tracker
	if oldT.SprintField != newT.SprintField || !reflect.DeepEqual(oldT.CustomFields, newT.CustomFields) {
		changed = append(changed, "tracker.fields")
		attrs = append(attrs,
			logx.String("tracker.sprint_field", newT.SprintField),
			logx.Int("tracker.custom_fields", len(newT.CustomFields)),
		)
	}
	oldT.SprintField, newT.SprintField = "", ""
	oldT.CustomFields, newT.CustomFields = nil, nil
	if !reflect.DeepEqual(oldT, newT) {
		changed = append(changed, "tracker")
		attrs = append(attrs,
			logx.String("tracker.host", newT.Host),
			logx.Bool("tracker.password_set", strings.TrimSpace(newT.Password) != ""),
		)
	}

	if oldCfg.Mention != newCfg.Mention {
		changed = append(changed, "mention")
		attrs = append(attrs, logx.String("mention.pattern", PatternOrDefault(newCfg.Mention.Pattern)))
	}
	if !reflect.DeepEqual(oldCfg.UserMap, newCfg.UserMap) {
		changed = append(changed, "usermap")
		attrs = append(attrs, logx.Int("usermap.entries", len(newCfg.UserMap)))
	}
	if !reflect.DeepEqual(oldCfg.Formats, newCfg.Formats) {
		changed = append(changed, "formats")
		attrs = append(attrs, logx.Int("formats.count", len(newCfg.Formats)))
	}
	if !reflect.DeepEqual(oldCfg.Profiles, newCfg.Profiles) {
		changed = append(changed, "profiles")
		attrs = append(attrs,
			logx.String("profiles.default", newCfg.Profiles.Default),
			logx.String("profiles.at_mention", newCfg.Profiles.AtMention),
			logx.Int("profiles.conversations", len(newCfg.Profiles.Conversations)),
		)
	}
	if oldCfg.Dedup != newCfg.Dedup {
		changed = append(changed, "dedup")
		attrs = append(attrs,
			logx.String("dedup.window", newCfg.Dedup.Window),
			logx.String("dedup.store", newCfg.Dedup.Store.Driver),
		)
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		changed = append(changed, "dispatch")
	}
	if oldCfg.Ops != newCfg.Ops {
		changed = append(changed, "ops")
		attrs = append(attrs,
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", strings.TrimSpace(newCfg.Ops.Token) != ""),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	return changed, attrs
}
