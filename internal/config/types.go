package config

// Config is the root configuration document.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
// Unknown keys are rejected so typos surface at load/reload time.
type Config struct {
	Chat     ChatConfig     `json:"chat"`
	Tracker  TrackerConfig  `json:"tracker"`
	Mention  MentionConfig  `json:"mention"`
	Logging  LoggingConfig  `json:"logging"`
	Dedup    DedupConfig    `json:"dedup"`
	Dispatch DispatchConfig `json:"dispatch"`
	Ops      OpsConfig      `json:"ops,omitempty"`

	// UserMap maps tracker user names to chat usernames (without "@").
	UserMap map[string]string `json:"usermap,omitempty"`

	// Formats holds the named format profiles.
	Formats  map[string]FormatConfig `json:"formats"`
	Profiles ProfilesConfig          `json:"profiles"`
}

// ChatConfig selects and configures the chat transport.
type ChatConfig struct {
	// Platform is "telegram" or "slack".
	Platform string         `json:"platform"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Slack    SlackConfig    `json:"slack,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (default "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type SlackConfig struct {
	BotToken string `json:"bot_token,omitempty"` // xoxb-...
	AppToken string `json:"app_token,omitempty"` // xapp-... (socket mode)
	Debug    bool   `json:"debug,omitempty"`
}

// TrackerConfig holds the issue tracker connection and field settings.
//
// Defaults:
//   - protocol: "https"
//   - api_version: "2"
//   - strict_ssl: true
//   - timeout: "10s"
//   - rate_per_sec: 5
type TrackerConfig struct {
	Protocol   string `json:"protocol,omitempty"`
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	BasePath   string `json:"base_path,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
	User       string `json:"user,omitempty"`
	Password   string `json:"password,omitempty"`
	StrictSSL  *bool  `json:"strict_ssl,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`

	// SprintField is the tracker field key holding sprint data (e.g. "customfield_10010").
	SprintField string `json:"sprint_field,omitempty"`
	// CustomFields maps a display field name to a tracker field key.
	CustomFields map[string]string `json:"custom_fields,omitempty"`
}

type MentionConfig struct {
	// Pattern is the identifier regexp. If it has a capture group, group 1 is used.
	Pattern string `json:"pattern,omitempty"`
}

// FormatConfig is one named format profile.
type FormatConfig struct {
	Description     bool     `json:"description"`
	Pretext         string   `json:"pretext,omitempty"`
	Title           string   `json:"title,omitempty"`
	HideFooter      bool     `json:"hide_footer,omitempty"`
	RespondInThread bool     `json:"respond_in_thread,omitempty"`
	Fields          []string `json:"fields,omitempty"`
}

// ProfilesConfig decides which format profile applies to a message.
type ProfilesConfig struct {
	Default   string `json:"default,omitempty"`
	AtMention string `json:"at_mention,omitempty"`
	// Conversations overrides the default profile per conversation id.
	Conversations map[string]string `json:"conversations,omitempty"`
}

// DedupConfig controls repeat suppression.
//
// Defaults: window "5m", sweep_interval "1m", store.driver "memory".
// A window of "0s" disables suppression.
type DedupConfig struct {
	Window        string      `json:"window,omitempty"`
	SweepInterval string      `json:"sweep_interval,omitempty"`
	Store         StoreConfig `json:"store,omitempty"`
}

// StoreConfig selects the dedup/audit backend.
//
// Example:
//
//	"store": { "driver": "sqlite", "path": "./data/issuebot.db" }
type StoreConfig struct {
	Driver      string `json:"driver,omitempty"` // memory | file | sqlite
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// DispatchConfig tunes the dispatcher.
//
// Defaults: max_inflight 8, updates_buffer 256, send_timeout "10s".
type DispatchConfig struct {
	MaxInflight   int    `json:"max_inflight,omitempty"`
	UpdatesBuffer int    `json:"updates_buffer,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

// OpsConfig controls the optional ops HTTP server (/healthz, /metrics, pprof).
//
// Prefer binding to localhost. A non-loopback address needs a token or an
// explicit allow_insecure.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`   // default: "127.0.0.1:9464"
	Prefix        string `json:"prefix,omitempty"` // pprof prefix, default: "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // optional bearer token (never logged)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	Chat    LoggingChat `json:"chat"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingChat struct {
	Enabled        bool   `json:"enabled"`
	ConversationID string `json:"conversation_id,omitempty"`
	ThreadID       string `json:"thread_id,omitempty"`
	MinLevel       string `json:"min_level,omitempty"`
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
}
