// Package dispatch turns inbound chat messages into issue notifications.
package dispatch

import (
	"issuebot/internal/format"
	"issuebot/internal/mention"
	"issuebot/internal/transport"
)

// Selection names the profiles used for each kind of message.
type Selection struct {
	Default   string
	AtMention string
	// Conversations overrides Default per conversation id.
	Conversations map[string]string
}

// Engine is an immutable snapshot of everything derived from hot-reloadable
// config. Notifications in flight keep the snapshot they started with.
type Engine struct {
	Extractor *mention.Extractor
	Composer  *format.Composer
	Profiles  map[string]*format.CompiledProfile
	Selection Selection
}

// SelectProfile picks the profile for msg. Mentions always use the
// at-mention profile; other messages use the conversation override, then the
// default. Unknown names fall back to the built-in default profile.
func SelectProfile(e *Engine, msg transport.Message) (string, *format.CompiledProfile) {
	name := e.Selection.Default
	if msg.Kind == transport.EventMention {
		name = e.Selection.AtMention
	} else if n := e.Selection.Conversations[msg.ConversationID]; n != "" {
		name = n
	}
	if p, ok := e.Profiles[name]; ok {
		return name, p
	}
	if p, ok := e.Profiles[format.DefaultProfileName]; ok {
		return format.DefaultProfileName, p
	}
	return format.DefaultProfileName, format.Compile(format.DefaultProfile())
}
