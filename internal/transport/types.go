package transport

import "context"

// EventKind classifies an inbound chat event for profile selection.
type EventKind string

const (
	// EventMention is a direct mention of the bot (Slack app_mention, Telegram @bot)
	// or a private/direct conversation with it.
	EventMention EventKind = "mention"
	// EventMessage is any other (ambient) message the bot can see.
	EventMessage EventKind = "message"
)

// Message is a platform-neutral inbound chat message.
type Message struct {
	Platform       string
	Kind           EventKind
	ConversationID string
	ThreadID       string // slack thread_ts / telegram forum topic ("" if none)
	MessageID      string // slack ts / telegram message id
	UserID         string
	Username       string
	Text           string
}

// ChatTarget addresses an outbound message.
type ChatTarget struct {
	ConversationID string
	ThreadID       string
}

// SendOptions controls outbound placement.
type SendOptions struct {
	// InThread asks the adapter to reply inside a thread (Slack) or as a reply
	// to ReplyTo (Telegram).
	InThread bool
	ReplyTo  string
}

// AttachmentField is one entry of the attachment's field table.
type AttachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Attachment is a composed, ready-to-send issue summary.
//
// Text and Pretext carry chat markdown (see format.ConvertMarkup); adapters
// translate it into their own dialect. An Attachment is never mutated after
// it is built.
type Attachment struct {
	Fallback   string            `json:"fallback"`
	Pretext    string            `json:"pretext,omitempty"`
	Title      string            `json:"title"`
	TitleLink  string            `json:"title_link"`
	Text       string            `json:"text,omitempty"`
	Fields     []AttachmentField `json:"fields,omitempty"`
	Footer     string            `json:"footer,omitempty"`
	MarkdownIn []string          `json:"mrkdwn_in,omitempty"`
	InThread   bool              `json:"in_thread"`
}

type Adapter interface {
	Name() string

	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error

	// SendText posts plain text (used by the chat log sink).
	SendText(ctx context.Context, to ChatTarget, text string) error
	SendAttachment(ctx context.Context, to ChatTarget, att Attachment, opt SendOptions) error
}
