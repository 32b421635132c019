package storage

import (
	"context"
	"errors"
	"time"

	"issuebot/internal/dedup"
)

var ErrClosed = errors.New("storage closed")

// Store is a dedup.Store that can also record notification outcomes.
type Store interface {
	dedup.Store
	AppendAudit(ctx context.Context, e AuditEntry) error
}

// Config configures storage.
//
// Driver values:
//   - "file": jsonl journal + snapshot next to Path
//   - "sqlite": SQLite database file at Path
//
// Empty, "memory" and "none" mean no persistent store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records the outcome of one notification.
type AuditEntry struct {
	ID             string    `json:"id"`
	At             time.Time `json:"at"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	Platform       string    `json:"platform,omitempty"`
	ConversationID string    `json:"conversation_id"`
	IssueKey       string    `json:"issue_key"`
	Profile        string    `json:"profile,omitempty"`
	Result         string    `json:"result"`
	Error          string    `json:"error,omitempty"`
	TookMS         int64     `json:"took_ms,omitempty"`
}
