package app

import (
	"context"
	"strings"
	"time"

	"issuebot/internal/eventbus"
	"issuebot/internal/storage"
	logx "issuebot/pkg/logx"
)

// auditEntry maps a notification event onto an audit record. Suppressions
// and non-notification events are not audited.
func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	n, ok := e.Data.(eventbus.Notification)
	if !ok || !strings.HasPrefix(e.Type, "notification.") || e.Type == eventbus.TypeNotificationSuppressed {
		return storage.AuditEntry{}, false
	}
	entry := storage.AuditEntry{
		At:             e.Time,
		CorrelationID:  n.CorrelationID,
		Platform:       n.Platform,
		ConversationID: n.ConversationID,
		IssueKey:       n.IssueKey,
		Profile:        n.Profile,
		Result:         strings.TrimPrefix(e.Type, "notification."),
		TookMS:         n.Took.Milliseconds(),
	}
	if n.Err != nil {
		entry.Error = n.Err.Error()
	}
	return entry, true
}

// consumeEvents logs every bus event at debug and appends notification
// outcomes to the audit store (when one is configured).
func consumeEvents(ctx context.Context, events <-chan eventbus.Event, store storage.Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if store == nil {
				continue
			}
			entry, ok := auditEntry(e)
			if !ok {
				continue
			}
			actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := store.AppendAudit(actx, entry); err != nil {
				log.Warn("audit append failed", logx.String("issue", entry.IssueKey), logx.Err(err))
			}
			cancel()
		}
	}
}
