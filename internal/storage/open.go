package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "issuebot/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, nil) when no persistent driver is configured.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" || driver == "memory" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

// fillAudit assigns an id and timestamp when missing.
func fillAudit(e *AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
}
