package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "issuebot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

const defaultBusyTimeout = time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("dedup.store.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers, which also makes the upsert in
	// CheckAndSet atomic with respect to other callers in this process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	ctx := context.Background()
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Debug("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	if _, err := db.ExecContext(ctx, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	fillAudit(&e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(id, at, correlation_id, platform, conversation_id, issue_key, profile, result, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.At.UTC().Format(time.RFC3339Nano), nullStr(e.CorrelationID), nullStr(e.Platform),
		e.ConversationID, e.IssueKey, nullStr(e.Profile), e.Result, nullStr(e.Error), e.TookMS,
	)
	return err
}

// CheckAndSet inserts the key or overwrites an entry at least window old in a
// single statement; a suppressed key leaves the row untouched.
func (s *sqliteStore) CheckAndSet(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	nowMS := now.UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, seen_at) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET seen_at = excluded.seen_at
		 WHERE dedup.seen_at <= ?`,
		key, nowMS, nowMS-window.Milliseconds(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) SweepExpired(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dedup WHERE seen_at <= ?`, now.UnixMilli()-window.Milliseconds())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqliteStore) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dedup`).Scan(&n)
	return n, err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
