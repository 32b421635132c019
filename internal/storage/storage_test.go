package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"issuebot/internal/dedup"
	"issuebot/internal/dedup/storetest"
	logx "issuebot/pkg/logx"
)

func openTestStore(t *testing.T, driver string) Store {
	t.Helper()
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "issuebot.db")}, logx.Nop())
	require.NoError(t, err)
	require.NotNil(t, st)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) dedup.Store { return openTestStore(t, "file") })
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) dedup.Store { return openTestStore(t, "sqlite") })
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, d := range []string{"", "none", "memory"} {
		st, err := Open(Config{Driver: d}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st, d)
	}
	_, err := Open(Config{Driver: "redis"}, logx.Nop())
	require.Error(t, err)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	for _, k := range []string{"C1|A-1", "C1|B-1"} {
		ok, err := st.CheckAndSet(ctx, k, base, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	}
	// The sweep compacts; C-1 must survive it.
	ok, err := st.CheckAndSet(ctx, "C1|C-1", base.Add(45*time.Second), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	removed, err := st.SweepExpired(ctx, base.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	n, err := st.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	ok, err = st.CheckAndSet(ctx, "C1|C-1", base.Add(time.Minute), time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "journaled entry must still suppress after reopen")
}

func TestFileStoreAppendAudit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "bot.db")}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.AppendAudit(context.Background(), AuditEntry{
		ConversationID: "C1",
		IssueKey:       "PROJ-1",
		Result:         "sent",
	}))
	require.NoError(t, st.Close())

	f, err := os.Open(filepath.Join(dir, "bot.audit.jsonl"))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var got AuditEntry
	require.NoError(t, json.Unmarshal(sc.Bytes(), &got))
	require.NotEmpty(t, got.ID)
	require.False(t, got.At.IsZero())
	require.Equal(t, "PROJ-1", got.IssueKey)
}

func TestSQLiteAppendAudit(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, "sqlite")
	ctx := context.Background()
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{ConversationID: "C1", IssueKey: "PROJ-1", Result: "fetch_failed", Error: "not found"}))
	require.NoError(t, st.AppendAudit(ctx, AuditEntry{ConversationID: "C1", IssueKey: "PROJ-1", Result: "sent"}))

	var n int
	require.NoError(t, st.(*sqliteStore).db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit WHERE issue_key = ?`, "PROJ-1").Scan(&n))
	require.Equal(t, 2, n)
}
