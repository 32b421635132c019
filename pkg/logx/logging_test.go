package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "issuebot/internal/transport"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	assert.True(t, l.IsZero())
	l.Info("dropped", String("k", "v"))
	assert.False(t, l.With(String("comp", "x")).IsZero())
	assert.False(t, Nop().IsZero())
}

func TestWriterLoggerFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").With(String("comp", "dispatch"))

	l.Debug("hidden")
	l.Warn("send failed", String("issue", "ABC-1"), Err(nil), Int("attempt", 1))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "warn", m["level"])
	assert.Equal(t, "send failed", m["message"])
	assert.Equal(t, "dispatch", m["comp"])
	assert.Equal(t, "ABC-1", m["issue"])
	assert.NotContains(t, m, "err")
	assert.Contains(t, m["caller"], "logging_test.go:")

	assert.True(t, l.Enabled(LevelWarn))
	assert.False(t, l.Enabled(LevelDebug))
}

func TestFormatChatLine(t *testing.T) {
	got := formatChatLine([]byte(`{"level":"warn","time":"t","message":"fetch failed","issue":"ABC-1","comp":"dispatch"}` + "\n"))
	assert.Equal(t, "[WARN] fetch failed\n- comp=dispatch\n- issue=ABC-1", got)

	assert.Equal(t, "not json", formatChatLine([]byte("  not json \n")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "abcdef", truncate("abcdef", 0))
}

func TestValidLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", "warning", " error "} {
		assert.True(t, ValidLevel(s), s)
	}
	assert.False(t, ValidLevel("verbose"))
}

type textRecorder struct {
	mu   sync.Mutex
	sent []string
	to   []kit.ChatTarget
}

func (r *textRecorder) Name() string { return "rec" }
func (r *textRecorder) Start(context.Context, chan<- kit.Message) error { return nil }
func (r *textRecorder) Stop(context.Context) error { return nil }
func (r *textRecorder) SendAttachment(context.Context, kit.ChatTarget, kit.Attachment, kit.SendOptions) error {
	return nil
}

func (r *textRecorder) SendText(_ context.Context, to kit.ChatTarget, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	r.to = append(r.to, to)
	return nil
}

func (r *textRecorder) snapshot() ([]string, []kit.ChatTarget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...), append([]kit.ChatTarget(nil), r.to...)
}

func TestChatSinkForwardsWarnings(t *testing.T) {
	rec := &textRecorder{}
	svc, log := New(Config{
		Level: "debug",
		Chat:  ChatConfig{Enabled: true, ConversationID: "C1", ThreadID: "T1", MinLevel: "warn", RatePerSec: 50},
	}, rec)
	defer func() { _ = svc.Close() }()

	log.Info("routine")
	log.Warn("tracker unreachable", String("issue", "ABC-1"))

	require.Eventually(t, func() bool {
		sent, _ := rec.snapshot()
		return len(sent) == 1
	}, 2*time.Second, 5*time.Millisecond)

	sent, to := rec.snapshot()
	assert.True(t, strings.HasPrefix(sent[0], "[WARN] tracker unreachable"))
	assert.Contains(t, sent[0], "- issue=ABC-1")
	assert.Equal(t, kit.ChatTarget{ConversationID: "C1", ThreadID: "T1"}, to[0])
}
