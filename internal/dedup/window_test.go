package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldNotifyWindow(t *testing.T) {
	t.Parallel()
	const w = 300 * time.Second
	base := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name  string
		delta time.Duration
		want  bool
	}{
		{name: "immediately", delta: 0, want: false},
		{name: "just inside", delta: w - time.Nanosecond, want: false},
		{name: "exactly window", delta: w, want: true},
		{name: "after window", delta: w + time.Minute, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			win := New(NewMemoryStore(), Options{Window: w})
			ctx := context.Background()
			require.True(t, win.ShouldNotify(ctx, "C1", "PROJ-123", base))
			assert.Equal(t, tt.want, win.ShouldNotify(ctx, "C1", "PROJ-123", base.Add(tt.delta)))
		})
	}
}

func TestShouldNotifyScopedByConversation(t *testing.T) {
	t.Parallel()
	win := New(nil, Options{Window: time.Minute})
	ctx := context.Background()
	now := time.Now()
	require.True(t, win.ShouldNotify(ctx, "C1", "PROJ-1", now))
	require.True(t, win.ShouldNotify(ctx, "C2", "PROJ-1", now))
	require.False(t, win.ShouldNotify(ctx, "C1", "PROJ-1", now))
}

func TestDisabledWindowNeverWrites(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	win := New(store, Options{Window: 0})
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		require.True(t, win.ShouldNotify(ctx, "C1", "PROJ-1", now))
	}
	n, err := store.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingStore struct{ MemoryStore }

func (*failingStore) CheckAndSet(context.Context, string, time.Time, time.Duration) (bool, error) {
	return false, errors.New("disk on fire")
}

func TestStoreErrorFailsOpen(t *testing.T) {
	t.Parallel()
	win := New(&failingStore{}, Options{Window: time.Minute})
	assert.True(t, win.ShouldNotify(context.Background(), "C1", "PROJ-1", time.Now()))
}

func TestSweepExpiredDoesNotAffectCorrectness(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	win := New(store, Options{Window: time.Minute})
	ctx := context.Background()
	base := time.Now()

	require.True(t, win.ShouldNotify(ctx, "C1", "A-1", base))
	require.True(t, win.ShouldNotify(ctx, "C1", "B-1", base.Add(30*time.Second)))

	assert.Equal(t, 1, win.SweepExpired(ctx, base.Add(time.Minute)))
	// Without any sweep the expired entry would still allow.
	assert.True(t, win.ShouldNotify(ctx, "C1", "A-1", base.Add(time.Minute)))
	assert.False(t, win.ShouldNotify(ctx, "C1", "B-1", base.Add(time.Minute)))
}

func TestStartStopSweep(t *testing.T) {
	t.Parallel()
	win := New(nil, Options{Window: time.Minute, SweepInterval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, win.Start(ctx))
	require.NoError(t, win.Start(ctx))
	require.NoError(t, win.Stop(ctx))
	require.NoError(t, win.Stop(ctx))
}
