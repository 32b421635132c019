// Package storetest checks dedup.Store implementations against the window contract.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"issuebot/internal/dedup"
)

// Run exercises a fresh store from newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) dedup.Store) {
	t.Helper()
	const w = 5 * time.Minute
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	t.Run("window boundary", func(t *testing.T) {
		s := newStore(t)
		ok, err := s.CheckAndSet(ctx, "C1|PROJ-1", base, w)
		require.NoError(t, err)
		require.True(t, ok, "first sighting must be allowed")

		ok, err = s.CheckAndSet(ctx, "C1|PROJ-1", base.Add(w-time.Millisecond), w)
		require.NoError(t, err)
		require.False(t, ok, "repeat inside window must be suppressed")

		// The suppressed call must not have refreshed the entry.
		ok, err = s.CheckAndSet(ctx, "C1|PROJ-1", base.Add(w), w)
		require.NoError(t, err)
		require.True(t, ok, "repeat at the window edge must be allowed")
	})

	t.Run("keys are independent", func(t *testing.T) {
		s := newStore(t)
		for _, k := range []string{"C1|PROJ-1", "C2|PROJ-1", "C1|PROJ-2"} {
			ok, err := s.CheckAndSet(ctx, k, base, w)
			require.NoError(t, err)
			require.True(t, ok, k)
		}
		n, err := s.Len(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, n)
	})

	t.Run("sweep removes only expired", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CheckAndSet(ctx, "old", base, w)
		require.NoError(t, err)
		_, err = s.CheckAndSet(ctx, "new", base.Add(3*time.Minute), w)
		require.NoError(t, err)

		removed, err := s.SweepExpired(ctx, base.Add(w), w)
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		n, err := s.Len(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, n)

		ok, err := s.CheckAndSet(ctx, "new", base.Add(w), w)
		require.NoError(t, err)
		require.False(t, ok, "unexpired entry must survive the sweep")
	})

	t.Run("concurrent check-and-set allows once", func(t *testing.T) {
		s := newStore(t)
		var allowed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.CheckAndSet(ctx, "C1|RACE-1", base, w)
				if err == nil && ok {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), allowed.Load())
	})
}
