package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"issuebot/internal/metrics"
	logx "issuebot/pkg/logx"
)

const (
	DefaultWindow        = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Key joins a conversation id and an issue key into a store key.
func Key(conversationID, issueKey string) string {
	return conversationID + "|" + issueKey
}

type Options struct {
	// Window is the suppression interval. Zero or negative disables suppression.
	Window time.Duration
	// SweepInterval is the period of the expiry sweep (default 1m).
	SweepInterval time.Duration
	Log           logx.Logger
	// Now is used by the scheduled sweep. Defaults to time.Now.
	Now func() time.Time
}

// Window decides whether a (conversation, issue) pair may notify.
//
// Expiry is evaluated on every ShouldNotify call; the sweep only reclaims
// storage.
type Window struct {
	store    Store
	window   time.Duration
	interval time.Duration
	log      logx.Logger
	now      func() time.Time

	mu sync.Mutex
	c  *cron.Cron
}

func New(store Store, opts Options) *Window {
	if store == nil {
		store = NewMemoryStore()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Window{
		store:    store,
		window:   opts.Window,
		interval: opts.SweepInterval,
		log:      opts.Log,
		now:      opts.Now,
	}
}

// Duration returns the configured suppression window.
func (w *Window) Duration() time.Duration { return w.window }

// Store returns the backing store.
func (w *Window) Store() Store { return w.store }

// ShouldNotify reports whether issueKey may be announced in conversationID at
// now, recording now when it may. Store failures allow the notification.
func (w *Window) ShouldNotify(ctx context.Context, conversationID, issueKey string, now time.Time) bool {
	if w.window <= 0 {
		return true
	}
	ok, err := w.store.CheckAndSet(ctx, Key(conversationID, issueKey), now, w.window)
	if err != nil {
		metrics.DedupStoreErrorsTotal.Inc()
		if !w.log.IsZero() {
			w.log.Warn("dedup store failed; allowing",
				logx.String("conversation", conversationID),
				logx.String("issue", issueKey),
				logx.Err(err),
			)
		}
		return true
	}
	return ok
}

// SweepExpired removes entries whose age reached the window.
func (w *Window) SweepExpired(ctx context.Context, now time.Time) int {
	if w.window <= 0 {
		return 0
	}
	n, err := w.store.SweepExpired(ctx, now, w.window)
	if err != nil {
		metrics.DedupStoreErrorsTotal.Inc()
		if !w.log.IsZero() {
			w.log.Warn("dedup sweep failed", logx.Err(err))
		}
	}
	if n > 0 {
		metrics.DedupSweptTotal.Add(float64(n))
	}
	if size, err := w.store.Len(ctx); err == nil {
		metrics.DedupEntries.Set(float64(size))
	}
	if n > 0 && !w.log.IsZero() {
		w.log.Debug("dedup sweep", logx.Int("removed", n))
	}
	return n
}

// Start schedules the periodic sweep. Calling Start twice is a no-op.
func (w *Window) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.c != nil {
		return nil
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", w.interval)
	if _, err := c.AddFunc(spec, func() { w.SweepExpired(ctx, w.now()) }); err != nil {
		return fmt.Errorf("schedule dedup sweep: %w", err)
	}
	c.Start()
	w.c = c
	if !w.log.IsZero() {
		w.log.Info("dedup sweep started", logx.Duration("window", w.window), logx.Duration("interval", w.interval))
	}
	return nil
}

// Stop halts the sweep and waits for a running sweep to finish or ctx to end.
func (w *Window) Stop(ctx context.Context) error {
	w.mu.Lock()
	c := w.c
	w.c = nil
	w.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
