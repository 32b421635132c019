package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"issuebot/internal/dedup"
	"issuebot/internal/eventbus"
	"issuebot/internal/format"
	"issuebot/internal/metrics"
	"issuebot/internal/runtime/supervisor"
	"issuebot/internal/tracker"
	"issuebot/internal/transport"
	logx "issuebot/pkg/logx"
)

const (
	DefaultMaxInflight  = 8
	DefaultSendTimeout  = 10 * time.Second
	DefaultDrainTimeout = 5 * time.Second
)

// Sender delivers a composed attachment. Every transport.Adapter is one.
type Sender interface {
	SendAttachment(ctx context.Context, to transport.ChatTarget, att transport.Attachment, opt transport.SendOptions) error
}

type Config struct {
	// MaxInflight bounds concurrent fetch+send notifications.
	MaxInflight int
	// SendTimeout bounds each SendAttachment call.
	SendTimeout time.Duration
	// DrainTimeout bounds how long DispatchLoop waits for in-flight work on exit.
	DrainTimeout time.Duration
}

type Deps struct {
	Finder tracker.Finder
	Sender Sender
	Window *dedup.Window
	Bus    eventbus.Bus // optional
	Log    logx.Logger
	Now    func() time.Time
}

// Dispatcher runs the extract → dedup → fetch → compose → send pipeline.
type Dispatcher struct {
	cfg  Config
	deps Deps
	log  logx.Logger

	engine atomic.Pointer[Engine]
	sem    *semaphore.Weighted
	sup    *supervisor.Supervisor

	inflight sync.WaitGroup
}

func New(cfg Config, deps Deps, engine *Engine) (*Dispatcher, error) {
	switch {
	case deps.Finder == nil:
		return nil, errors.New("dispatch: finder is required")
	case deps.Sender == nil:
		return nil, errors.New("dispatch: sender is required")
	case engine == nil || engine.Extractor == nil || engine.Composer == nil:
		return nil, errors.New("dispatch: engine is incomplete")
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = DefaultMaxInflight
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if deps.Window == nil {
		deps.Window = dedup.New(nil, dedup.Options{Window: dedup.DefaultWindow})
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	log := deps.Log.With(logx.String("comp", "dispatch"))
	d := &Dispatcher{
		cfg:  cfg,
		deps: deps,
		log:  log,
		sem:  semaphore.NewWeighted(int64(cfg.MaxInflight)),
		// Notifications outlive the message handler's context; Close ends them.
		sup: supervisor.New(context.Background(), supervisor.WithLogger(log)),
	}
	d.engine.Store(engine)
	return d, nil
}

// Reload swaps the engine snapshot.
func (d *Dispatcher) Reload(e *Engine) {
	if e == nil || e.Extractor == nil || e.Composer == nil {
		return
	}
	d.engine.Store(e)
}

func (d *Dispatcher) Engine() *Engine { return d.engine.Load() }

// Supervisor owns the notification goroutines (for health output).
func (d *Dispatcher) Supervisor() *supervisor.Supervisor { return d.sup }

// HandleInboundMessage processes one inbound message. Dedup decisions are
// made synchronously; fetches run concurrently and report through logs,
// metrics and the event bus.
func (d *Dispatcher) HandleInboundMessage(ctx context.Context, msg transport.Message) {
	metrics.MessagesTotal.WithLabelValues(msg.Platform, string(msg.Kind)).Inc()
	if msg.Text == "" {
		return
	}
	eng := d.engine.Load()
	keys := eng.Extractor.Extract(msg.Text)
	if len(keys) == 0 {
		return
	}
	metrics.IdentifiersTotal.Add(float64(len(keys)))

	corr := uuid.NewString()
	profileName, profile := SelectProfile(eng, msg)
	log := d.log.With(
		logx.String("corr", corr),
		logx.String("conversation", msg.ConversationID),
		logx.String("profile", profileName),
	)

	now := d.deps.Now()
	for _, key := range keys {
		n := eventbus.Notification{
			CorrelationID:  corr,
			Platform:       msg.Platform,
			ConversationID: msg.ConversationID,
			IssueKey:       key,
			Profile:        profileName,
		}
		if !d.deps.Window.ShouldNotify(ctx, msg.ConversationID, key, now) {
			log.Debug("suppressed repeat", logx.String("issue", key))
			metrics.Notification(metrics.ResultSuppressed)
			d.publish(eventbus.TypeNotificationSuppressed, n)
			continue
		}

		d.inflight.Add(1)
		d.sup.Go0("notify."+key, func(c context.Context) {
			defer d.inflight.Done()
			d.notify(c, log.With(logx.String("issue", key)), eng.Composer, profile, msg, n)
		})
	}
}

func (d *Dispatcher) notify(ctx context.Context, log logx.Logger, composer *format.Composer, profile *format.CompiledProfile, msg transport.Message, n eventbus.Notification) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer d.sem.Release(1)

	start := time.Now()
	issue, err := d.deps.Finder.FindIssue(ctx, n.IssueKey)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Warn("issue fetch failed", logx.Err(err))
		metrics.Notification(metrics.ResultFetchFailed)
		n.Err, n.Took = err, time.Since(start)
		d.publish(eventbus.TypeNotificationFetchFailed, n)
		return
	}

	att, err := composer.Compose(issue, profile)
	if err != nil {
		var te *format.TemplateError
		if !errors.As(err, &te) {
			log.Error("compose failed", logx.Err(err))
			return
		}
		// The attachment already carries the default title.
		log.Warn("template failed; using defaults", logx.Err(err))
		metrics.Notification(metrics.ResultTemplateError)
		tn := n
		tn.Err = err
		d.publish(eventbus.TypeNotificationTemplate, tn)
	}

	to, opt := replyTarget(msg, att.InThread)
	sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	err = d.deps.Sender.SendAttachment(sctx, to, att, opt)
	cancel()
	n.Took = time.Since(start)
	if err != nil {
		log.Warn("send failed", logx.Err(err))
		metrics.Notification(metrics.ResultSendFailed)
		n.Err = err
		d.publish(eventbus.TypeNotificationSendFailed, n)
		return
	}
	log.Debug("notification sent", logx.Duration("took", n.Took))
	metrics.Notification(metrics.ResultSent)
	d.publish(eventbus.TypeNotificationSent, n)
}

// replyTarget keeps the reply in the message's conversation. In-thread
// replies attach to the message's thread, or start one on the message.
func replyTarget(msg transport.Message, inThread bool) (transport.ChatTarget, transport.SendOptions) {
	to := transport.ChatTarget{ConversationID: msg.ConversationID, ThreadID: msg.ThreadID}
	opt := transport.SendOptions{InThread: inThread}
	if inThread {
		if to.ThreadID == "" {
			to.ThreadID = msg.MessageID
		}
		opt.ReplyTo = msg.MessageID
	}
	return to, opt
}

func (d *Dispatcher) publish(typ string, n eventbus.Notification) {
	if d.deps.Bus == nil {
		return
	}
	d.deps.Bus.Publish(eventbus.Event{Type: typ, Data: n})
}

// DispatchLoop feeds updates to HandleInboundMessage until ctx ends or the
// channel closes, then waits up to DrainTimeout for in-flight notifications.
func (d *Dispatcher) DispatchLoop(ctx context.Context, updates <-chan transport.Message) error {
	d.log.Info("dispatcher started", logx.Int("max_inflight", d.cfg.MaxInflight))
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), d.cfg.DrainTimeout)
		defer cancel()
		if err := d.Wait(wctx); err != nil {
			d.log.Warn("dispatcher drain timed out", logx.Err(err))
		}
		d.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-updates:
			if !ok {
				return nil
			}
			d.HandleInboundMessage(ctx, msg)
		}
	}
}

// Wait blocks until no notification is in flight or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels in-flight notifications and waits for them to exit.
func (d *Dispatcher) Close(ctx context.Context) error {
	return d.sup.Stop(ctx)
}
