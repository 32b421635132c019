// Package app wires config, transport, dedup, tracker and dispatcher into a
// running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"issuebot/internal/config"
	"issuebot/internal/dedup"
	"issuebot/internal/dispatch"
	"issuebot/internal/eventbus"
	"issuebot/internal/ops"
	rtsup "issuebot/internal/runtime/supervisor"
	"issuebot/internal/storage"
	kit "issuebot/internal/transport"
	logx "issuebot/pkg/logx"
)

// engineSections rebuild the dispatch engine when they change.
var engineSections = map[string]bool{
	"mention":        true,
	"usermap":        true,
	"formats":        true,
	"profiles":       true,
	"tracker.fields": true,
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store // nil for the in-memory dedup store

	adapter kit.Adapter
	window  *dedup.Window
	disp    *dispatch.Dispatcher
	ops     *ops.Service

	updates chan kit.Message
	started time.Time
}

// New loads and validates the config file and builds every component.
// Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", cfgPath, err)
	}

	bootLog := logx.NewConsole(cfg.Logging.Level)
	ad, err := newAdapter(cfg, bootLog)
	if err != nil {
		return nil, err
	}

	// The chat sink sends through the adapter; it stays quiet until the
	// adapter is started.
	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))

	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	var store storage.Store
	sc, persistent, err := mapStorageConfig(cfg)
	if err != nil {
		return fail(err)
	}
	if persistent {
		if store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
			return fail(err)
		}
		appLog.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}
	closeStore := func(err error) (*App, error) {
		if store != nil {
			_ = store.Close()
		}
		return fail(err)
	}

	dopts, err := mapDedupOptions(cfg, log.With(logx.String("comp", "dedup")))
	if err != nil {
		return closeStore(err)
	}
	var dstore dedup.Store
	if store != nil {
		dstore = store
	}
	window := dedup.New(dstore, dopts)

	client, err := NewTrackerClient(cfg, log.With(logx.String("comp", "tracker")))
	if err != nil {
		return closeStore(err)
	}

	engine, warnings, err := BuildEngine(cfg, nil)
	if err != nil {
		return closeStore(err)
	}
	for _, w := range warnings {
		appLog.Warn("format profile problem", logx.String("detail", w))
	}

	dcfg, buf, err := mapDispatchConfig(cfg)
	if err != nil {
		return closeStore(err)
	}
	bus := eventbus.New()
	disp, err := dispatch.New(dcfg, dispatch.Deps{
		Finder: client,
		Sender: ad,
		Window: window,
		Bus:    bus,
		Log:    log,
	}, engine)
	if err != nil {
		return closeStore(err)
	}

	opsCfg, err := mapOpsConfig(cfg)
	if err != nil {
		return closeStore(err)
	}

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		window:  window,
		disp:    disp,
		updates: make(chan kit.Message, buf),
	}
	a.ops = ops.New(opsCfg, a.health, log.With(logx.String("comp", "ops")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.started = time.Now()
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		_, _, err := BuildEngine(cfg, nil)
		return err
	})

	if err := a.window.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("dedup sweep: %w", err)
	}
	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("%s adapter: %w", a.adapter.Name(), err)
	}
	a.ops.Start(a.sup.Context())

	a.sup.Go("dispatch.loop", func(c context.Context) error {
		return a.disp.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(256)
	a.sup.Go0("eventbus.consume", func(c context.Context) {
		defer unsub()
		consumeEvents(c, events, a.store, a.log.With(logx.String("comp", "audit")))
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if iv, err := daemon.SdWatchdogEnabled(false); err == nil && iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			t := time.NewTicker(iv / 2)
			defer t.Stop()
			for {
				select {
				case <-c.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		})
	}
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}

	a.log.Info("app started",
		logx.String("platform", a.adapter.Name()),
		logx.Duration("dedup_window", a.window.Duration()),
		logx.String("ops", a.ops.Addr()),
	)
	return nil
}

// applyConfig swaps hot-reloadable state and flags sections that need a restart.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	rebuild := false
	for _, s := range sections {
		if config.RequiresRestart(s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
		if engineSections[s] {
			rebuild = true
		}
		if s == "logging" {
			a.logs.Apply(mapLogConfig(newCfg))
		}
	}

	if rebuild {
		engine, warnings, err := BuildEngine(newCfg, nil)
		if err != nil {
			// the validator already rejects this; keep the running engine
			a.log.Warn("engine rebuild failed; keeping previous", logx.Err(err))
		} else {
			for _, w := range warnings {
				a.log.Warn("format profile problem", logx.String("detail", w))
			}
			a.disp.Reload(engine)
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: sections})
	a.log.Info("config reloaded", fields...)
}

func (a *App) health(ctx context.Context) ops.Health {
	h := ops.Health{
		Status:      "ok",
		Platform:    a.adapter.Name(),
		Supervisors: map[string]rtsup.Counters{},
		BusDropped:  a.bus.Dropped(),
	}
	if !a.started.IsZero() {
		h.Uptime = time.Since(a.started).Truncate(time.Second).String()
	}
	if a.sup != nil {
		h.Supervisors["app"] = a.sup.Counters()
		if a.sup.Context().Err() != nil {
			h.Status = "stopping"
		}
	}
	h.Supervisors["dispatch"] = a.disp.Supervisor().Counters()
	if sp, ok := a.adapter.(interface{ Supervisor() *rtsup.Supervisor }); ok {
		if s := sp.Supervisor(); s != nil {
			h.Supervisors[a.adapter.Name()] = s.Counters()
		}
	}

	lctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	n, err := a.window.Store().Len(lctx)
	if err != nil {
		h.Status = "degraded"
	}
	h.Dedup = &ops.DedupHealth{Window: a.window.Duration().String(), Entries: n}
	return h
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Bounded shutdown step so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	// Adapter first: no new messages. Then in-flight notifications.
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("dispatch", 5*time.Second, a.disp.Close)
	step("dedup", time.Second, a.window.Stop)
	step("ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}
