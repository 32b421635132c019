// Package telegram is the Telegram transport: long polling in, HTML messages out.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "issuebot/internal/runtime/supervisor"
	kit "issuebot/internal/transport"
	logx "issuebot/pkg/logx"
)

const Platform = "telegram"

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // stores (chan<- kit.Message)
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop, the drop reporter and the stop watcher.
	// It is created on Start() and cancelled on Stop().
	sup *rtsup.Supervisor

	// droppedUpdates counts messages dropped because the dispatcher was slower
	// than the poll loop. Logged periodically instead of per message.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Name() string { return Platform }

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel. Start() may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if msg, ok := toMessage(c.Message(), a.bot.Me); ok {
			a.forward(msg)
		}
		return nil
	})
}

// toMessage maps a telebot message. Private chats, "@botname" in the text and
// replies to the bot count as mentions. Messages from bots are ignored.
func toMessage(m *tele.Message, me *tele.User) (kit.Message, bool) {
	if m == nil || m.Chat == nil || strings.TrimSpace(m.Text) == "" {
		return kit.Message{}, false
	}
	if m.Sender != nil && m.Sender.IsBot {
		return kit.Message{}, false
	}

	msg := kit.Message{
		Platform:       Platform,
		Kind:           kit.EventMessage,
		ConversationID: strconv.FormatInt(m.Chat.ID, 10),
		MessageID:      strconv.Itoa(m.ID),
		Text:           m.Text,
	}
	if m.ThreadID != 0 {
		msg.ThreadID = strconv.Itoa(m.ThreadID)
	}
	if m.Sender != nil {
		msg.UserID = strconv.FormatInt(m.Sender.ID, 10)
		msg.Username = m.Sender.Username
	}

	switch {
	case m.Chat.Type == tele.ChatPrivate:
		msg.Kind = kit.EventMention
	case me != nil && me.Username != "" && strings.Contains(strings.ToLower(m.Text), "@"+strings.ToLower(me.Username)):
		msg.Kind = kit.EventMention
	case me != nil && m.ReplyTo != nil && m.ReplyTo.Sender != nil && m.ReplyTo.Sender.ID == me.ID:
		msg.Kind = kit.EventMention
	}
	return msg, true
}

func (a *Adapter) forward(msg kit.Message) {
	out, _ := a.out.Load().(chan<- kit.Message)
	if out == nil {
		return
	}
	select {
	case out <- msg:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		// adapter errors should not take down the whole app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming messages dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until bot.Stop. Returning early while the context is
	// alive is a failure and gets restarted.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started", logx.String("bot", a.botName()))
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))

	return nil
}

func (a *Adapter) botName() string {
	if a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_pending", atomic.LoadUint64(&a.droppedUpdates)))
	sup.Cancel()
	go a.bot.Stop()

	// Keep shutdown snappy even if getUpdates is still long-polling.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	return a.send(ctx, to, text, &tele.SendOptions{DisableWebPagePreview: true}, "")
}

func (a *Adapter) SendAttachment(ctx context.Context, to kit.ChatTarget, att kit.Attachment, opt kit.SendOptions) error {
	so := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}
	if opt.InThread && opt.ReplyTo != "" {
		id, err := strconv.Atoi(opt.ReplyTo)
		if err != nil {
			return fmt.Errorf("telegram: reply_to %q: %w", opt.ReplyTo, err)
		}
		so.ReplyTo = &tele.Message{ID: id}
		// An in-thread reply outside a forum topic carries the message id as
		// its thread; Telegram only understands topic ids there.
		if to.ThreadID == opt.ReplyTo {
			to.ThreadID = ""
		}
	}
	return a.send(ctx, to, renderAttachment(att), so, tele.ModeHTML)
}

func (a *Adapter) send(ctx context.Context, to kit.ChatTarget, text string, so *tele.SendOptions, parseMode tele.ParseMode) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(to.ConversationID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: conversation id %q: %w", to.ConversationID, err)
	}
	if to.ThreadID != "" {
		tid, err := strconv.Atoi(to.ThreadID)
		if err != nil {
			return fmt.Errorf("telegram: thread id %q: %w", to.ThreadID, err)
		}
		so.ThreadID = tid
	}

	chat := &tele.Chat{ID: chatID}
	for i, chunk := range splitTelegramText(text, telegramTextLimit, string(parseMode)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		opts := *so
		if i > 0 {
			// only the first chunk is the reply
			opts.ReplyTo = nil
		}
		if _, err := a.bot.Send(chat, chunk, &opts); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}
