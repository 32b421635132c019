// Package slack is the Slack transport: Socket Mode events in, attachments out.
package slack

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	rtsup "issuebot/internal/runtime/supervisor"
	kit "issuebot/internal/transport"
	logx "issuebot/pkg/logx"
)

const Platform = "slack"

type Config struct {
	BotToken string // xoxb-...
	AppToken string // xapp-...
	Debug    bool
	// APIURL overrides the Web API base URL (must end with "/").
	APIURL string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	api *slack.Client
	sm  *socketmode.Client

	botUserID atomic.Value // string
	out       atomic.Value // stores (chan<- kit.Message)
	runMu     sync.Mutex
	running   bool
	sup       *rtsup.Supervisor

	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("slack bot token is empty")
	}
	if !strings.HasPrefix(cfg.AppToken, "xapp-") {
		return nil, errors.New("slack app token must start with xapp-")
	}
	opts := []slack.Option{
		slack.OptionDebug(cfg.Debug),
		slack.OptionAppLevelToken(cfg.AppToken),
	}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(cfg.APIURL))
	}
	api := slack.New(cfg.BotToken, opts...)

	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg: cfg,
		log: log,
		api: api,
		sm:  socketmode.New(api, socketmode.OptionDebug(cfg.Debug)),
	}
	a.botUserID.Store("")
	var nilOut chan<- kit.Message
	a.out.Store(nilOut)
	return a, nil
}

func (a *Adapter) Name() string { return Platform }

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Message) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}

	auth, err := a.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth: %w", err)
	}
	a.botUserID.Store(auth.UserID)
	a.log.Info("slack authenticated", logx.String("team", auth.Team), logx.String("bot_user", auth.UserID))

	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "slack.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup

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

	sup.Go0("socketmode.events", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case evt, ok := <-a.sm.Events:
				if !ok {
					return
				}
				a.handleEvent(evt)
			}
		}
	})

	sup.GoRestart("socketmode.run", func(c context.Context) error {
		return a.sm.RunContext(c)
	}, rtsup.WithRestartBackoff(time.Second, 30*time.Second))

	return nil
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
	if err := sup.Stop(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("slack stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("slack stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) handleEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		a.log.Debug("socket mode connecting")
	case socketmode.EventTypeConnected:
		a.log.Info("socket mode connected")
	case socketmode.EventTypeConnectionError:
		a.log.Warn("socket mode connection error", logx.Any("data", evt.Data))
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			a.sm.Ack(*evt.Request)
		}
		ev, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		botUser, _ := a.botUserID.Load().(string)
		if msg, ok := toMessage(ev, botUser); ok {
			a.forward(msg)
		}
	}
}

// toMessage maps an Events API callback. app_mention and direct messages are
// mentions. Channel messages that mention the bot are skipped because the
// matching app_mention carries them.
func toMessage(ev slackevents.EventsAPIEvent, botUserID string) (kit.Message, bool) {
	if ev.Type != slackevents.CallbackEvent {
		return kit.Message{}, false
	}
	switch e := ev.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if e.BotID != "" || strings.TrimSpace(e.Text) == "" {
			return kit.Message{}, false
		}
		return kit.Message{
			Platform:       Platform,
			Kind:           kit.EventMention,
			ConversationID: e.Channel,
			ThreadID:       e.ThreadTimeStamp,
			MessageID:      e.TimeStamp,
			UserID:         e.User,
			Text:           e.Text,
		}, true

	case *slackevents.MessageEvent:
		if e.BotID != "" || e.SubType != "" || e.User == "" || e.User == botUserID || strings.TrimSpace(e.Text) == "" {
			return kit.Message{}, false
		}
		kind := kit.EventMessage
		if e.ChannelType == "im" {
			kind = kit.EventMention
		} else if botUserID != "" && strings.Contains(e.Text, "<@"+botUserID+">") {
			return kit.Message{}, false
		}
		return kit.Message{
			Platform:       Platform,
			Kind:           kind,
			ConversationID: e.Channel,
			ThreadID:       e.ThreadTimeStamp,
			MessageID:      e.TimeStamp,
			UserID:         e.User,
			Text:           e.Text,
		}, true
	}
	return kit.Message{}, false
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

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string) error {
	return a.post(ctx, to, slack.MsgOptionText(escapeText(text), false))
}

func (a *Adapter) SendAttachment(ctx context.Context, to kit.ChatTarget, att kit.Attachment, _ kit.SendOptions) error {
	// Thread placement is already carried by to.ThreadID.
	return a.post(ctx, to, slack.MsgOptionAttachments(toSlackAttachment(att)))
}

func (a *Adapter) post(ctx context.Context, to kit.ChatTarget, opts ...slack.MsgOption) error {
	if strings.TrimSpace(to.ConversationID) == "" {
		return errors.New("slack: empty conversation id")
	}
	if to.ThreadID != "" {
		opts = append(opts, slack.MsgOptionTS(to.ThreadID))
	}
	if _, _, err := a.api.PostMessageContext(ctx, to.ConversationID, opts...); err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	return nil
}
