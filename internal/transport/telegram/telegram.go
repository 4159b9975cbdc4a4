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

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"pmbot/internal/transport"
	"pmbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration // default 10s
	RatePerSec  int           // outbound send limit, default 5
}

// Adapter bridges telebot to the transport contract.
type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	limiter *rate.Limiter

	runMu     sync.Mutex
	running   bool
	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the Telegram poll loop. Logged periodically to avoid per-update
	// log spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 5
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(perSec), perSec),
	}, nil
}

func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runWG.Add(2)
	a.runMu.Unlock()

	// Periodic summary for dropped updates.
	go func() {
		defer a.runWG.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-rctx.Done():
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
				return
			case <-ticker.C:
				if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
					a.log.Warn("incoming updates dropped (channel full)", logx.Any("count", n))
				}
			}
		}
	}()

	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		up := transport.Update{
			Message: &transport.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      m.Chat.Type != tele.ChatPrivate,
			},
		}
		select {
		case out <- up:
		default:
			atomic.AddUint64(&a.droppedUpdates, 1)
		}
		return nil
	})

	go func() {
		defer a.runWG.Done()
		a.bot.Start()
	}()

	// Stop the long poller when the context ends.
	go func() {
		<-rctx.Done()
		a.bot.Stop()
	}()

	a.log.Info("telegram adapter started")
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	if !a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = false
	cancel := a.runCancel
	a.runCancel = nil
	a.runMu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	a.log.Info("telegram adapter stopped")
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	return a.send(ctx, tele.ChatID(to.ChatID), text, opt)
}

func (a *Adapter) SendDirect(ctx context.Context, recipientID string, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(recipientID), 10, 64)
	if err != nil {
		// A mapping pointing at a non-numeric id is as undeliverable as a
		// blocked bot; let the caller escalate to fallback.
		return transport.MessageRef{}, transport.Unreachable(fmt.Errorf("invalid recipient id %q", recipientID))
	}
	return a.send(ctx, &tele.User{ID: id}, text, opt)
}

func (a *Adapter) Mention(recipientID string) string {
	id := strings.TrimSpace(recipientID)
	if _, err := strconv.ParseInt(id, 10, 64); err == nil {
		return fmt.Sprintf("[user](tg://user?id=%s)", id)
	}
	return "@" + id
}

func (a *Adapter) send(ctx context.Context, to tele.Recipient, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return transport.MessageRef{}, transport.Transient(err)
	}

	var sendOpt tele.SendOptions
	if opt != nil {
		sendOpt.ParseMode = opt.ParseMode
		sendOpt.DisableWebPagePreview = opt.DisablePreview
	}

	msg, err := a.bot.Send(to, text, &sendOpt)
	if err != nil {
		return transport.MessageRef{}, classify(err)
	}
	return transport.MessageRef{ChatID: msg.Chat.ID, MessageID: msg.ID}, nil
}

// classify maps telebot errors onto the transport taxonomy.
func classify(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return transport.Transient(err)
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == 403:
			// blocked the bot, never started it, or was deactivated
			return transport.Unreachable(err)
		case errors.Is(err, tele.ErrChatNotFound):
			return transport.Unreachable(err)
		case te.Code >= 500:
			return transport.Transient(err)
		default:
			return transport.Permanent(err)
		}
	}
	// Network-level failure; the platform may recover.
	return transport.Transient(err)
}
