// Package telegram delivers notifications through the Telegram Bot API.
//
// The adapter is send-only: it never starts long polling, so several
// processes may share one bot token.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"trendwatch/internal/transport"
	logx "trendwatch/pkg/logx"
)

type Config struct {
	Token string
	// RequestTimeout bounds every Bot API HTTP call.
	RequestTimeout time.Duration
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL string
}

type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

var _ transport.Sender = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// SendText sends text, splitting it into several messages when it exceeds
// Telegram's limit. The returned ref points at the first message. A failure
// after the first chunk went out is permanent.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}

	chunks := splitText(text, textLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}
	sendOpt := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}

	var first transport.MessageRef
	for i, chunk := range chunks {
		msg, err := a.send(ctx, chat, chunk, sendOpt)
		if err != nil && i > 0 {
			// a retry would resend the chunks already delivered
			return first, transport.Permanent(fmt.Errorf("partial delivery, %d of %d chunks sent: %w", i, len(chunks), err))
		}
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
		if len(chunks) > 1 {
			a.log.Debug("chunk sent", logx.Int("index", i), logx.Int("chunks", len(chunks)), logx.Int64("chat_id", to.ChatID))
		}
	}
	return first, nil
}

// send runs one Bot API call and gives up when ctx ends. telebot has no
// context support; the abandoned call is still bounded by the HTTP client
// timeout.
func (a *Adapter) send(ctx context.Context, chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := a.bot.Send(chat, text, opt)
		done <- result{msg: msg, err: err}
	}()
	select {
	case r := <-done:
		return r.msg, classify(r.err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// classify tags Bot API errors so the dispatcher knows whether and when to
// retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return transport.RetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	switch {
	case errors.Is(err, tele.ErrChatNotFound),
		errors.Is(err, tele.ErrBlockedByUser),
		errors.Is(err, tele.ErrUnauthorized):
		return transport.Permanent(err)
	}
	return err
}
