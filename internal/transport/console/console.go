// Package console is a Sender that prints messages instead of delivering
// them. It backs --dry-run.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"trendwatch/internal/transport"
)

type Sender struct {
	mu  sync.Mutex
	out io.Writer
	seq int
}

var _ transport.Sender = (*Sender)(nil)

func New(out io.Writer) *Sender { return &Sender{out: out} }

func (s *Sender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return transport.MessageRef{}, err
		}
	}
	mode := "plain"
	if opt != nil && opt.ParseMode != "" {
		mode = opt.ParseMode
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if _, err := fmt.Fprintf(s.out, "--- to=%s mode=%s #%d\n%s\n", to, mode, s.seq, text); err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: s.seq}, nil
}
