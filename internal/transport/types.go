package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

func (t ChatTarget) String() string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%d/%d", t.ChatID, t.ThreadID)
	}
	return strconv.FormatInt(t.ChatID, 10)
}

// ParseChatTarget parses "<chat_id>" or "<chat_id>/<thread_id>".
func ParseChatTarget(raw string) (ChatTarget, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ChatTarget{}, fmt.Errorf("chat id is empty")
	}
	chatPart, threadPart, hasThread := strings.Cut(s, "/")
	chatID, err := strconv.ParseInt(strings.TrimSpace(chatPart), 10, 64)
	if err != nil {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q", raw)
	}
	if chatID == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q: must be non-zero", raw)
	}
	t := ChatTarget{ChatID: chatID}
	if hasThread {
		th, err := strconv.Atoi(strings.TrimSpace(threadPart))
		if err != nil || th < 0 {
			return ChatTarget{}, fmt.Errorf("invalid thread id in %q", raw)
		}
		t.ThreadID = th
	}
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string // "HTML" or "" (plain)
	DisablePreview bool
}

// Sender delivers text to a chat. Implementations must honor ctx cancellation.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
