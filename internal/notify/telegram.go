package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramSink sends notifications as Telegram messages to a fixed chat.
// The bot is send-only; no update polling is started.
type TelegramSink struct {
	bot    *tele.Bot
	chatID int64
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is not set")
	}
	// Send-only bot: no poller, Start() is never called.
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chatID: cfg.ChatID}, nil
}

func (s *TelegramSink) Notify(ctx context.Context, n Notification) error {
	// telebot sends are not context-aware; bound them with a deadline check
	// before and let the HTTP client timeout cover the call itself.
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	_, err := s.bot.Send(&tele.Chat{ID: s.chatID}, s.format(n), &tele.SendOptions{
		DisableWebPagePreview: true,
	})
	return err
}

func (s *TelegramSink) format(n Notification) string {
	if n.Body != "" {
		return n.Body
	}
	var b strings.Builder
	b.WriteString("⏰ ")
	b.WriteString(n.Title)
	b.WriteString("\ndue ")
	b.WriteString(n.DueAt.Format("Mon, 02 Jan 2006 15:04"))
	if d := time.Until(n.DueAt); d > 0 {
		b.WriteString(" (in ")
		b.WriteString(d.Round(time.Minute).String())
		b.WriteString(")")
	}
	return b.String()
}
