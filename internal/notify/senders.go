package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "reportd/pkg/logx"
)

// LogSender writes notifications to the log.
type LogSender struct {
	Log logx.Logger
}

func (LogSender) Name() string { return "log" }

func (s LogSender) Send(_ context.Context, text string) error {
	s.Log.Info("run notification", logx.String("text", text))
	return nil
}

// TelegramSender posts notifications to one chat.
type TelegramSender struct {
	bot  *tele.Bot
	chat tele.ChatID
}

// NewTelegram builds a send-only bot. No poller is started.
func NewTelegram(token string, chatID int64) (*TelegramSender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b, chat: tele.ChatID(chatID)}, nil
}

func (*TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, text string) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	_, err := s.bot.Send(s.chat, text, &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true})
	return err
}
