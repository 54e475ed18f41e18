// Package telegram forwards urgent escalations to a counselors' Telegram chat.
package telegram

import (
	"campuscare/backend/internal/logger"
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLength is Telegram's limit for a text message.
const maxMessageLength = 4096

// Sender is the part of the bot API used to deliver alerts.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter sends urgent alerts to one configured chat.
type Alerter struct {
	sender Sender
	chatID int64
	log    *logger.Logger
}

// NewAlerter authorizes the bot. It returns nil, nil when token is empty so alerts stay disabled.
func NewAlerter(token string, chatID int64, log *logger.Logger) (*Alerter, error) {
	if token == "" {
		return nil, nil
	}
	if chatID == 0 {
		return nil, errors.New("telegram alert chat id is required when a bot token is set")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	if log != nil {
		log.Info("Telegram alerts enabled", "bot", bot.Self.UserName)
	}
	return NewAlerterWithSender(bot, chatID, log), nil
}

// NewAlerterWithSender builds an Alerter around an existing sender.
func NewAlerterWithSender(sender Sender, chatID int64, log *logger.Logger) *Alerter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Alerter{sender: sender, chatID: chatID, log: log}
}

// SendAlert posts the alert as plain text.
func (a *Alerter) SendAlert(ctx context.Context, title, message string) error {
	if a == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(a.chatID, formatAlert(title, message))
	if _, err := a.sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram alert: %w", err)
	}
	a.log.Debug("Telegram alert sent", "chat_id", a.chatID)
	return nil
}

func formatAlert(title, message string) string {
	text := "🚨 " + strings.TrimSpace(title)
	if m := strings.TrimSpace(message); m != "" {
		text += "\n\n" + m
	}
	if r := []rune(text); len(r) > maxMessageLength {
		text = string(r[:maxMessageLength-1]) + "…"
	}
	return text
}
