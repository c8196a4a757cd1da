// Package alert notifies operators when fire-and-forget deliveries fail.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram sends operator alerts to a single configured chat. It is
// send-only; the bot never polls for updates.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

type TelegramConfig struct {
	Token  string
	ChatID string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	chatID, err := strconv.ParseInt(strings.TrimSpace(cfg.ChatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid alert chat ID %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	cfg.Logger.Info("telegram alerter connected", "username", bot.Self.UserName)

	return &Telegram{bot: bot, chatID: chatID, logger: cfg.Logger}, nil
}

// Alert delivers the message to the operator chat. Failures are logged and
// swallowed: alerting must never add a second failure to the one it reports.
func (t *Telegram) Alert(_ context.Context, message string) {
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("operator alert failed", "err", err)
	}
}
