// Package alert sends optional operator notifications. A nil or
// unconfigured Notifier is a no-op, so callers never guard their calls.
package alert

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gridsim/logger"
)

// Notifier pushes messages to a Telegram chat
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewNotifier creates a Telegram notifier. An empty token disables it.
func NewNotifier(token string, chatID int64) *Notifier {
	if token == "" || chatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Warnf("⚠️ Telegram notifier disabled: %v", err)
		return nil
	}
	logger.Infof("✅ Telegram notifier enabled (@%s)", bot.Self.UserName)
	return &Notifier{bot: bot, chatID: chatID}
}

// Notify sends a message; failures are logged, never propagated
func (n *Notifier) Notify(text string) {
	if n == nil || n.bot == nil {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		logger.Warnf("⚠️ Telegram send failed: %v", err)
	}
}
