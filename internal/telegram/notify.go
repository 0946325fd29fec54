// Package telegram delivers one-off notification messages.
package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier sends messages to one Telegram chat.
type Notifier struct {
	token  string
	chatID int64
}

// NewNotifier creates a Notifier. An empty token or zero chat id yields a
// notifier whose sends are silent no-ops.
func NewNotifier(token string, chatID int64) *Notifier {
	return &Notifier{token: strings.TrimSpace(token), chatID: chatID}
}

// Enabled reports whether the notifier has a destination.
func (n *Notifier) Enabled() bool {
	return n.token != "" && n.chatID != 0
}

// Send delivers one Markdown message. A fresh bot client per send keeps
// the notifier stateless; usage alerts are far too infrequent for the
// extra handshake to matter.
func (n *Notifier) Send(text string) error {
	if !n.Enabled() || strings.TrimSpace(text) == "" {
		return nil
	}

	bot, err := tgbotapi.NewBotAPI(n.token)
	if err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = "Markdown"
	_, err = bot.Send(msg)
	return err
}
