// Package telegram adapts the bot's reply pipeline to the Telegram Bot
// API: plain and chunked sends, live-edited streaming replies, and typing
// chat actions.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Messenger is the delivery surface the reply pipeline needs. Tests
// substitute a fake; production uses Bot.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string) error
	SendTyping(ctx context.Context, chatID int64) error
}

// Bot implements Messenger over go-telegram/bot.
type Bot struct {
	api *tgbot.Bot
}

func NewBot(api *tgbot.Bot) *Bot {
	return &Bot{api: api}
}

// Send posts a new message and returns its message ID.
func (b *Bot) Send(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := b.api.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	return msg.ID, nil
}

// Edit replaces the text of an existing message.
func (b *Bot) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := b.api.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("telegram editMessageText failed: %w", err)
	}
	return nil
}

// SendTyping shows the transient "typing…" indicator in the chat. Telegram
// expires it after a few seconds; callers refresh it on an interval.
func (b *Bot) SendTyping(ctx context.Context, chatID int64) error {
	_, err := b.api.SendChatAction(ctx, &tgbot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	if err != nil {
		return fmt.Errorf("telegram sendChatAction failed: %w", err)
	}
	return nil
}

// IsNotFound reports whether an edit failed because the underlying message
// no longer exists (deleted by the user or too old). Further edits to the
// message are pointless.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "message to edit not found") ||
		strings.Contains(msg, "message can't be edited") ||
		strings.Contains(msg, "message_id_invalid")
}

// IsNotModified reports the benign "new content equals current content"
// rejection, which callers treat as success.
func IsNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}
