// Package bot wires inbound Telegram updates to the generation pipeline:
// per-user gating, typing indicators, and streamed or chunked delivery.
package bot

import (
	"context"
	"log"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/llamagram/llamagram/internal/chat"
	"github.com/llamagram/llamagram/internal/config"
	"github.com/llamagram/llamagram/internal/db"
	"github.com/llamagram/llamagram/internal/dispatch"
	"github.com/llamagram/llamagram/internal/telegram"
)

// emptyReply is delivered when the model produces an empty completion, so
// a reply is never silently omitted.
const emptyReply = "(no response)"

// Bot handles Telegram updates. All conversation state lives in the
// session store; the bot itself is stateless per update.
type Bot struct {
	cfg       config.BotConfig
	store     *chat.Store
	generator *chat.Generator
	gate      *dispatch.Gate
	typing    *dispatch.Typing
	messenger telegram.Messenger
	streamer  *telegram.Streamer
	recorder  *db.Recorder
}

func New(
	cfg config.BotConfig,
	store *chat.Store,
	generator *chat.Generator,
	gate *dispatch.Gate,
	typing *dispatch.Typing,
	messenger telegram.Messenger,
	recorder *db.Recorder,
) *Bot {
	return &Bot{
		cfg:       cfg,
		store:     store,
		generator: generator,
		gate:      gate,
		typing:    typing,
		messenger: messenger,
		streamer: &telegram.Streamer{
			Messenger: messenger,
			Interval:  cfg.StreamEditInterval,
			EmptyText: emptyReply,
			Recorder:  recorder,
		},
		recorder: recorder,
	}
}

// HandleMessage is the default handler for non-command messages. The
// actual work runs in a per-message goroutine so the update loop stays
// free to service other users.
func (b *Bot) HandleMessage(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if !b.accepts(msg) {
		return
	}
	if b.cfg.FullLog {
		log.Printf("message from %s (user_id=%d): %s",
			displayName(msg.From), msg.From.ID, truncate(msg.Text, 200))
	}
	b.recorder.Log(nil, db.EventMessageReceived, map[string]any{
		"user_id": msg.From.ID,
		"chat_id": msg.Chat.ID,
		"chars":   len(msg.Text),
	})
	go b.process(ctx, msg)
}

// process runs one generation under the user's dispatch lock. Lock order
// is fixed everywhere: per-user gate first, then the shared inference
// backend inside the generator.
func (b *Bot) process(ctx context.Context, msg *models.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	b.gate.WithUserLock(userID, func() {
		req := chat.Request{
			UserID:      userID,
			DisplayName: displayName(msg.From),
			Text:        msg.Text,
		}

		if b.cfg.StreamMode {
			// Streaming mode relies on live edits as the liveness
			// signal; no typing indicator.
			fragments := b.generator.Generate(ctx, req)
			if err := b.streamer.Run(ctx, chatID, fragments); err != nil {
				log.Printf("stream delivery aborted chat_id=%d: %v", chatID, err)
				return
			}
			b.recorder.Log(nil, db.EventReplySent, map[string]any{
				"user_id": userID,
				"chat_id": chatID,
				"mode":    "stream",
			})
			return
		}

		b.typing.Start(ctx, chatID)
		defer b.typing.Stop(chatID)

		var full strings.Builder
		for frag := range b.generator.Generate(ctx, req) {
			full.WriteString(frag)
		}
		if err := telegram.SendChunked(ctx, b.messenger, chatID, full.String(), emptyReply); err != nil {
			log.Printf("reply delivery failed chat_id=%d: %v", chatID, err)
			return
		}
		b.recorder.Log(nil, db.EventReplySent, map[string]any{
			"user_id": userID,
			"chat_id": chatID,
			"mode":    "single",
			"chars":   full.Len(),
		})
	})
}

// HandleClear serves the clear command.
func (b *Bot) HandleClear(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if !b.accepts(msg) {
		return
	}
	cleared := b.store.Clear(msg.From.ID)
	b.recorder.Log(nil, db.EventHistoryCleared, map[string]any{
		"user_id": msg.From.ID,
		"existed": cleared,
	})
	reply := "ℹ️ No message history."
	if cleared {
		reply = "✅ Message history cleared."
	}
	if _, err := b.messenger.Send(ctx, msg.Chat.ID, reply); err != nil {
		log.Printf("clear reply failed chat_id=%d: %v", msg.Chat.ID, err)
	}
}

// HandlePing serves the ping command.
func (b *Bot) HandlePing(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
	msg := update.Message
	if !b.accepts(msg) {
		return
	}
	if _, err := b.messenger.Send(ctx, msg.Chat.ID, "🏓 Pong!"); err != nil {
		log.Printf("ping reply failed chat_id=%d: %v", msg.Chat.ID, err)
	}
}

// accepts filters updates the bot should ignore: non-text messages, other
// bots, and group chats when the only-DM restriction is on.
func (b *Bot) accepts(msg *models.Message) bool {
	if msg == nil || msg.From == nil || msg.From.IsBot {
		return false
	}
	if msg.Text == "" {
		return false
	}
	if b.cfg.OnlyDM && msg.Chat.Type != models.ChatTypePrivate {
		return false
	}
	return true
}

func displayName(u *models.User) string {
	if u == nil {
		return "user"
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return u.Username
	}
	return "user"
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
