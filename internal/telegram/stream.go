package telegram

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/llamagram/llamagram/internal/db"
)

// Cursor marks a streaming reply as still in progress.
const Cursor = " ▌"

// editFailureThreshold is the number of consecutive transient edit
// failures after which interval edits are suppressed for the message. The
// final edit is still attempted once.
const editFailureThreshold = 3

// DefaultEditInterval paces live edits below Telegram's per-chat edit rate
// limit.
const DefaultEditInterval = time.Second

// Streamer turns a fragment stream into a live-edited Telegram message:
// the first fragment posts a new message with a cursor marker, buffered
// content is folded into interval-paced edits, and stream exhaustion
// triggers one final cursor-free edit. Edits only ever grow the content.
type Streamer struct {
	Messenger Messenger
	Interval  time.Duration
	EmptyText string
	Recorder  *db.Recorder
}

// Run consumes fragments until the channel closes. It returns an error
// only on context cancellation; delivery failures degrade (suppressed
// edits, logged final state) instead of propagating.
func (s *Streamer) Run(ctx context.Context, chatID int64, fragments <-chan string) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultEditInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var (
		text       strings.Builder
		sent       bool
		messageID  int
		dirty      bool
		failures   int
		suppressed bool
	)

loop:
	for {
		select {
		case frag, ok := <-fragments:
			if !ok {
				break loop
			}
			text.WriteString(frag)
			dirty = true
			if !sent {
				id, err := s.Messenger.Send(ctx, chatID, text.String()+Cursor)
				if err != nil {
					// Retried when the next fragment arrives.
					log.Printf("stream initial send failed chat_id=%d: %v", chatID, err)
					continue
				}
				sent, messageID, dirty = true, id, false
			}

		case <-ticker.C:
			if !sent || !dirty || suppressed {
				continue
			}
			err := s.Messenger.Edit(ctx, chatID, messageID, text.String()+Cursor)
			switch {
			case err == nil, IsNotModified(err):
				dirty = false
				failures = 0
			case IsNotFound(err):
				log.Printf("stream message gone chat_id=%d message_id=%d, stopping edits", chatID, messageID)
				s.recordDegraded(chatID, messageID, "message_gone")
				drain(ctx, fragments)
				return nil
			default:
				failures++
				if failures >= editFailureThreshold {
					suppressed = true
					log.Printf("stream edits suppressed chat_id=%d message_id=%d after %d failures: %v",
						chatID, messageID, failures, err)
				}
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}

	final := text.String()
	if strings.TrimSpace(final) == "" {
		final = s.EmptyText
	}
	if !sent {
		if _, err := s.Messenger.Send(ctx, chatID, final); err != nil {
			log.Printf("stream final send failed chat_id=%d: %v", chatID, err)
			s.recordDegraded(chatID, 0, "final_send_failed")
		}
		return nil
	}
	if err := s.Messenger.Edit(ctx, chatID, messageID, final); err != nil && !IsNotModified(err) {
		// Delivered-degraded: the message stays at its last good edit.
		log.Printf("stream final edit failed chat_id=%d message_id=%d: %v", chatID, messageID, err)
		s.recordDegraded(chatID, messageID, "final_edit_failed")
	}
	return nil
}

func (s *Streamer) recordDegraded(chatID int64, messageID int, reason string) {
	s.Recorder.Log(nil, db.EventStreamDegraded, map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"reason":     reason,
	})
}

// drain consumes the rest of a fragment stream so the generator is never
// blocked on a reply nobody can see anymore.
func drain(ctx context.Context, fragments <-chan string) {
	for {
		select {
		case _, ok := <-fragments:
			if !ok {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
