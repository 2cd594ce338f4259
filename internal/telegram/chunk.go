package telegram

import (
	"context"
	"strings"
	"time"
)

const (
	// ChunkSize stays well under Telegram's 4096-char message ceiling.
	ChunkSize = 3900
	// interChunkDelay preserves chunk ordering without tripping flood
	// limits.
	interChunkDelay = 500 * time.Millisecond
)

// SendChunked delivers text as one message, or as ordered ChunkSize-rune
// chunks when it exceeds the platform limit. Empty text is replaced with
// emptyText so the user always gets a reply.
func SendChunked(ctx context.Context, m Messenger, chatID int64, text, emptyText string) error {
	if strings.TrimSpace(text) == "" {
		text = emptyText
	}
	runes := []rune(text)
	for i := 0; i < len(runes); i += ChunkSize {
		end := i + ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if _, err := m.Send(ctx, chatID, string(runes[i:end])); err != nil {
			return err
		}
		if end < len(runes) {
			select {
			case <-time.After(interChunkDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}
