package dispatch

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultTypingInterval stays under Telegram's ~5s chat-action expiry so
// the indicator never flickers off between refreshes.
const DefaultTypingInterval = 4500 * time.Millisecond

// TypingNotifier sends one transient typing signal to a chat.
type TypingNotifier interface {
	SendTyping(ctx context.Context, chatID int64) error
}

// Typing keeps a typing indicator alive per chat by re-sending the chat
// action on a fixed interval until stopped. Stopping is unconditional and
// safe to call whether or not an indicator is running.
type Typing struct {
	notifier TypingNotifier
	interval time.Duration

	mu     sync.Mutex
	active map[int64]context.CancelFunc
	wg     sync.WaitGroup
}

func NewTyping(notifier TypingNotifier, interval time.Duration) *Typing {
	if interval <= 0 {
		interval = DefaultTypingInterval
	}
	return &Typing{
		notifier: notifier,
		interval: interval,
		active:   make(map[int64]context.CancelFunc),
	}
}

// Start launches the refresh loop for the chat, replacing any loop already
// running for it.
func (t *Typing) Start(ctx context.Context, chatID int64) {
	loopCtx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if prev, ok := t.active[chatID]; ok {
		prev()
	}
	t.active[chatID] = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(loopCtx, chatID)
}

// Stop cancels the chat's refresh loop. Cancellation is observed at the
// loop's sleep point and swallowed, never propagated as an error.
func (t *Typing) Stop(chatID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.active[chatID]; ok {
		cancel()
		delete(t.active, chatID)
	}
}

// StopAll cancels every active refresh loop and waits for them to exit.
func (t *Typing) StopAll() {
	t.mu.Lock()
	for chatID, cancel := range t.active {
		cancel()
		delete(t.active, chatID)
	}
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Typing) run(ctx context.Context, chatID int64) {
	defer t.wg.Done()

	if err := t.notifier.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
		log.Printf("typing indicator send failed chat_id=%d: %v", chatID, err)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.notifier.SendTyping(ctx, chatID); err != nil && ctx.Err() == nil {
				log.Printf("typing indicator refresh failed chat_id=%d: %v", chatID, err)
			}
		}
	}
}
