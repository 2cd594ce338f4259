package chat

import "sync"

// Store owns per-user conversation history. Entries are created lazily on
// first append and live for the process lifetime unless cleared or
// discarded. All state is in-memory; nothing survives a restart.
type Store struct {
	mu            sync.Mutex
	historyLimit  int
	conversations map[int64][]Turn
}

// NewStore creates a session store that keeps at most historyLimit
// user/assistant exchanges (historyLimit*2 turns) per user.
func NewStore(historyLimit int) *Store {
	return &Store{
		historyLimit:  historyLimit,
		conversations: make(map[int64][]Turn),
	}
}

// History returns a copy of the stored history for the user, oldest turn
// first. Unknown users get an empty slice.
func (s *Store) History(userID int64) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.conversations[userID]
	out := make([]Turn, len(stored))
	copy(out, stored)
	return out
}

// AppendAndTrim appends the user and assistant turns in order, then keeps
// only the most recent historyLimit*2 turns. The append and trim are a
// single atomic step; concurrent readers never observe a half-appended
// exchange.
func (s *Store) AppendAndTrim(userID int64, userTurn, assistantTurn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.conversations[userID], userTurn, assistantTurn)
	max := s.historyLimit * 2
	if len(history) > max {
		history = history[len(history)-max:]
	}
	s.conversations[userID] = history
}

// Clear removes the user's entry entirely and reports whether one existed.
func (s *Store) Clear(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[userID]; !ok {
		return false
	}
	delete(s.conversations, userID)
	return true
}

// Discard removes the user's entry unconditionally. Idempotent; used to
// roll back after a failed generation.
func (s *Store) Discard(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, userID)
}
