package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeMessenger records every send and edit and serves scripted errors.
type fakeMessenger struct {
	mu      sync.Mutex
	sends   []string
	edits   []string
	nextID  int
	sendErr error
	editErr func(call int) error
}

func (f *fakeMessenger) Send(_ context.Context, _ int64, text string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sends = append(f.sends, text)
	f.nextID++
	return f.nextID, nil
}

func (f *fakeMessenger) Edit(_ context.Context, _ int64, _ int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		if err := f.editErr(len(f.edits)); err != nil {
			return err
		}
	}
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeMessenger) SendTyping(context.Context, int64) error { return nil }

func (f *fakeMessenger) snapshot() (sends, edits []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...), append([]string(nil), f.edits...)
}

func newStreamer(m Messenger) *Streamer {
	return &Streamer{Messenger: m, Interval: 10 * time.Millisecond, EmptyText: "(no response)"}
}

func feed(fragments ...string) <-chan string {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return ch
}

func TestStreamer_InitialSendCarriesCursorFinalDoesNot(t *testing.T) {
	m := &fakeMessenger{}
	s := newStreamer(m)

	ch := make(chan string)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), 1, ch) }()

	ch <- "Hel"
	ch <- "lo "
	ch <- "world"
	time.Sleep(50 * time.Millisecond)
	close(ch)

	if err := <-done; err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	sends, edits := m.snapshot()
	if len(sends) != 1 || !strings.HasSuffix(sends[0], Cursor) {
		t.Fatalf("initial send missing cursor: %v", sends)
	}
	if !strings.HasPrefix(sends[0], "Hel") {
		t.Fatalf("initial send should carry the first fragment: %q", sends[0])
	}
	if len(edits) == 0 {
		t.Fatal("expected at least the final edit")
	}
	final := edits[len(edits)-1]
	if final != "Hello world" {
		t.Fatalf("final edit = %q, want full text without cursor", final)
	}
	for _, e := range edits[:len(edits)-1] {
		if !strings.HasSuffix(e, Cursor) {
			t.Fatalf("intermediate edit missing cursor: %q", e)
		}
	}
}

func TestStreamer_VisibleContentOnlyGrows(t *testing.T) {
	m := &fakeMessenger{}
	s := newStreamer(m)

	ch := make(chan string)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), 1, ch) }()

	for _, frag := range []string{"a", "b", "c", "d"} {
		ch <- frag
		time.Sleep(15 * time.Millisecond)
	}
	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	sends, edits := m.snapshot()
	seen := append(sends, edits...)
	prev := ""
	for _, text := range seen {
		body := strings.TrimSuffix(text, Cursor)
		if !strings.HasPrefix(body, prev) {
			t.Fatalf("content shrank: %q then %q", prev, body)
		}
		prev = body
	}
}

func TestStreamer_EmptyStreamSendsPlaceholder(t *testing.T) {
	m := &fakeMessenger{}
	s := newStreamer(m)

	if err := s.Run(context.Background(), 1, feed()); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	sends, _ := m.snapshot()
	if len(sends) != 1 || sends[0] != "(no response)" {
		t.Fatalf("expected single placeholder send, got %v", sends)
	}
}

func TestStreamer_NotFoundStopsEditingAndDrains(t *testing.T) {
	m := &fakeMessenger{
		editErr: func(int) error { return fmt.Errorf("telegram editMessageText failed: message to edit not found") },
	}
	s := newStreamer(m)

	ch := make(chan string, 8)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), 1, ch) }()

	ch <- "first"
	time.Sleep(30 * time.Millisecond)
	for i := 0; i < 8; i++ {
		ch <- "more"
	}
	close(ch)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("not-found must terminate cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run hung instead of draining after not-found")
	}
	_, edits := m.snapshot()
	if len(edits) != 0 {
		t.Fatalf("edits recorded despite not-found: %v", edits)
	}
}

func TestStreamer_ConsecutiveFailuresSuppressEditsButNotFinal(t *testing.T) {
	var editCalls int
	m := &fakeMessenger{}
	m.editErr = func(int) error {
		editCalls++
		if editCalls <= editFailureThreshold {
			return fmt.Errorf("telegram editMessageText failed: 500")
		}
		return nil
	}
	s := newStreamer(m)

	ch := make(chan string)
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), 1, ch) }()

	ch <- "x"
	// Enough dirty intervals to burn through the failure threshold.
	for i := 0; i < editFailureThreshold+2; i++ {
		time.Sleep(25 * time.Millisecond)
		ch <- "y"
	}
	time.Sleep(30 * time.Millisecond)
	close(ch)
	if err := <-done; err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	_, edits := m.snapshot()
	if len(edits) != 1 {
		t.Fatalf("expected exactly the final edit after suppression, got %v", edits)
	}
	if strings.HasSuffix(edits[0], Cursor) {
		t.Fatalf("final edit kept the cursor: %q", edits[0])
	}
}

func TestStreamer_CancelledContextReturnsError(t *testing.T) {
	m := &fakeMessenger{}
	s := newStreamer(m)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan string)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, 1, ch) }()

	ch <- "x"
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}
