package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/llamagram/llamagram/internal/control"
)

// fakeCompleter emits its fragments in order, then returns err.
type fakeCompleter struct {
	fragments []string
	err       error
	calls     int
}

func (f *fakeCompleter) Complete(_ context.Context, _ []Turn, onFragment func(string) error) error {
	f.calls++
	for _, frag := range f.fragments {
		if err := onFragment(frag); err != nil {
			return err
		}
	}
	return f.err
}

func newTestGenerator(store *Store, completer Completer) *Generator {
	return &Generator{
		Store:     store,
		Completer: completer,
		Assembler: &Assembler{SystemPrompt: "sys", HistoryLimit: 3},
	}
}

func collect(t *testing.T, out <-chan string) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case frag, ok := <-out:
			if !ok {
				return got
			}
			got = append(got, frag)
		case <-timeout:
			t.Fatal("fragment channel never closed")
		}
	}
}

func TestGenerate_SuccessStreamsAndAppendsExchange(t *testing.T) {
	store := NewStore(3)
	g := newTestGenerator(store, &fakeCompleter{fragments: []string{"Hel", "lo ", "world"}})

	got := collect(t, g.Generate(context.Background(), Request{UserID: 1, DisplayName: "Alice", Text: "hi"}))
	if strings.Join(got, "") != "Hello world" {
		t.Fatalf("unexpected fragments: %v", got)
	}

	history := store.History(1)
	if len(history) != 2 {
		t.Fatalf("expected one stored exchange, got %d turns", len(history))
	}
	if history[0].Content != "hi" || history[1].Content != "Hello world" {
		t.Fatalf("unexpected stored exchange: %v", history)
	}
}

func TestGenerate_FailureDiscardsHistoryAndEmitsMarker(t *testing.T) {
	store := NewStore(3)
	store.AppendAndTrim(1, Turn{Role: RoleUser, Content: "old q"}, Turn{Role: RoleAssistant, Content: "old a"})
	g := newTestGenerator(store, &fakeCompleter{
		fragments: []string{"partial "},
		err:       fmt.Errorf("llama completion stream failed: connection reset"),
	})

	got := collect(t, g.Generate(context.Background(), Request{UserID: 1, Text: "hi"}))
	if len(got) != 2 {
		t.Fatalf("expected partial fragment plus terminal marker, got %v", got)
	}
	if got[0] != "partial " {
		t.Fatalf("lost pre-failure fragment: %v", got)
	}
	if !strings.HasPrefix(got[1], ErrorMarker) {
		t.Fatalf("terminal fragment not marked: %q", got[1])
	}
	if !strings.Contains(got[1], "inference_api") {
		t.Fatalf("terminal fragment missing error class: %q", got[1])
	}

	if len(store.History(1)) != 0 {
		t.Fatal("failed generation must discard the whole history, including prior exchanges")
	}
}

func TestGenerate_MarkerFragmentIsLastAndUnique(t *testing.T) {
	store := NewStore(3)
	g := newTestGenerator(store, &fakeCompleter{err: fmt.Errorf("boom")})

	got := collect(t, g.Generate(context.Background(), Request{UserID: 1, Text: "hi"}))
	marked := 0
	for _, frag := range got {
		if strings.HasPrefix(frag, ErrorMarker) {
			marked++
		}
	}
	if marked != 1 {
		t.Fatalf("expected exactly one marked fragment, got %d in %v", marked, got)
	}
	if !strings.HasPrefix(got[len(got)-1], ErrorMarker) {
		t.Fatalf("marked fragment is not terminal: %v", got)
	}
}

func TestGenerate_EmptyCompletionStoresEmptyAssistantTurn(t *testing.T) {
	store := NewStore(3)
	g := newTestGenerator(store, &fakeCompleter{})

	got := collect(t, g.Generate(context.Background(), Request{UserID: 1, Text: "hi"}))
	if len(got) != 0 {
		t.Fatalf("expected no fragments, got %v", got)
	}

	history := store.History(1)
	if len(history) != 2 {
		t.Fatalf("empty completion must still store the exchange, got %d turns", len(history))
	}
	if history[1].Role != RoleAssistant || history[1].Content != "" {
		t.Fatalf("unexpected assistant turn: %+v", history[1])
	}
}

func TestGenerate_TimeoutClassifiedAndRolledBack(t *testing.T) {
	store := NewStore(3)
	slow := completerFunc(func(ctx context.Context, _ []Turn, _ func(string) error) error {
		<-ctx.Done()
		return ctx.Err()
	})
	g := newTestGenerator(store, slow)
	g.Timeout = 10 * time.Millisecond

	got := collect(t, g.Generate(context.Background(), Request{UserID: 1, Text: "hi"}))
	if len(got) != 1 || !strings.Contains(got[0], "timeout") {
		t.Fatalf("expected one timeout-classed marker fragment, got %v", got)
	}
	if len(store.History(1)) != 0 {
		t.Fatal("timed-out generation must not be stored")
	}
}

func TestGenerate_OpenBreakerShortCircuits(t *testing.T) {
	store := NewStore(3)
	completer := &fakeCompleter{fragments: []string{"never"}}
	g := newTestGenerator(store, completer)
	g.Breaker = control.NewCircuitBreaker(1, time.Hour)
	g.Breaker.RecordFailure("inference_api", time.Now())

	got := collect(t, g.Generate(context.Background(), Request{UserID: 1, Text: "hi"}))
	if len(got) != 1 || !strings.HasPrefix(got[0], ErrorMarker) {
		t.Fatalf("expected a single marked rejection, got %v", got)
	}
	if completer.calls != 0 {
		t.Fatal("open breaker must not reach the backend")
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{fmt.Errorf("llama completion stream failed: eof"), "inference_api"},
		{fmt.Errorf("request deadline passed"), "timeout"},
		{fmt.Errorf("something else"), "unknown"},
	}
	for _, tc := range cases {
		if got := classifyError(tc.err); got != tc.want {
			t.Errorf("classifyError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

type completerFunc func(ctx context.Context, turns []Turn, onFragment func(string) error) error

func (f completerFunc) Complete(ctx context.Context, turns []Turn, onFragment func(string) error) error {
	return f(ctx, turns, onFragment)
}
