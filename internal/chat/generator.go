package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llamagram/llamagram/internal/control"
	"github.com/llamagram/llamagram/internal/db"
)

// ErrorMarker prefixes the single terminal fragment emitted when a
// generation fails. Callers must treat such a fragment as terminal; it is
// never appended to history.
const ErrorMarker = "⚠️ "

// fragmentBuffer bounds the fragment channel so a slow consumer applies
// backpressure to the inference stream instead of buffering unboundedly.
const fragmentBuffer = 16

// Completer produces a streamed completion for an ordered prompt, invoking
// onFragment for each text fragment in production order.
type Completer interface {
	Complete(ctx context.Context, turns []Turn, onFragment func(string) error) error
}

// Request describes one inbound user message. Ephemeral; never persisted.
type Request struct {
	UserID      int64
	DisplayName string
	Text        string
}

// Generator assembles prompts from stored history, drives the inference
// stream, and settles history based on the outcome: success appends the
// user/assistant pair, any failure discards the user's history entirely
// and surfaces one marked terminal fragment instead of an error.
type Generator struct {
	Store     *Store
	Completer Completer
	Assembler *Assembler
	Breaker   *control.CircuitBreaker
	Recorder  *db.Recorder
	Timeout   time.Duration
	FullLog   bool
}

// Generate returns a bounded channel of text fragments for the given
// request. The channel is closed when the stream is exhausted; a fragment
// beginning with ErrorMarker is terminal. The caller must hold the user's
// dispatch lock: no other generation may mutate this user's history while
// the returned channel is open.
func (g *Generator) Generate(ctx context.Context, req Request) <-chan string {
	out := make(chan string, fragmentBuffer)
	go g.run(ctx, req, out)
	return out
}

func (g *Generator) run(ctx context.Context, req Request, out chan<- string) {
	defer close(out)

	genID := uuid.NewString()

	if g.Breaker != nil && !g.Breaker.Allow(time.Now()) {
		g.Recorder.Log(nil, db.EventGenerationRejected, map[string]any{
			"generation_id": genID,
			"user_id":       req.UserID,
			"error_class":   g.Breaker.OpenedClass(),
		})
		emit(ctx, out, ErrorMarker+"the model is unavailable right now, please try again shortly")
		return
	}

	history := g.Store.History(req.UserID)
	turns := g.Assembler.Assemble(req.DisplayName, history, req.Text)
	est, over := g.Assembler.OverBudget(turns)
	if over {
		log.Printf("prompt over context budget user_id=%d estimated_tokens=%d n_ctx=%d",
			req.UserID, est, g.Assembler.ContextWindow)
	}
	assembledID := g.Recorder.Log(nil, db.EventContextAssembled, map[string]any{
		"generation_id":    genID,
		"user_id":          req.UserID,
		"history_turns":    len(history),
		"prompt_turns":     len(turns),
		"estimated_tokens": est,
		"over_budget":      over,
	})

	if g.Breaker != nil && g.Breaker.State() == control.CircuitHalfOpen {
		g.Recorder.Log(&assembledID, db.EventCircuitHalfOpen, map[string]any{
			"generation_id": genID,
		})
	}

	eventID := g.Recorder.Log(&assembledID, db.EventGenerationStarted, map[string]any{
		"generation_id": genID,
		"user_id":       req.UserID,
	})
	if g.FullLog {
		log.Printf("generation started id=%s user_id=%d prompt_turns=%d", genID, req.UserID, len(turns))
	}

	// The timeout applies to inference only; the terminal error fragment is
	// emitted against the parent context so a timed-out generation still
	// reports itself to the user.
	parent := ctx
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	var full strings.Builder
	fragments := 0
	started := time.Now()
	err := g.Completer.Complete(ctx, turns, func(frag string) error {
		full.WriteString(frag)
		fragments++
		select {
		case out <- frag:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		g.Store.Discard(req.UserID)
		errClass := classifyError(err)
		if g.Breaker != nil {
			recordBreakerFailure(g.Breaker, g.Recorder, errClass)
		}
		g.Recorder.Log(&eventID, db.EventGenerationFailed, map[string]any{
			"generation_id": genID,
			"user_id":       req.UserID,
			"error_class":   errClass,
			"error":         truncate(err.Error(), 500),
			"fragments":     fragments,
		})
		log.Printf("generation failed id=%s user_id=%d class=%s: %v", genID, req.UserID, errClass, err)
		emit(parent, out, ErrorMarker+"generation failed ("+errClass+"); your conversation history was reset")
		return
	}

	if g.Breaker != nil {
		recordBreakerSuccess(g.Breaker, g.Recorder)
	}
	// An empty completion is a valid outcome; the pair is stored with an
	// empty assistant turn.
	g.Store.AppendAndTrim(req.UserID,
		Turn{Role: RoleUser, Content: req.Text},
		Turn{Role: RoleAssistant, Content: full.String()},
	)
	g.Recorder.Log(&eventID, db.EventGenerationCompleted, map[string]any{
		"generation_id": genID,
		"user_id":       req.UserID,
		"fragments":     fragments,
		"chars":         full.Len(),
		"latency_ms":    time.Since(started).Milliseconds(),
	})
	if g.FullLog {
		log.Printf("generation completed id=%s user_id=%d fragments=%d chars=%d",
			genID, req.UserID, fragments, full.Len())
	}
}

// emit delivers the terminal error fragment without blocking past
// cancellation; a consumer that already went away loses nothing.
func emit(ctx context.Context, out chan<- string, msg string) {
	select {
	case out <- msg:
	case <-ctx.Done():
	}
}

func recordBreakerFailure(breaker *control.CircuitBreaker, recorder *db.Recorder, errClass string) {
	prev := breaker.State()
	breaker.RecordFailure(errClass, time.Now())
	if prev != control.CircuitOpen && breaker.State() == control.CircuitOpen {
		recorder.Log(nil, db.EventCircuitOpened, map[string]any{
			"error_class":      errClass,
			"threshold":        breaker.Threshold,
			"cooldown_seconds": int(breaker.Cooldown.Seconds()),
		})
	}
}

func recordBreakerSuccess(breaker *control.CircuitBreaker, recorder *db.Recorder) {
	if breaker.State() != control.CircuitClosed {
		recorder.Log(nil, db.EventCircuitClosed, map[string]any{"recovered": true})
	}
	breaker.RecordSuccess()
}

func classifyError(err error) string {
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "llama"), strings.Contains(msg, "model"), strings.Contains(msg, "completion"):
		return "inference_api"
	default:
		return "unknown"
	}
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
