package control

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second)
	now := time.Now()

	for i := 0; i < 2; i++ {
		cb.RecordFailure("inference_api", now)
	}
	if cb.State() != CircuitClosed {
		t.Fatal("opened before threshold")
	}
	cb.RecordFailure("inference_api", now)
	if cb.State() != CircuitOpen {
		t.Fatal("did not open at threshold")
	}
	if cb.OpenedClass() != "inference_api" {
		t.Fatalf("opened class = %s", cb.OpenedClass())
	}
	if cb.Allow(now.Add(time.Second)) {
		t.Fatal("allowed work while open")
	}
}

func TestCircuitBreaker_FailuresCountPerClass(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second)
	now := time.Now()

	cb.RecordFailure("timeout", now)
	cb.RecordFailure("inference_api", now)
	cb.RecordFailure("timeout", now)
	if cb.State() != CircuitClosed {
		t.Fatal("mixed classes must not trip the breaker")
	}
	cb.RecordFailure("timeout", now)
	if cb.State() != CircuitOpen {
		t.Fatal("third timeout failure must open the breaker")
	}
}

func TestCircuitBreaker_HalfOpenProbeAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Second)
	now := time.Now()
	cb.RecordFailure("timeout", now)

	if cb.Allow(now.Add(5 * time.Second)) {
		t.Fatal("allowed before cooldown elapsed")
	}
	if !cb.Allow(now.Add(10 * time.Second)) {
		t.Fatal("probe not allowed after cooldown")
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %s, want half_open", cb.State())
	}
}

func TestCircuitBreaker_ProbeOutcomeSettlesState(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Second)
	now := time.Now()
	cb.RecordFailure("timeout", now)
	cb.Allow(now.Add(10 * time.Second))

	cb.RecordFailure("timeout", now.Add(11*time.Second))
	if cb.State() != CircuitOpen {
		t.Fatal("failed probe must reopen immediately")
	}

	cb.Allow(now.Add(25 * time.Second))
	cb.RecordSuccess()
	if cb.State() != CircuitClosed {
		t.Fatal("successful probe must close the breaker")
	}
	if cb.OpenedClass() != "" {
		t.Fatal("opened class survived recovery")
	}
	if !cb.Allow(now.Add(26 * time.Second)) {
		t.Fatal("closed breaker must allow work")
	}
}

func TestCircuitBreaker_SuccessResetsFailureCounts(t *testing.T) {
	cb := NewCircuitBreaker(3, 30*time.Second)
	now := time.Now()

	cb.RecordFailure("timeout", now)
	cb.RecordFailure("timeout", now)
	cb.RecordSuccess()
	cb.RecordFailure("timeout", now)
	if cb.State() != CircuitClosed {
		t.Fatal("counts must reset on success")
	}
}
