package tunnelmgr

import (
	"testing"
	"time"

	"github.com/gluk-w/miaoagent/internal/tunnelmodel"
)

func TestComputeBackoff(t *testing.T) {
	b := tunnelmodel.Backoff{BaseMs: 500, MaxMs: 30_000}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{6, 30_000 * time.Millisecond}, // 500<<6 = 32000, clamped to MaxMs
		{100, 30_000 * time.Millisecond},
	}

	for _, tt := range tests {
		got := computeBackoff(b, tt.attempt)
		if got != tt.want {
			t.Errorf("computeBackoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestComputeBackoffFloor(t *testing.T) {
	b := tunnelmodel.Backoff{BaseMs: 10, MaxMs: 30_000}
	got := computeBackoff(b, 0)
	if got != 200*time.Millisecond {
		t.Errorf("computeBackoff should floor at 200ms, got %v", got)
	}
}

func TestComputeBackoffShiftSaturatesAtSixteen(t *testing.T) {
	b := tunnelmodel.Backoff{BaseMs: 1, MaxMs: 1_000_000}
	atSixteen := computeBackoff(b, 16)
	atFifty := computeBackoff(b, 50)
	if atSixteen != atFifty {
		t.Errorf("shift should saturate at attempt 16: got %v at 16 and %v at 50", atSixteen, atFifty)
	}
}

// TestOnForwardingResetsAttemptOnNextFailure exercises the exact sequence
// run() relies on: a supervisor that reaches Forwarding must report the
// reset exactly once to its next backoff decision, not to every decision
// afterward.
func TestOnForwardingResetsAttemptOnNextFailure(t *testing.T) {
	s := newSupervisor(tunnelmodel.TunnelConfig{})

	if s.consumeReachedForwarding() {
		t.Fatal("a fresh supervisor should not report reachedForwarding")
	}

	s.OnForwarding()
	if !s.consumeReachedForwarding() {
		t.Fatal("consumeReachedForwarding should report true once after OnForwarding")
	}
	if s.consumeReachedForwarding() {
		t.Fatal("consumeReachedForwarding should clear the flag after being read")
	}
}

// TestSupervisorRunResetsAttemptAfterForwarding replays run()'s own
// per-failure sequence — recordError, consume-and-maybe-reset, compute
// backoff, increment — against a scripted run: fail, fail, reach
// Forwarding then fail again, fail once more. The failure immediately
// after Forwarding must back off as attempt 0, and the one after that as
// attempt 1, not attempt 2/3 as an un-reset counter would.
func TestSupervisorRunResetsAttemptAfterForwarding(t *testing.T) {
	s := newSupervisor(tunnelmodel.TunnelConfig{})
	b := tunnelmodel.Backoff{BaseMs: 500, MaxMs: 30_000}

	attempt := 0
	onFailure := func() time.Duration {
		if s.consumeReachedForwarding() {
			attempt = 0
		}
		delay := computeBackoff(b, attempt)
		attempt++
		return delay
	}

	if got := onFailure(); got != 500*time.Millisecond {
		t.Fatalf("1st failure backoff = %v, want 500ms", got)
	}
	if got := onFailure(); got != 1000*time.Millisecond {
		t.Fatalf("2nd failure backoff = %v, want 1000ms", got)
	}

	s.OnForwarding()

	if got := onFailure(); got != 500*time.Millisecond {
		t.Errorf("failure right after reaching Forwarding should restart at 500ms, got %v", got)
	}
	if got := onFailure(); got != 1000*time.Millisecond {
		t.Errorf("failure after that should resume counting from the reset point, got %v", got)
	}
}
