package resilience

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

// trip opens the breaker by recording n admitted failures.
func trip(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow during trip %d: %v", i, err)
		}
		b.Record(errBackend)
	}
}

func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "ollama"})
	if b.maxFailures != 5 || b.resetTimeout != 30*time.Second || b.probeMax != 3 {
		t.Errorf("defaults = %d/%v/%d, want 5/30s/3", b.maxFailures, b.resetTimeout, b.probeMax)
	}
	if b.State() != BreakerClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreakerClosedAdmitsCalls(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3})
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	b.Record(nil)
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})
	trip(t, b, 3)

	if b.State() != BreakerOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, ResetTimeout: time.Hour})
	trip(t, b, 2)
	_ = b.Allow()
	b.Record(nil)
	trip(t, b, 2)

	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed after counter reset", b.State())
	}
}

func TestBreakerProbesAfterResetTimeout(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, ProbeMax: 2})
	trip(t, b, 2)

	time.Sleep(15 * time.Millisecond)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", b.State())
	}

	// Both probes succeed: the breaker closes again.
	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
		b.Record(nil)
	}
	if b.State() != BreakerClosed {
		t.Errorf("state = %v, want closed after successful probes", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: 10 * time.Millisecond, ProbeMax: 3})
	trip(t, b, 2)

	time.Sleep(15 * time.Millisecond)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.Record(errBackend)

	// Just re-opened, so the reset clock restarted.
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow = %v, want ErrBreakerOpen after failed probe", err)
	}
}

func TestBreakerProbeBudgetIsBounded(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, ResetTimeout: 10 * time.Millisecond, ProbeMax: 2})
	trip(t, b, 1)
	time.Sleep(15 * time.Millisecond)

	// Admit the budget without recording outcomes (probes in flight).
	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow = %v, want ErrBreakerOpen once probe budget is spent", err)
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	trip(t, b, 2)
	b.Reset()

	if b.State() != BreakerClosed {
		t.Fatalf("state = %v, want closed after Reset", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow after Reset: %v", err)
	}
}

func TestBreakerNotifiesStateChanges(t *testing.T) {
	var got []string
	b := NewBreaker(BreakerConfig{
		Name:         "coqui",
		MaxFailures:  1,
		ResetTimeout: 10 * time.Millisecond,
		ProbeMax:     1,
		OnStateChange: func(name string, from, to BreakerState) {
			got = append(got, fmt.Sprintf("%s:%s->%s", name, from, to))
		},
	})

	trip(t, b, 1) // closed -> open
	time.Sleep(15 * time.Millisecond)
	if err := b.Allow(); err != nil { // open -> half-open
		t.Fatalf("probe rejected: %v", err)
	}
	b.Record(nil) // half-open -> closed

	want := []string{
		"coqui:closed->open",
		"coqui:open->half-open",
		"coqui:half-open->closed",
	}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBreakerStateString(t *testing.T) {
	cases := map[BreakerState]string{
		BreakerClosed:   "closed",
		BreakerOpen:     "open",
		BreakerHalfOpen: "half-open",
		BreakerState(7): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("BreakerState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
