package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/local/supportbot/internal/errs"
)

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("x", Config{FailureThreshold: 5, Cooldown: time.Minute})
	boom := errors.New("boom")
	for i := 0; i < 5; i++ {
		_, err := Call(b, func() (int, error) { return 0, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("call %d: want boom, got %v", i, err)
		}
	}
	_, err := Call(b, func() (int, error) { return 1, nil })
	var be *errs.BreakerOpen
	if !errors.As(err, &be) {
		t.Fatalf("6th call: want BreakerOpen, got %v", err)
	}
}

func TestHalfOpenProbeAfterCooldown(t *testing.T) {
	b := New("x", Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	boom := errors.New("boom")
	_, _ = Call(b, func() (int, error) { return 0, boom })
	if b.State() != Open {
		t.Fatalf("expected open after first failure")
	}
	time.Sleep(20 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after cooldown")
	}
	got, err := Call(b, func() (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Fatalf("probe call failed: got=%v err=%v", got, err)
	}
	if b.State() != Closed {
		t.Fatalf("expected closed after successful probe")
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := New("x", Config{FailureThreshold: 1, Cooldown: 5 * time.Millisecond})
	boom := errors.New("boom")
	_, _ = Call(b, func() (int, error) { return 0, boom })
	time.Sleep(10 * time.Millisecond)
	_, _ = Call(b, func() (int, error) { return 0, boom })
	if b.State() != Open {
		t.Fatalf("expected re-open after failed probe")
	}
}

func TestManagerReusesPerEndpoint(t *testing.T) {
	m := NewManager(Config{})
	a := m.Get("auth")
	b := m.Get("auth")
	if a != b {
		t.Fatalf("expected same breaker instance for repeated name")
	}
	c := m.Get("appeals")
	if a == c {
		t.Fatalf("expected distinct breakers for distinct names")
	}
}
