package resilience

import (
	"errors"
	"testing"
	"time"
)

var errProvider = errors.New("embedding provider down")

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	for range 3 {
		_ = b.Execute(func() error { return errProvider })
	}

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if b.State() != "open" {
		t.Errorf("state = %q, want open", b.State())
	}
}

func TestBreakerHalfOpenAfterTimeout(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errProvider })
	if b.State() != "open" {
		t.Fatalf("state = %q, want open", b.State())
	}

	// Advance past the timeout; next call probes and succeeds.
	now = now.Add(2 * time.Minute)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != "closed" {
		t.Errorf("state = %q, want closed after successful probe", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	now := time.Now()
	b := NewBreaker(1, time.Minute)
	b.now = func() time.Time { return now }

	_ = b.Execute(func() error { return errProvider })
	now = now.Add(2 * time.Minute)
	_ = b.Execute(func() error { return errProvider })

	if b.State() != "open" {
		t.Errorf("state = %q, want open after failed probe", b.State())
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	_ = b.Execute(func() error { return errProvider })
	_ = b.Execute(func() error { return errProvider })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errProvider })
	_ = b.Execute(func() error { return errProvider })

	// Only two consecutive failures since the success; still closed.
	if b.State() != "closed" {
		t.Errorf("state = %q, want closed", b.State())
	}
}
