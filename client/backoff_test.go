package client

import (
	"testing"
	"time"
)

func TestExponentialBackoffDoublesAndCaps(t *testing.T) {
	b := NewBackoff(BackoffExponential, 10*time.Millisecond, 0)
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 80 * time.Millisecond}
	for i, w := range want {
		if got := b.Next(i + 1); got != w {
			t.Fatalf("attempt %d: got %s, want %s", i+1, got, w)
		}
	}
	if got := b.Next(20); got != time.Minute {
		t.Fatalf("expected exponential backoff to cap at one minute, got %s", got)
	}
}

func TestConstantBackoffNeverChanges(t *testing.T) {
	b := NewBackoff(BackoffConstant, 5*time.Second, 3)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := b.Next(attempt); got != 5*time.Second {
			t.Fatalf("attempt %d: got %s, want 5s", attempt, got)
		}
	}
}

func TestFibonacciBackoffGrowsAsFibonacci(t *testing.T) {
	b := NewBackoff(BackoffFibonacci, time.Millisecond, 0)
	want := []time.Duration{1, 1, 2, 3, 5, 8}
	for i, w := range want {
		if got := b.Next(i + 1); got != w*time.Millisecond {
			t.Fatalf("attempt %d: got %s, want %s", i+1, got, w*time.Millisecond)
		}
	}
}

// TestMaxAttemptsZeroMeansNeverRetry checks that a zero max-attempts
// value reaches the strategy unchanged (not replaced by a default); the
// never-retry behavior itself is pinned by
// TestKeepAliveZeroMaxAttemptsNeverRetries.
func TestMaxAttemptsZeroMeansNeverRetry(t *testing.T) {
	b := NewBackoff(BackoffConstant, time.Millisecond, 0)
	if b.MaxAttempts() != 0 {
		t.Fatalf("expected MaxAttempts() == 0, got %d", b.MaxAttempts())
	}
}

func TestParseBackoffKindRoundTrip(t *testing.T) {
	cases := map[string]BackoffKind{
		"exponential": BackoffExponential,
		"constant":    BackoffConstant,
		"fibonacci":   BackoffFibonacci,
		"garbage":     BackoffExponential,
	}
	for s, want := range cases {
		if got := ParseBackoffKind(s); got != want {
			t.Fatalf("ParseBackoffKind(%q) = %v, want %v", s, got, want)
		}
	}
	for _, k := range []BackoffKind{BackoffExponential, BackoffConstant, BackoffFibonacci} {
		if ParseBackoffKind(k.String()) != k {
			t.Fatalf("round trip through String() failed for %v", k)
		}
	}
}
