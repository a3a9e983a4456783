package monotonic

import (
	"testing"
	"time"
)

func TestNewClockRejectsOddPrecision(t *testing.T) {
	if _, err := NewClock(3 * time.Millisecond); err == nil {
		t.Fatalf("expected error for unsupported precision")
	}
}

func TestClockStrictlyIncreasing(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewClock(time.Microsecond)
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	clock.WithSource(func() time.Time { return fixed })

	first := clock.Now()
	second := clock.Now()
	if !second.After(first) {
		t.Fatalf("expected %v after %v", second, first)
	}
	if second.Sub(first) != time.Microsecond {
		t.Fatalf("expected one precision step, got %v", second.Sub(first))
	}
}

func TestClockAdvanceRaisesFloor(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock, err := NewClock(time.Millisecond)
	if err != nil {
		t.Fatalf("new clock: %v", err)
	}
	clock.WithSource(func() time.Time { return fixed })

	ahead := fixed.Add(time.Hour)
	clock.Advance(ahead)
	if got := clock.Now(); !got.After(ahead) {
		t.Fatalf("expected %v after advanced floor %v", got, ahead)
	}

	clock.Advance(fixed.Add(-time.Hour))
	if got := clock.Now(); got.Sub(ahead) != 2*time.Millisecond {
		t.Fatalf("advancing backwards moved the clock: %v", got)
	}
}
