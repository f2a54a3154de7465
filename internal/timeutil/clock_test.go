package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	ticker := RealClock{}.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
}

func TestUnixSeconds(t *testing.T) {
	ts := time.Unix(1700000000, 250_000_000)
	if got := UnixSeconds(ts); got != 1700000000.25 {
		t.Errorf("UnixSeconds() = %v, want 1700000000.25", got)
	}

	// Sub-microsecond parts must not round the whole value off its second.
	ts = time.Unix(1700000000, 500)
	if got := UnixSeconds(ts); got != 1700000000.0000005 {
		t.Errorf("UnixSeconds() = %v, want 1700000000.0000005", got)
	}
	if got := UnixSeconds(time.Unix(1700000000, 0)); got != 1700000000 {
		t.Errorf("UnixSeconds() = %v, want 1700000000", got)
	}
}

func TestMockClock_SetAndSince(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Set(start.Add(3 * time.Second))
	if got := c.Since(start); got != 3*time.Second {
		t.Errorf("Since() = %v, want 3s", got)
	}
}

func TestMockClock_Ticker(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	ticker := c.NewTicker(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(500 * time.Millisecond)
	select {
	case got := <-ticker.C():
		if !got.Equal(start.Add(time.Second)) {
			t.Errorf("tick time = %v, want %v", got, start.Add(time.Second))
		}
	default:
		t.Fatal("ticker did not fire at its interval")
	}
}

func TestMockClock_TickerStop(t *testing.T) {
	c := NewMockClock(time.Now())
	ticker := c.NewTicker(time.Second)

	if got := c.ActiveTickers(); got != 1 {
		t.Fatalf("ActiveTickers() = %d, want 1", got)
	}

	ticker.Stop()
	c.Advance(2 * time.Second)

	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}
	if got := c.ActiveTickers(); got != 0 {
		t.Errorf("ActiveTickers() = %d after Stop, want 0", got)
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	c := NewMockClock(time.Now())
	ticker := c.NewTicker(time.Hour).(*MockTicker)

	now := time.Now()
	ticker.Trigger(now)
	ticker.Trigger(now.Add(time.Second)) // dropped, slot already full

	select {
	case got := <-ticker.C():
		if !got.Equal(now) {
			t.Errorf("Trigger delivered %v, want %v", got, now)
		}
	default:
		t.Fatal("Trigger did not deliver a tick")
	}
	select {
	case <-ticker.C():
		t.Error("second Trigger should have been dropped")
	default:
	}
}
