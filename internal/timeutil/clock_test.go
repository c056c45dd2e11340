package timeutil

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestMockClockAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("Since = %v, want 90s", got)
	}
}

func TestMockClockSleepRecordsAndAdvances(t *testing.T) {
	start := time.Unix(0, 0)
	c := NewMockClock(start)

	c.Sleep(10 * time.Millisecond)
	c.Sleep(25 * time.Millisecond)

	want := []time.Duration{10 * time.Millisecond, 25 * time.Millisecond}
	if diff := cmp.Diff(want, c.Sleeps()); diff != "" {
		t.Errorf("sleeps (-want +got):\n%s", diff)
	}
	if got := c.Now().Sub(start); got != 35*time.Millisecond {
		t.Errorf("time advanced %v, want 35ms", got)
	}
}

func TestMockClockOnSleepHook(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))

	var seen []time.Duration
	c.OnSleep = func(d time.Duration) { seen = append(seen, d) }

	c.Sleep(time.Millisecond)
	c.Sleep(2 * time.Millisecond)

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Errorf("hook calls (-want +got):\n%s", diff)
	}
}

func TestRealClock(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	if c.Now().Before(before) {
		t.Error("RealClock.Now went backward")
	}
	if c.Since(before) < 0 {
		t.Error("RealClock.Since negative")
	}
}
