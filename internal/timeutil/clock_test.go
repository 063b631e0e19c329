package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Since(t *testing.T) {
	c := RealClock{}
	start := c.Now()
	if d := c.Since(start); d < 0 {
		t.Errorf("Since returned negative duration %v", d)
	}
}

func TestMockClock_Advance(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	if !c.Now().Equal(base) {
		t.Fatalf("Now = %v, want %v", c.Now(), base)
	}
	c.Advance(3 * time.Second)
	if got := c.Since(base); got != 3*time.Second {
		t.Errorf("Since = %v, want 3s", got)
	}
	c.Set(base)
	if got := c.Since(base); got != 0 {
		t.Errorf("Since after Set = %v, want 0", got)
	}
}

func TestMockClock_Step(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	c.SetStep(time.Millisecond)

	first := c.Now()
	second := c.Now()
	if second.Sub(first) != time.Millisecond {
		t.Errorf("step = %v, want 1ms", second.Sub(first))
	}
}

func TestStopwatch(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)
	sw := StartStopwatch(c)
	c.Advance(250 * time.Millisecond)
	if got := sw.Elapsed(); got != 250*time.Millisecond {
		t.Errorf("Elapsed = %v, want 250ms", got)
	}
	if !sw.Started().Equal(base) {
		t.Errorf("Started = %v", sw.Started())
	}
}
