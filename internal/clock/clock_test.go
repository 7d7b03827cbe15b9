package clock

import (
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	start := time.Unix(1000, 0)
	c := Fake(start)
	if !c.Now().Equal(start) {
		t.Fatalf("expected %v, got %v", start, c.Now())
	}
	c.Advance(3600 * time.Second)
	if c.Now().Unix() != 4600 {
		t.Fatalf("expected 4600, got %d", c.Now().Unix())
	}
	c.Set(time.Unix(10, 0))
	if c.Now().Unix() != 10 {
		t.Fatalf("set did not move the clock back")
	}
}

func TestRealClockMoves(t *testing.T) {
	c := Real()
	if c.Now().IsZero() {
		t.Fatalf("real clock returned zero time")
	}
}
