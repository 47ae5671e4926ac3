package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var order []string
	var seen []time.Time
	f.AfterFunc(5*time.Millisecond, func() {
		order = append(order, "b")
		seen = append(seen, f.Now())
	})
	f.AfterFunc(2*time.Millisecond, func() {
		order = append(order, "a")
		seen = append(seen, f.Now())
	})

	f.Advance(10 * time.Millisecond)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order: got %v, want [a b]", order)
	}
	if !seen[0].Equal(start.Add(2 * time.Millisecond)) {
		t.Errorf("first timer saw %v, want %v", seen[0], start.Add(2*time.Millisecond))
	}
	if !f.Now().Equal(start.Add(10 * time.Millisecond)) {
		t.Errorf("now: got %v, want %v", f.Now(), start.Add(10*time.Millisecond))
	}
}

func TestFakeStop(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	fired := false
	tm := f.AfterFunc(time.Millisecond, func() { fired = true })

	if !tm.Stop() {
		t.Error("Stop on pending timer should report true")
	}
	if tm.Stop() {
		t.Error("second Stop should report false")
	}
	f.Advance(time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if f.Pending() != 0 {
		t.Errorf("pending: got %d, want 0", f.Pending())
	}
}

func TestFakeTimerArmedDuringAdvance(t *testing.T) {
	f := NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	count := 0
	f.AfterFunc(time.Millisecond, func() {
		count++
		f.AfterFunc(time.Millisecond, func() { count++ })
	})

	f.Advance(5 * time.Millisecond)
	if count != 2 {
		t.Errorf("count: got %d, want 2", count)
	}
}
