package gpio

import (
	"errors"
	"testing"
)

func TestFakeChipEdgeDelivery(t *testing.T) {
	c := NewFakeChip()
	var got []Event
	l, err := c.Request(LineSpec{Offset: 4, Edges: EdgeBoth}, func(ev Event) {
		got = append(got, ev)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.SetLevel(4, true)
	c.SetLevel(4, true) // no change, no edge
	c.SetLevel(4, false)

	if len(got) != 2 {
		t.Fatalf("expected 2 edges, got %d", len(got))
	}
	if !got[0].Rising || got[1].Rising {
		t.Errorf("edge directions: got %v, %v", got[0].Rising, got[1].Rising)
	}
	if got[1].Time <= got[0].Time {
		t.Errorf("timestamps should increase: %v then %v", got[0].Time, got[1].Time)
	}

	lvl, err := l.Level()
	if err != nil || lvl {
		t.Errorf("level: got (%v, %v), want (false, nil)", lvl, err)
	}
}

func TestFakeChipMask(t *testing.T) {
	c := NewFakeChip()
	count := 0
	l, _ := c.Request(LineSpec{Offset: 1, Edges: EdgeBoth}, func(Event) { count++ })

	if err := l.Mask(); err != nil {
		t.Fatalf("mask: %v", err)
	}
	c.SetLevel(1, true)
	if c.Trigger(1) {
		t.Error("Trigger should not deliver on a masked line")
	}
	if count != 0 {
		t.Errorf("masked line delivered %d edges", count)
	}

	l.Unmask()
	c.SetLevel(1, false)
	if count != 1 {
		t.Errorf("expected 1 edge after unmask, got %d", count)
	}
}

func TestFakeChipRisingOnly(t *testing.T) {
	c := NewFakeChip()
	count := 0
	c.Request(LineSpec{Offset: 2, Edges: EdgeRising}, func(Event) { count++ })

	c.SetLevel(2, true)
	c.SetLevel(2, false)
	c.SetLevel(2, true)

	if count != 2 {
		t.Errorf("expected 2 rising edges, got %d", count)
	}
}

func TestFakeChipRequestErrors(t *testing.T) {
	c := NewFakeChip()
	c.RequestErrors = map[int]error{7: errors.New("no such line")}

	if _, err := c.Request(LineSpec{Offset: 7}, func(Event) {}); err == nil {
		t.Error("expected scripted error")
	}

	if _, err := c.Request(LineSpec{Offset: 3}, func(Event) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := c.Request(LineSpec{Offset: 3}, func(Event) {})
	if !IsTemporary(err) {
		t.Errorf("double request should be temporary, got %v", err)
	}
}

func TestFakeLineClosed(t *testing.T) {
	c := NewFakeChip()
	l, _ := c.Request(LineSpec{Offset: 0, Edges: EdgeBoth}, func(Event) {})

	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := l.Level(); !errors.Is(err, ErrClosed) {
		t.Errorf("level after close: got %v, want ErrClosed", err)
	}
	if err := l.Close(); err == nil {
		t.Error("second close should fail")
	}
}

func TestFakeChipPinmux(t *testing.T) {
	c := NewFakeChip()
	c.SetPinmux(PinmuxActive)
	c.SetPinmux(PinmuxSuspend)
	if len(c.Pinmux) != 2 || c.Pinmux[1] != PinmuxSuspend {
		t.Errorf("pinmux history: got %v", c.Pinmux)
	}

	c.PinmuxError = errors.New("pinctrl")
	if err := c.SetPinmux(PinmuxActive); err == nil {
		t.Error("expected scripted pinmux error")
	}
}

func TestParseBias(t *testing.T) {
	tests := []struct {
		in   string
		want Bias
	}{
		{"", BiasAsIs},
		{"pull-up", BiasPullUp},
		{"pulldown", BiasPullDown},
		{"disabled", BiasDisabled},
	}
	for _, tt := range tests {
		got, err := ParseBias(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseBias(%q): got (%v, %v), want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseBias("sideways"); err == nil {
		t.Error("expected error for unknown bias")
	}
}
