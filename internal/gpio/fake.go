package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// FakeChip is a test double that simulates input lines.
// Levels are driven with SetLevel; armed, unmasked edges invoke the handler
// synchronously on the calling goroutine, like an interrupt would.
type FakeChip struct {
	mu    sync.Mutex
	lines map[int]*FakeLine

	// RequestErrors, if set for an offset, is returned by Request.
	RequestErrors map[int]error

	// PinmuxError, if set, is returned by SetPinmux.
	PinmuxError error

	// Pinmux records every state passed to SetPinmux.
	Pinmux []PinmuxState

	// Closed tracks if Close was called.
	Closed bool
}

// FakeLine is a simulated line.
type FakeLine struct {
	chip    *FakeChip
	spec    LineSpec
	handler Handler
	level   bool
	edges   Edge
	masked  bool
	wake    bool
	closed  bool
	stamp   time.Duration

	// LevelError, if set, is returned by Level.
	LevelError error
	// DebounceError, if set, is returned by SetDebounce.
	DebounceError error
	// Debounce records the last successful SetDebounce value.
	Debounce time.Duration
}

// NewFakeChip creates a FakeChip with no requested lines.
func NewFakeChip() *FakeChip {
	return &FakeChip{lines: map[int]*FakeLine{}}
}

// Request claims a simulated line.
func (c *FakeChip) Request(spec LineSpec, h Handler) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.RequestErrors[spec.Offset]; err != nil {
		return nil, err
	}
	if l, ok := c.lines[spec.Offset]; ok && !l.closed {
		return nil, fmt.Errorf("line %d: %w", spec.Offset, ErrTemporary)
	}
	l := &FakeLine{chip: c, spec: spec, handler: h, edges: spec.Edges}
	c.lines[spec.Offset] = l
	return l, nil
}

// SetPinmux records state.
func (c *FakeChip) SetPinmux(state PinmuxState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PinmuxError != nil {
		return c.PinmuxError
	}
	c.Pinmux = append(c.Pinmux, state)
	return nil
}

// Close marks the chip as closed.
func (c *FakeChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Line returns the simulated line at offset, or nil.
func (c *FakeChip) Line(offset int) *FakeLine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lines[offset]
}

// SetLevel drives the raw level of the line at offset. If the level changes
// and the edge is armed and unmasked, the handler runs before SetLevel returns.
func (c *FakeChip) SetLevel(offset int, level bool) {
	c.mu.Lock()
	l := c.lines[offset]
	if l == nil {
		c.mu.Unlock()
		return
	}
	changed := l.level != level
	l.level = level
	fire := changed && l.deliverable(level)
	h, ev := l.event(level)
	c.mu.Unlock()

	if fire {
		h(ev)
	}
}

// Trigger delivers an interrupt on the line at offset without changing its
// level, as a bouncing contact or an IRQ-only source would.
// It reports whether the handler ran.
func (c *FakeChip) Trigger(offset int) bool {
	c.mu.Lock()
	l := c.lines[offset]
	if l == nil || l.closed || l.masked || l.edges == EdgeNone {
		c.mu.Unlock()
		return false
	}
	h, ev := l.event(l.level)
	c.mu.Unlock()

	h(ev)
	return true
}

// deliverable reports whether a transition to level raises an interrupt.
// Caller holds chip.mu.
func (l *FakeLine) deliverable(level bool) bool {
	if l.closed || l.masked {
		return false
	}
	switch l.edges {
	case EdgeBoth:
		return true
	case EdgeRising:
		return level
	case EdgeFalling:
		return !level
	}
	return false
}

// Caller holds chip.mu.
func (l *FakeLine) event(level bool) (Handler, Event) {
	l.stamp += time.Microsecond
	return l.handler, Event{Offset: l.spec.Offset, Time: l.stamp, Rising: level}
}

// Level returns the simulated raw level.
func (l *FakeLine) Level() (bool, error) {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	if l.LevelError != nil {
		return false, l.LevelError
	}
	return l.level, nil
}

// Mask stops delivery of interrupts.
func (l *FakeLine) Mask() error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.masked = true
	return nil
}

// Unmask resumes delivery of interrupts.
func (l *FakeLine) Unmask() error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.masked = false
	return nil
}

// SetWake records the wake source flag.
func (l *FakeLine) SetWake(on bool) error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.wake = on
	return nil
}

// SetDebounce records the requested hardware debounce.
func (l *FakeLine) SetDebounce(d time.Duration) error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.DebounceError != nil {
		return l.DebounceError
	}
	l.Debounce = d
	return nil
}

// Close releases the simulated line.
func (l *FakeLine) Close() error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return errors.New("fake line already closed")
	}
	l.closed = true
	return nil
}

// Masked reports whether interrupts are masked.
func (l *FakeLine) Masked() bool {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	return l.masked
}

// Wake reports whether the line is armed as a wake source.
func (l *FakeLine) Wake() bool {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	return l.wake
}

// Closed reports whether the line was released.
func (l *FakeLine) Closed() bool {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	return l.closed
}

// Spec returns the LineSpec the line was requested with.
func (l *FakeLine) Spec() LineSpec {
	return l.spec
}
