//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// RpioChip drives Raspberry Pi pins through /dev/gpiomem. The SoC latches
// edges in its event detect register; a poll loop turns each latched edge into
// a handler call, so edges shorter than the poll interval are not lost.
// Only one RpioChip may be open at a time.
type RpioChip struct {
	pinctrl  *Pinctrl
	interval time.Duration
	start    time.Time

	mu    sync.Mutex
	lines []*RpioLine

	done chan struct{}
	wg   sync.WaitGroup
}

// RpioLine is a BCM pin requested through an RpioChip.
type RpioLine struct {
	chip    *RpioChip
	pin     rpio.Pin
	handler Handler
	edges   Edge
	masked  bool
	closed  bool
}

// NewRpioChip maps GPIO memory and starts polling every interval.
func NewRpioChip(interval time.Duration, pinctrl *Pinctrl) (*RpioChip, error) {
	if interval <= 0 {
		interval = time.Millisecond
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	c := &RpioChip{
		pinctrl:  pinctrl,
		interval: interval,
		start:    time.Now(),
		done:     make(chan struct{}),
	}
	c.wg.Add(1)
	go c.poll()
	return c, nil
}

// Request configures the BCM pin spec.Offset as an input with edge detection.
func (c *RpioChip) Request(spec LineSpec, h Handler) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if int(l.pin) == spec.Offset {
			return nil, fmt.Errorf("pin %d: %w", spec.Offset, ErrTemporary)
		}
	}

	l := &RpioLine{chip: c, pin: rpio.Pin(spec.Offset), handler: h, edges: spec.Edges}
	l.pin.Input()
	applyPull(l.pin, spec.Bias)
	l.pin.Detect(rpioEdge(spec.Edges))
	c.lines = append(c.lines, l)
	return l, nil
}

// SetPinmux applies the pull for state to every requested pin.
func (c *RpioChip) SetPinmux(state PinmuxState) error {
	if c.pinctrl == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		applyPull(l.pin, c.pinctrl.Bias(state))
	}
	return nil
}

// Close stops polling and unmaps GPIO memory.
func (c *RpioChip) Close() error {
	close(c.done)
	c.wg.Wait()
	return rpio.Close()
}

func (c *RpioChip) poll() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		type fired struct {
			h  Handler
			ev Event
		}
		var due []fired

		c.mu.Lock()
		for _, l := range c.lines {
			if l.closed || l.masked || l.edges == EdgeNone {
				continue
			}
			if l.pin.EdgeDetected() {
				due = append(due, fired{l.handler, Event{
					Offset: int(l.pin),
					Time:   time.Since(c.start),
					Rising: l.pin.Read() == rpio.High,
				}})
			}
		}
		c.mu.Unlock()

		for _, f := range due {
			f.h(f.ev)
		}
	}
}

// Level reads the pin.
func (l *RpioLine) Level() (bool, error) {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return false, ErrClosed
	}
	return l.pin.Read() == rpio.High, nil
}

// Mask turns edge detection off.
func (l *RpioLine) Mask() error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.masked = true
	l.pin.Detect(rpio.NoEdge)
	return nil
}

// Unmask turns edge detection back on. Detect clears any stale latched edge.
func (l *RpioLine) Unmask() error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.masked = false
	l.pin.Detect(rpioEdge(l.edges))
	return nil
}

// SetWake is a no-op; the SoC has no per-pin wake routing.
func (l *RpioLine) SetWake(on bool) error {
	return nil
}

// Close disables edge detection and removes the pin from the poll loop.
func (l *RpioLine) Close() error {
	l.chip.mu.Lock()
	defer l.chip.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	l.closed = true
	l.pin.Detect(rpio.NoEdge)
	for i, other := range l.chip.lines {
		if other == l {
			l.chip.lines = append(l.chip.lines[:i], l.chip.lines[i+1:]...)
			break
		}
	}
	return nil
}

func rpioEdge(e Edge) rpio.Edge {
	switch e {
	case EdgeRising:
		return rpio.RiseEdge
	case EdgeFalling:
		return rpio.FallEdge
	case EdgeBoth:
		return rpio.AnyEdge
	}
	return rpio.NoEdge
}

func applyPull(p rpio.Pin, b Bias) {
	switch b {
	case BiasPullUp:
		p.PullUp()
	case BiasPullDown:
		p.PullDown()
	case BiasDisabled:
		p.PullOff()
	}
}
