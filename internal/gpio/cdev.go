//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"
)

// CdevChip requests lines through the Linux GPIO character device.
type CdevChip struct {
	chip    *gpiocdev.Chip
	pinctrl *Pinctrl

	mu    sync.Mutex
	lines []*CdevLine
}

// CdevLine is a line requested through a CdevChip.
type CdevLine struct {
	chip   *CdevChip
	line   *gpiocdev.Line
	offset int
	edges  Edge
}

// NewCdevChip opens the named chip, e.g. "gpiochip0". pinctrl may be nil.
func NewCdevChip(name string, pinctrl *Pinctrl) (*CdevChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, classify(err))
	}
	return &CdevChip{chip: chip, pinctrl: pinctrl}, nil
}

// Request claims the line as an input with spec.Edges armed.
func (c *CdevChip) Request(spec LineSpec, h Handler) (Line, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer(spec.Consumer),
		edgeOption(spec.Edges),
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			h(Event{
				Offset: evt.Offset,
				Time:   evt.Timestamp,
				Rising: evt.Type == gpiocdev.LineEventRisingEdge,
			})
		}),
	}
	if b, ok := biasOption(spec.Bias); ok {
		opts = append(opts, b)
	}

	l, err := c.chip.RequestLine(spec.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request line %d: %w", spec.Offset, classify(err))
	}

	cl := &CdevLine{chip: c, line: l, offset: spec.Offset, edges: spec.Edges}
	c.mu.Lock()
	c.lines = append(c.lines, cl)
	c.mu.Unlock()
	return cl, nil
}

// SetPinmux reconfigures the bias of every requested line for state.
func (c *CdevChip) SetPinmux(state PinmuxState) error {
	if c.pinctrl == nil {
		return nil
	}
	b, ok := biasOption(c.pinctrl.Bias(state))
	if !ok {
		return nil
	}

	c.mu.Lock()
	lines := append([]*CdevLine(nil), c.lines...)
	c.mu.Unlock()

	for _, l := range lines {
		if err := l.line.Reconfigure(b); err != nil {
			return fmt.Errorf("pinmux %s line %d: %w", state, l.offset, err)
		}
	}
	return nil
}

// Close releases the chip.
func (c *CdevChip) Close() error {
	return c.chip.Close()
}

// Level returns the raw line value.
func (l *CdevLine) Level() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", l.offset, err)
	}
	return v == 1, nil
}

// Mask disables edge detection. Edges already queued by the kernel are still
// delivered and must be filtered by the caller.
func (l *CdevLine) Mask() error {
	if err := l.line.Reconfigure(gpiocdev.WithoutEdges); err != nil {
		return fmt.Errorf("mask line %d: %w", l.offset, err)
	}
	return nil
}

// Unmask restores the armed edges.
func (l *CdevLine) Unmask() error {
	if err := l.line.Reconfigure(edgeOption(l.edges)); err != nil {
		return fmt.Errorf("unmask line %d: %w", l.offset, err)
	}
	return nil
}

// SetWake is accepted but has no uAPI equivalent: wake routing of the
// interrupt is owned by the platform, and the line simply stays armed.
func (l *CdevLine) SetWake(on bool) error {
	return nil
}

// SetDebounce asks the kernel to debounce the line.
func (l *CdevLine) SetDebounce(d time.Duration) error {
	if err := l.line.Reconfigure(gpiocdev.WithDebounce(d)); err != nil {
		return fmt.Errorf("debounce line %d: %w", l.offset, err)
	}
	return nil
}

// Close disarms the line and releases it. Close waits for a running event
// handler to return, so it must not be called from the handler.
func (l *CdevLine) Close() error {
	var errs []error
	if err := l.line.Reconfigure(gpiocdev.WithoutEdges); err != nil {
		errs = append(errs, fmt.Errorf("disarm line %d: %w", l.offset, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close line %d: %w", l.offset, err))
	}

	l.chip.mu.Lock()
	for i, other := range l.chip.lines {
		if other == l {
			l.chip.lines = append(l.chip.lines[:i], l.chip.lines[i+1:]...)
			break
		}
	}
	l.chip.mu.Unlock()

	return errors.Join(errs...)
}

func edgeOption(e Edge) gpiocdev.LineEdge {
	switch e {
	case EdgeRising:
		return gpiocdev.WithRisingEdge
	case EdgeFalling:
		return gpiocdev.WithFallingEdge
	case EdgeBoth:
		return gpiocdev.WithBothEdges
	}
	return gpiocdev.WithoutEdges
}

// biasOption reports false for BiasAsIs, which leaves the line untouched.
func biasOption(b Bias) (gpiocdev.LineBias, bool) {
	switch b {
	case BiasDisabled:
		return gpiocdev.WithBiasDisabled, true
	case BiasPullUp:
		return gpiocdev.WithPullUp, true
	case BiasPullDown:
		return gpiocdev.WithPullDown, true
	}
	return gpiocdev.WithBiasAsIs, false
}

// classify marks busy lines and missing chips as temporary.
func classify(err error) error {
	if errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("%w: %w", ErrTemporary, err)
	}
	return err
}
