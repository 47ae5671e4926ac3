// Package gpio provides the pin substrate the key driver runs on: requesting
// input lines, reading their level, arming and masking their edge interrupts and
// switching pin bias between active and suspended configurations.
// The cdev implementation uses the Linux GPIO character device, the rpio
// implementation polls the Raspberry Pi latched edge detector, and the fake
// implementation allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

// ErrTemporary marks substrate errors worth retrying later, such as a line
// held by another consumer or a chip that has not appeared yet.
var ErrTemporary = errors.New("gpio: temporarily unavailable")

// ErrClosed is returned when using a released line or chip.
var ErrClosed = errors.New("gpio: closed")

// IsTemporary reports whether err is a retry-later failure.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrTemporary)
}

// Edge selects which transitions raise an interrupt.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeNone:
		return "none"
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	}
	return fmt.Sprintf("edge(%d)", int(e))
}

// Bias is the pull applied to an input line.
type Bias int

const (
	BiasAsIs Bias = iota
	BiasDisabled
	BiasPullUp
	BiasPullDown
)

// ParseBias converts "pull-up", "pull-down", "disabled" or "" to a Bias.
func ParseBias(s string) (Bias, error) {
	switch s {
	case "", "as-is":
		return BiasAsIs, nil
	case "disabled", "none":
		return BiasDisabled, nil
	case "pull-up", "pullup":
		return BiasPullUp, nil
	case "pull-down", "pulldown":
		return BiasPullDown, nil
	}
	return BiasAsIs, fmt.Errorf("unknown bias %q", s)
}

func (b Bias) String() string {
	switch b {
	case BiasAsIs:
		return "as-is"
	case BiasDisabled:
		return "disabled"
	case BiasPullUp:
		return "pull-up"
	case BiasPullDown:
		return "pull-down"
	}
	return fmt.Sprintf("bias(%d)", int(b))
}

// PinmuxState is the pin configuration selected for a power state.
type PinmuxState int

const (
	PinmuxActive PinmuxState = iota
	PinmuxSuspend
)

func (s PinmuxState) String() string {
	if s == PinmuxSuspend {
		return "suspend"
	}
	return "active"
}

// Pinctrl holds the bias applied to every line in each pinmux state.
// A nil *Pinctrl means the platform has no pin control and SetPinmux is a no-op.
type Pinctrl struct {
	Active  Bias
	Suspend Bias
}

// Bias returns the bias for state.
func (p *Pinctrl) Bias(state PinmuxState) Bias {
	if state == PinmuxSuspend {
		return p.Suspend
	}
	return p.Active
}

// Event is a raw edge notification.
type Event struct {
	Offset int
	// Time is the substrate timestamp of the edge, relative to an arbitrary epoch.
	Time time.Duration
	// Rising is true for an inactive to active physical transition.
	Rising bool
}

// Handler is called by the substrate for every armed edge on a line. It may be
// called concurrently for different lines and must not block.
type Handler func(Event)

// LineSpec describes a line to request.
type LineSpec struct {
	Offset int
	// Consumer is the label reported to the kernel for the request.
	Consumer string
	Bias     Bias
	Edges    Edge
}

// Chip requests lines and owns the pin control for them.
type Chip interface {
	// Request claims a line as an input and arms spec.Edges, delivering
	// edges to h.
	Request(spec LineSpec, h Handler) (Line, error)
	// SetPinmux applies the configuration for state to every requested line.
	SetPinmux(state PinmuxState) error
	// Close releases the chip. Lines must be closed first.
	Close() error
}

// Line is a requested input line.
type Line interface {
	// Level returns the raw physical level, true for high.
	Level() (bool, error)
	// Mask stops interrupt delivery until Unmask.
	Mask() error
	Unmask() error
	// SetWake marks the line as a wake source while the system is suspended.
	SetWake(on bool) error
	Close() error
}

// Debouncer is implemented by lines whose substrate can filter bounces itself.
type Debouncer interface {
	SetDebounce(d time.Duration) error
}
