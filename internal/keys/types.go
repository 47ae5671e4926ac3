// Package keys turns raw edges on input lines into debounced key, switch and
// abs events. Each line runs a small state machine under its own lock; a timer
// engine and a pool of reporter goroutines take the work off the interrupt
// path, and a global lock serialises enable/disable and power transitions.
package keys

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
)

var (
	// ErrConfig reports a malformed or incomplete line description.
	ErrConfig = errors.New("invalid configuration")
	// ErrUnavailable wraps a pin that could not be acquired. Use
	// gpio.IsTemporary to tell retry-later failures from permanent ones.
	ErrUnavailable = errors.New("resource unavailable")
	// ErrPolicy is returned for requests the line policy forbids, such as
	// disabling a line that cannot be disabled.
	ErrPolicy = errors.New("policy violation")
	// ErrPinFault reports a failed pin multiplexing change during a power
	// transition. The instance stays in its prior power state.
	ErrPinFault = errors.New("pin fault")
	// ErrWakeHeld is returned by Suspend while an edge on a wake line has
	// not been reported yet.
	ErrWakeHeld = errors.New("wake hold outstanding")
	// ErrNotFound is returned when no line has the requested code.
	ErrNotFound = errors.New("no such line")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("driver closed")
)

// Sensing is how a line observes its input.
type Sensing int

const (
	// SensingEdge lines have a readable level; every edge is debounced and
	// the level is sampled once it settles.
	SensingEdge Sensing = iota
	// SensingPulse lines only raise an interrupt on activation. The press is
	// reported at once and the release after a quiet window.
	SensingPulse
)

func (s Sensing) String() string {
	if s == SensingPulse {
		return "pulse"
	}
	return "edge"
}

// ParseSensing converts "edge" or "pulse" to a Sensing. Empty means edge.
func ParseSensing(s string) (Sensing, error) {
	switch s {
	case "", "edge", "gpio":
		return SensingEdge, nil
	case "pulse", "irq":
		return SensingPulse, nil
	}
	return SensingEdge, fmt.Errorf("%w: unknown sensing %q", ErrConfig, s)
}

// Descriptor is the static description of one line. It does not change
// after the driver is created.
type Descriptor struct {
	Label     string
	Code      uint16
	Type      input.Type
	Sensing   Sensing
	ActiveLow bool
	// Debounce is the software debounce window. Zero disables it.
	Debounce   time.Duration
	CanDisable bool
	Wakeup     bool
	// Value is reported for abs lines when they become active.
	Value  int32
	Offset int
	Bias   gpio.Bias
	// HardwareDebounce asks the substrate to filter bounces itself. The
	// software window is used when the substrate cannot.
	HardwareDebounce bool
}

// SharesInterrupt reports whether the line's interrupt may be shared with
// other devices, in which case it can never be masked on demand.
func (d Descriptor) SharesInterrupt() bool {
	return !d.CanDisable
}

// Validate checks the descriptor for values the driver cannot run with.
func (d Descriptor) Validate() error {
	count := d.Type.Count()
	if count == 0 {
		return fmt.Errorf("%w: unsupported type %v", ErrConfig, d.Type)
	}
	if int(d.Code) >= count {
		return fmt.Errorf("%w: code %d out of range for %v", ErrConfig, d.Code, d.Type)
	}
	if d.Offset < 0 {
		return fmt.Errorf("%w: negative gpio %d", ErrConfig, d.Offset)
	}
	if d.Debounce < 0 {
		return fmt.Errorf("%w: negative debounce %v", ErrConfig, d.Debounce)
	}
	if d.Sensing == SensingPulse && d.Type != input.TypeKey {
		return fmt.Errorf("%w: pulse lines must be of type key, not %v", ErrConfig, d.Type)
	}
	return nil
}

func (d Descriptor) name() string {
	if d.Label != "" {
		return d.Label
	}
	return fmt.Sprintf("gpio%d", d.Offset)
}

// LineError is a per-line failure during bring-up.
type LineError struct {
	Index  int
	Label  string
	Offset int
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d (%s, gpio %d): %v", e.Index, e.Label, e.Offset, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// LineState is the debounce state of a line.
type LineState int

const (
	StateIdle LineState = iota
	StatePending
	StatePressed
)

func (s LineState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StatePressed:
		return "pressed"
	}
	return "idle"
}

// PowerState is the power state of a driver.
type PowerState int

const (
	PowerActive PowerState = iota
	PowerSuspending
	PowerSuspended
	PowerResuming
)

func (s PowerState) String() string {
	switch s {
	case PowerSuspending:
		return "suspending"
	case PowerSuspended:
		return "suspended"
	case PowerResuming:
		return "resuming"
	}
	return "active"
}

// ResumeStrategy selects which resume entry point acts.
type ResumeStrategy int

const (
	// ResumeDevice resumes through Resume.
	ResumeDevice ResumeStrategy = iota
	// ResumeSyscore resumes through SyscoreResume, which also reports the
	// lines whose wake already fired.
	ResumeSyscore
)

func (s ResumeStrategy) String() string {
	if s == ResumeSyscore {
		return "syscore"
	}
	return "device"
}

// ParseResumeStrategy converts "device" or "syscore". Empty means device.
func ParseResumeStrategy(s string) (ResumeStrategy, error) {
	switch s {
	case "", "device":
		return ResumeDevice, nil
	case "syscore":
		return ResumeSyscore, nil
	}
	return ResumeDevice, fmt.Errorf("%w: unknown resume strategy %q", ErrConfig, s)
}

// WakeLock keeps the system out of suspend while a hold is outstanding.
type WakeLock interface {
	Acquire(name string) error
	Release(name string) error
}

// LineStatus is a point-in-time view of one line.
type LineStatus struct {
	Descriptor
	State    LineState
	Pressed  bool
	Disabled bool
	Failed   bool
	Wake     bool
	Holding  bool
	// Level is the logical level seen at the latest edge.
	Level bool
}
