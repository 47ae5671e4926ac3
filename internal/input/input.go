// Package input defines the logical events reported by the driver and the sink
// interface they are delivered to.
package input

import (
	"fmt"
	"time"
)

// Type is the logical event type of a line. Values match the Linux input
// event types so sinks can pass them through unchanged.
type Type uint16

const (
	TypeKey    Type = 0x01
	TypeAbs    Type = 0x03
	TypeSwitch Type = 0x05
)

// Code counts per type, matching KEY_CNT, ABS_CNT and SW_CNT.
const (
	KeyCount    = 0x300
	AbsCount    = 0x40
	SwitchCount = 0x11
)

// Count returns the number of codes defined for t, or 0 for unknown types.
func (t Type) Count() int {
	switch t {
	case TypeKey:
		return KeyCount
	case TypeAbs:
		return AbsCount
	case TypeSwitch:
		return SwitchCount
	}
	return 0
}

func (t Type) String() string {
	switch t {
	case TypeKey:
		return "key"
	case TypeAbs:
		return "abs"
	case TypeSwitch:
		return "switch"
	}
	return fmt.Sprintf("type(%d)", uint16(t))
}

// ParseType converts "key", "switch" or "abs" to a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "key", "keys", "":
		return TypeKey, nil
	case "switch", "switches":
		return TypeSwitch, nil
	case "abs":
		return TypeAbs, nil
	}
	return 0, fmt.Errorf("unknown event type %q", s)
}

// Event is one logical change on a line.
type Event struct {
	Time  time.Time
	Type  Type
	Code  uint16
	Value int32
	// Label identifies the line that produced the event.
	Label string
}

// Sink consumes events. Emit is followed by Sync once per group of related
// events, such as a press and release reported together.
// Sinks are called from the reporter goroutines, never while a line lock is held.
type Sink interface {
	Emit(ev Event) error
	Sync() error
}

// Lifecycle is implemented by sinks whose consumer path can be closed while the
// system is suspended and reopened on resume.
type Lifecycle interface {
	Open() error
	Close() error
}

// Multi fans events out to several sinks. Every sink is attempted; the first
// error is returned.
type Multi []Sink

// Emit forwards ev to every sink.
func (m Multi) Emit(ev Event) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Sync forwards the group marker to every sink.
func (m Multi) Sync() error {
	var first error
	for _, s := range m {
		if err := s.Sync(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens every sink that has a Lifecycle.
func (m Multi) Open() error {
	for _, s := range m {
		if l, ok := s.(Lifecycle); ok {
			if err := l.Open(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink that has a Lifecycle.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if l, ok := s.(Lifecycle); ok {
			if err := l.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
