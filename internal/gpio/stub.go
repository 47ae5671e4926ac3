//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevChip is not available on non-Linux platforms.
type CdevChip struct{ FakeChip }

// NewCdevChip returns an error on non-Linux platforms.
func NewCdevChip(name string, pinctrl *Pinctrl) (*CdevChip, error) {
	return nil, errUnsupported
}

// RpioChip is not available on non-Linux platforms.
type RpioChip struct{ FakeChip }

// NewRpioChip returns an error on non-Linux platforms.
func NewRpioChip(interval time.Duration, pinctrl *Pinctrl) (*RpioChip, error) {
	return nil, errUnsupported
}
