//go:build !linux

package uinput

import (
	"errors"

	"github.com/sweeney/gpio-keys/internal/input"
)

var errUnsupported = errors.New("uinput: not supported on this platform (requires Linux)")

// Device is not available on non-Linux platforms.
type Device struct{}

// New returns an error on non-Linux platforms.
func New(name string, caps Capabilities, autorepeat bool) (*Device, error) {
	return nil, errUnsupported
}

// Emit returns an error on non-Linux platforms.
func (d *Device) Emit(ev input.Event) error { return errUnsupported }

// Sync returns an error on non-Linux platforms.
func (d *Device) Sync() error { return errUnsupported }

// Destroy is a no-op on non-Linux platforms.
func (d *Device) Destroy() error { return nil }
