// Package uinput reports key events through a virtual Linux input device so
// that ordinary evdev consumers see them like any other keyboard or switch.
package uinput

import (
	"errors"

	"github.com/sweeney/gpio-keys/internal/input"
	"github.com/sweeney/gpio-keys/internal/keys"
)

// Input id of the virtual device.
const (
	BusHost = 0x19
	Vendor  = 0x0001
	Product = 0x0001
	Version = 0x0100
)

// ErrDestroyed is returned when writing to a destroyed device.
var ErrDestroyed = errors.New("uinput: device destroyed")

// Capabilities lists the codes a device declares, per event type.
type Capabilities map[input.Type][]uint16

// CapabilitiesOf collects the codes of descs, once each, in table order.
func CapabilitiesOf(descs []keys.Descriptor) Capabilities {
	caps := Capabilities{}
	seen := make(map[input.Type]map[uint16]bool)
	for _, d := range descs {
		if seen[d.Type] == nil {
			seen[d.Type] = make(map[uint16]bool)
		}
		if seen[d.Type][d.Code] {
			continue
		}
		seen[d.Type][d.Code] = true
		caps[d.Type] = append(caps[d.Type], d.Code)
	}
	return caps
}
