//go:build linux

package uinput

import (
	"fmt"
	"sync"
	"syscall"

	"github.com/holoplot/go-evdev"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-keys/internal/input"
)

// Device is an input.Sink backed by a uinput device.
type Device struct {
	mu  sync.Mutex
	dev *evdev.InputDevice
}

// New creates the virtual device name declaring caps. With autorepeat set the
// kernel generates repeats for held keys.
func New(name string, caps Capabilities, autorepeat bool) (*Device, error) {
	evcaps := make(map[evdev.EvType][]evdev.EvCode)
	for t, codes := range caps {
		et := evdev.EvType(t)
		for _, c := range codes {
			evcaps[et] = append(evcaps[et], evdev.EvCode(c))
		}
	}
	if autorepeat {
		evcaps[evdev.EV_REP] = nil
	}

	dev, err := evdev.CreateDevice(name, evdev.InputID{
		BusType: BusHost,
		Vendor:  Vendor,
		Product: Product,
		Version: Version,
	}, evcaps)
	if err != nil {
		return nil, fmt.Errorf("create uinput device %q: %w", name, err)
	}
	log.WithFields(log.Fields{"name": name, "autorepeat": autorepeat}).Info("uinput device created")
	return &Device{dev: dev}, nil
}

// Emit writes ev to the device.
func (d *Device) Emit(ev input.Event) error {
	return d.write(&evdev.InputEvent{
		Time:  syscall.NsecToTimeval(ev.Time.UnixNano()),
		Type:  evdev.EvType(ev.Type),
		Code:  evdev.EvCode(ev.Code),
		Value: ev.Value,
	})
}

// Sync writes a SYN_REPORT, ending the group.
func (d *Device) Sync() error {
	return d.write(&evdev.InputEvent{
		Type: evdev.EV_SYN,
		Code: evdev.SYN_REPORT,
	})
}

func (d *Device) write(ev *evdev.InputEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return ErrDestroyed
	}
	return d.dev.WriteOne(ev)
}

// Destroy removes the virtual device.
func (d *Device) Destroy() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}
