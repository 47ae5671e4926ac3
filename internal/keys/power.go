package keys

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-keys/internal/gpio"
)

// Suspend prepares the lines for system suspend. If any line may wake the
// system, wake lines are armed as wake sources and the others masked;
// otherwise every line is masked and the consumer path is closed.
// Suspend is refused with ErrWakeHeld while a wake edge is unreported.
// On any error the instance is returned to PowerActive.
func (d *Driver) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.power == PowerSuspended {
		return nil
	}
	if n := d.holds.Load(); n > 0 {
		return fmt.Errorf("%w: %d line(s) unreported", ErrWakeHeld, n)
	}

	d.power = PowerSuspending
	d.suspended.Store(true)
	if err := d.chip.SetPinmux(gpio.PinmuxSuspend); err != nil {
		d.power = PowerActive
		d.suspended.Store(false)
		return fmt.Errorf("%w: select suspend pinmux: %w", ErrPinFault, err)
	}

	wake := d.MayWake()
	var err error
	if wake {
		err = d.armWake()
	} else {
		err = d.quiesce()
	}
	if err == nil {
		if n := d.holds.Load(); n > 0 {
			err = fmt.Errorf("%w: %d line(s) fired during suspend", ErrWakeHeld, n)
		}
	}
	if err != nil {
		d.rollback()
		return err
	}

	d.power = PowerSuspended
	d.log.WithField("wake", wake).Info("suspended")
	return nil
}

// Resume is the device resume path. It does nothing unless the instance
// uses ResumeDevice.
func (d *Driver) Resume() error {
	if d.strategy != ResumeDevice {
		return nil
	}
	_, err := d.resume()
	return err
}

// SyscoreResume is the global resume path. It does nothing unless the
// instance uses ResumeSyscore. It returns the lines whose wake fired while
// suspended; their flags are cleared so the waking edge is counted once.
func (d *Driver) SyscoreResume() ([]string, error) {
	if d.strategy != ResumeSyscore {
		return nil, nil
	}
	return d.resume()
}

func (d *Driver) resume() ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if d.power != PowerSuspended {
		return nil, nil
	}

	d.power = PowerResuming
	if err := d.chip.SetPinmux(gpio.PinmuxActive); err != nil {
		d.power = PowerSuspended
		return nil, fmt.Errorf("%w: select active pinmux: %w", ErrPinFault, err)
	}

	woken, err := d.restore()
	d.power = PowerActive
	d.suspended.Store(false)
	d.log.WithFields(log.Fields{"strategy": d.strategy, "woken": woken}).Info("resumed")
	return woken, err
}

// armWake arms enabled wake lines as wake sources and masks the others.
// Caller holds d.mu.
func (d *Driver) armWake() error {
	d.wakeArmed = true
	for _, l := range d.lines {
		l.mu.Lock()
		wake, disabled, gl := l.wake, l.disabled, l.gl
		if !wake && !disabled {
			l.suspendMasked = true
		}
		l.mu.Unlock()
		if gl == nil || disabled {
			continue
		}
		if wake {
			if err := gl.SetWake(true); err != nil {
				return fmt.Errorf("%w: arm wake on %s: %w", ErrPinFault, l.desc.name(), err)
			}
			continue
		}
		if err := gl.Mask(); err != nil {
			return fmt.Errorf("%w: mask %s: %w", ErrPinFault, l.desc.name(), err)
		}
	}
	return nil
}

// quiesce masks every enabled line and closes the consumer path.
// Caller holds d.mu.
func (d *Driver) quiesce() error {
	for _, l := range d.lines {
		l.mu.Lock()
		disabled, gl := l.disabled, l.gl
		if !disabled {
			l.suspendMasked = true
		}
		l.mu.Unlock()
		if gl == nil || disabled {
			continue
		}
		if err := gl.Mask(); err != nil {
			return fmt.Errorf("%w: mask %s: %w", ErrPinFault, l.desc.name(), err)
		}
	}
	if d.open {
		if err := d.closeSink(); err != nil {
			return err
		}
		d.open = false
	}
	return nil
}

// restore undoes armWake or quiesce and reopens the consumer path. It
// returns the lines whose wake fired and clears their flags.
// Caller holds d.mu.
func (d *Driver) restore() ([]string, error) {
	var errs []error
	var woken []string
	for _, l := range d.lines {
		l.mu.Lock()
		disarm := d.wakeArmed && l.wake
		unmask := l.suspendMasked
		l.suspendMasked = false
		if l.wakeFired {
			woken = append(woken, l.desc.name())
			l.wakeFired = false
		}
		gl := l.gl
		l.mu.Unlock()
		if gl == nil {
			continue
		}
		if disarm {
			if err := gl.SetWake(false); err != nil {
				errs = append(errs, fmt.Errorf("disarm wake on %s: %w", l.desc.name(), err))
			}
		}
		if unmask {
			if err := gl.Unmask(); err != nil {
				errs = append(errs, fmt.Errorf("unmask %s: %w", l.desc.name(), err))
			}
		}
	}
	d.wakeArmed = false
	if d.users > 0 && !d.open {
		if err := d.openSink(); err != nil {
			errs = append(errs, err)
		} else {
			d.open = true
		}
	}
	return woken, errors.Join(errs...)
}

// rollback returns a failed suspend to PowerActive.
// Caller holds d.mu.
func (d *Driver) rollback() {
	if _, err := d.restore(); err != nil {
		d.log.WithError(err).Warn("undo suspend")
	}
	if err := d.chip.SetPinmux(gpio.PinmuxActive); err != nil {
		d.log.WithError(err).Warn("select active pinmux after failed suspend")
	}
	d.power = PowerActive
	d.suspended.Store(false)
}
