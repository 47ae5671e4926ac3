package keys

import (
	"fmt"

	"github.com/sweeney/gpio-keys/internal/codeset"
	"github.com/sweeney/gpio-keys/internal/input"
)

// Sets are the code sets of one event type.
type Sets struct {
	All         codeset.Set
	Disableable codeset.Set
	Disabled    codeset.Set
	Wakeup      codeset.Set
}

// Snapshot returns the code sets of lines of type t.
func (d *Driver) Snapshot(t input.Type) (Sets, error) {
	if t.Count() == 0 {
		return Sets{}, fmt.Errorf("%w: unsupported type %v", ErrPolicy, t)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Sets{All: codeset.Of(), Disableable: codeset.Of(), Disabled: codeset.Of(), Wakeup: codeset.Of()}
	for _, l := range d.lines {
		if l.desc.Type != t {
			continue
		}
		s.All.Add(l.desc.Code)
		if l.desc.CanDisable {
			s.Disableable.Add(l.desc.Code)
		}
		l.mu.Lock()
		if l.disabled {
			s.Disabled.Add(l.desc.Code)
		}
		if l.wake {
			s.Wakeup.Add(l.desc.Code)
		}
		l.mu.Unlock()
	}
	return s, nil
}

// SetDisabled makes set the disabled codes of type t. Lines listed in set
// are disabled, the others of that type are enabled. Codes with no line are
// ignored. If any listed line cannot be disabled, ErrPolicy is returned and
// nothing changes.
func (d *Driver) SetDisabled(t input.Type, set codeset.Set) error {
	if t != input.TypeKey && t != input.TypeSwitch {
		return fmt.Errorf("%w: cannot disable lines of type %v", ErrPolicy, t)
	}
	for code := range set {
		if int(code) >= t.Count() {
			return fmt.Errorf("%w: code %d out of range for %v", ErrConfig, code, t)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	for _, l := range d.lines {
		if l.desc.Type == t && set.Has(l.desc.Code) && !l.desc.CanDisable {
			return fmt.Errorf("%w: %v %d (%s) cannot be disabled", ErrPolicy, t, l.desc.Code, l.desc.name())
		}
	}

	for _, l := range d.lines {
		if l.desc.Type != t {
			continue
		}
		if set.Has(l.desc.Code) {
			d.disable(l)
		} else {
			d.enable(l)
		}
	}
	return nil
}

// disable stops a line from reporting. A pending pulse release is committed
// first so the key is not left pressed. Reports already committed are
// delivered before disable returns, and any wake hold is released.
// Caller holds d.mu.
func (d *Driver) disable(l *line) {
	l.mu.Lock()
	if l.disabled {
		l.mu.Unlock()
		return
	}
	if l.desc.Sensing == SensingPulse && l.pressed {
		l.commit(false, d.clock.Now())
	}
	l.disabled = true
	l.pending = false
	l.suspendMasked = false
	gl := l.gl
	l.mu.Unlock()

	if gl != nil {
		if err := gl.Mask(); err != nil {
			d.lineLog(l).WithError(err).Warn("mask line")
		}
	}
	d.timers.cancel(l.idx)
	d.reporter.enqueue(l.idx)
	d.reporter.flush(l.idx)

	l.mu.Lock()
	d.release(l)
	l.mu.Unlock()
	d.lineLog(l).Info("line disabled")
}

// enable lets a disabled line report again. Nothing that happened while it
// was disabled is replayed. While suspended the unmask is left to resume
// unless the line is armed for wake.
// Caller holds d.mu.
func (d *Driver) enable(l *line) {
	l.mu.Lock()
	if !l.disabled {
		l.mu.Unlock()
		return
	}
	l.disabled = false
	l.failed = false
	later := d.power == PowerSuspended && !(d.wakeArmed && l.wake)
	if later {
		l.suspendMasked = true
	}
	gl := l.gl
	l.mu.Unlock()

	if !later && gl != nil {
		if err := gl.Unmask(); err != nil {
			d.lineLog(l).WithError(err).Warn("unmask line")
		}
	}
	d.lineLog(l).Info("line enabled")
}

// SetWakeup enables or disables wake on every line of type t with code.
// It is rejected while a power transition is in progress or suspended.
// Disabling wake keeps an outstanding hold until its edge is reported.
func (d *Driver) SetWakeup(t input.Type, code uint16, enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.power != PowerActive {
		return fmt.Errorf("%w: cannot change wake while %s", ErrPolicy, d.power)
	}
	idxs := d.byCode[codeKey{t, code}]
	if len(idxs) == 0 {
		return fmt.Errorf("%w: %v %d", ErrNotFound, t, code)
	}
	for _, i := range idxs {
		l := d.lines[i]
		l.mu.Lock()
		l.wake = enable
		l.mu.Unlock()
	}
	return nil
}
