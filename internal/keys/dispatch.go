package keys

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
)

// dispatch handles a raw edge on line idx. It runs on the substrate's
// goroutine, so it only updates state, arms timers and queues reports.
func (d *Driver) dispatch(idx int, ev gpio.Event) {
	l := d.lines[idx]
	now := d.clock.Now()
	report := false
	if d.log.Logger.IsLevelEnabled(log.TraceLevel) {
		d.lineLog(l).WithFields(log.Fields{"gpio": ev.Offset, "stamp": ev.Time, "rising": ev.Rising}).Trace("edge")
	}

	l.mu.Lock()
	if d.closing.Load() || l.disabled || l.failed || l.suspendMasked {
		l.mu.Unlock()
		return
	}
	if l.wake {
		d.hold(l)
		if d.suspended.Load() {
			l.wakeFired = true
		}
	}

	switch l.desc.Sensing {
	case SensingEdge:
		l.level = ev.Rising != l.desc.ActiveLow
		if l.debounce > 0 {
			l.pending = true
			l.deadline = now.Add(l.debounce)
			d.timers.arm(idx, l.debounce)
		} else {
			report = true
		}

	case SensingPulse:
		l.level = true
		if l.debounce == 0 {
			press, _ := l.event(true, now)
			release, _ := l.event(false, now)
			l.outbox = append(l.outbox, []input.Event{press, release})
			report = true
			break
		}
		if !l.pressed {
			l.commit(true, now)
			report = true
		}
		l.pending = true
		l.deadline = now.Add(l.debounce)
		d.timers.arm(idx, l.debounce)
	}
	l.mu.Unlock()

	if report {
		d.reporter.enqueue(idx)
	}
}

// fire runs when the debounce window of line idx expires. A callback that
// lost a race with a newer edge finds the deadline moved and leaves the
// restarted window to the newer timer.
func (d *Driver) fire(idx int) {
	l := d.lines[idx]

	l.mu.Lock()
	if !l.pending || d.clock.Now().Before(l.deadline) {
		l.mu.Unlock()
		return
	}
	l.pending = false
	if l.disabled || l.failed {
		l.mu.Unlock()
		return
	}
	if l.desc.Sensing == SensingPulse {
		l.level = false
		if l.pressed {
			l.commit(false, d.clock.Now())
		}
	}
	l.mu.Unlock()

	d.reporter.enqueue(idx)
}

// report samples edge lines, commits the result and delivers every
// committed group of line idx. It runs on a reporter goroutine.
func (d *Driver) report(idx int) {
	l := d.lines[idx]

	l.mu.Lock()
	gl := l.gl
	sample := l.desc.Sensing == SensingEdge && gl != nil && !l.disabled && !l.failed && !l.pending
	l.mu.Unlock()

	var raw bool
	var err error
	if sample {
		raw, err = gl.Level()
	}

	l.mu.Lock()
	failed := false
	if sample && !l.disabled && !l.failed && !l.pending {
		if err != nil {
			l.failed = true
			l.disabled = true
			failed = true
		} else if active := raw != l.desc.ActiveLow; active != l.pressed {
			l.commit(active, d.clock.Now())
		}
	}
	groups := l.outbox
	l.outbox = nil
	if !l.pending || l.disabled {
		d.release(l)
	}
	l.mu.Unlock()

	if failed {
		d.lineLog(l).WithError(err).Error("level read failed, line disabled")
		if err := gl.Mask(); err != nil {
			d.lineLog(l).WithError(err).Warn("mask failed line")
		}
	}
	d.deliver(groups)
}

func (d *Driver) deliver(groups [][]input.Event) {
	if len(groups) == 0 {
		return
	}
	d.emitMu.Lock()
	defer d.emitMu.Unlock()
	for _, g := range groups {
		for _, ev := range g {
			if err := d.sink.Emit(ev); err != nil {
				d.log.WithError(err).WithFields(log.Fields{"code": ev.Code, "type": ev.Type}).Warn("emit failed")
			}
		}
		if err := d.sink.Sync(); err != nil {
			d.log.WithError(err).Warn("sync failed")
		}
	}
}

// hold asserts the wake hold of l. A line holds at most once.
// Caller holds l.mu.
func (d *Driver) hold(l *line) {
	if l.holding {
		return
	}
	l.holding = true
	d.holds.Add(1)
	if d.wake != nil {
		if err := d.wake.Acquire(d.holdName(l)); err != nil {
			d.lineLog(l).WithError(err).Warn("acquire wake lock")
		}
	}
}

// release drops the wake hold of l, if any.
// Caller holds l.mu.
func (d *Driver) release(l *line) {
	if !l.holding {
		return
	}
	l.holding = false
	d.holds.Add(-1)
	if d.wake != nil {
		if err := d.wake.Release(d.holdName(l)); err != nil {
			d.lineLog(l).WithError(err).Warn("release wake lock")
		}
	}
}

func (d *Driver) holdName(l *line) string {
	return fmt.Sprintf("%s.%d", d.name, l.idx)
}

func (d *Driver) lineLog(l *line) *log.Entry {
	return d.log.WithFields(log.Fields{
		"line": l.desc.name(),
		"code": l.desc.Code,
		"type": l.desc.Type,
	})
}
