package keys

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/gpio-keys/internal/clock"
	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
)

// DefaultWorkers is the number of reporter goroutines when Options.Workers is 0.
const DefaultWorkers = 2

// Options configures a Driver.
type Options struct {
	// Name identifies the instance in logs, consumer labels and wake locks.
	Name  string
	Chip  gpio.Chip
	Sink  input.Sink
	Clock clock.Clock
	// Logger defaults to the standard logrus logger.
	Logger *log.Entry
	// Wake, if set, is held while an edge on a wake line is unreported.
	Wake     WakeLock
	Strategy ResumeStrategy
	Workers  int
}

// Driver owns the lines of one instance.
type Driver struct {
	name     string
	chip     gpio.Chip
	sink     input.Sink
	clock    clock.Clock
	log      *log.Entry
	wake     WakeLock
	strategy ResumeStrategy

	lines  []*line
	byCode map[codeKey][]int

	timers   *timers
	reporter *reporter
	emitMu   sync.Mutex

	holds     atomic.Int32
	suspended atomic.Bool
	closing   atomic.Bool

	// mu is the global lock. It is always taken before any line lock.
	mu        sync.Mutex
	power     PowerState
	wakeArmed bool
	users     int
	// open is set while the sink's consumer path is open.
	open   bool
	closed bool
}

type codeKey struct {
	t    input.Type
	code uint16
}

// New validates descs, requests every line from opts.Chip and arms it.
// If any line fails, everything acquired so far is released, the pins are
// put in their suspend configuration and a *LineError is returned.
func New(descs []Descriptor, opts Options) (*Driver, error) {
	if opts.Chip == nil || opts.Sink == nil {
		return nil, fmt.Errorf("%w: chip and sink are required", ErrConfig)
	}
	if len(descs) == 0 {
		return nil, fmt.Errorf("%w: no lines", ErrConfig)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	if opts.Name == "" {
		opts.Name = "gpio-keys"
	}
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}

	d := &Driver{
		name:     opts.Name,
		chip:     opts.Chip,
		sink:     opts.Sink,
		clock:    opts.Clock,
		log:      opts.Logger,
		wake:     opts.Wake,
		strategy: opts.Strategy,
		byCode:   make(map[codeKey][]int),
	}
	for i, desc := range descs {
		if err := desc.Validate(); err != nil {
			return nil, &LineError{Index: i, Label: desc.Label, Offset: desc.Offset, Err: err}
		}
		d.lines = append(d.lines, &line{
			idx:      i,
			desc:     desc,
			debounce: desc.Debounce,
			wake:     desc.Wakeup,
		})
		k := codeKey{desc.Type, desc.Code}
		d.byCode[k] = append(d.byCode[k], i)
	}

	d.timers = newTimers(d.clock, len(d.lines), d.fire)
	d.reporter = newReporter(len(d.lines), opts.Workers, d.report)

	if err := d.chip.SetPinmux(gpio.PinmuxActive); err != nil {
		d.reporter.stop()
		return nil, fmt.Errorf("%w: select active pinmux: %w", ErrUnavailable, err)
	}

	for _, l := range d.lines {
		if err := d.setup(l); err != nil {
			d.teardown()
			if perr := d.chip.SetPinmux(gpio.PinmuxSuspend); perr != nil {
				d.log.WithError(perr).Warn("select suspend pinmux after failed bring-up")
			}
			return nil, &LineError{Index: l.idx, Label: l.desc.Label, Offset: l.desc.Offset, Err: err}
		}
	}

	d.log.WithFields(log.Fields{"lines": len(d.lines), "may_wake": d.MayWake()}).Info("lines armed")
	return d, nil
}

// setup requests the line, tries hardware debounce and records the initial
// level without reporting it.
func (d *Driver) setup(l *line) error {
	idx := l.idx
	gl, err := d.chip.Request(gpio.LineSpec{
		Offset:   l.desc.Offset,
		Consumer: d.name + ":" + l.desc.name(),
		Bias:     l.desc.Bias,
		Edges:    l.edges(),
	}, func(ev gpio.Event) { d.dispatch(idx, ev) })
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	debounce := l.desc.Debounce
	if l.desc.HardwareDebounce && l.desc.Sensing == SensingEdge && debounce > 0 {
		if db, ok := gl.(gpio.Debouncer); ok {
			if err := db.SetDebounce(debounce); err != nil {
				d.lineLog(l).WithError(err).Debug("hardware debounce unavailable, using software")
			} else {
				debounce = 0
			}
		}
	}

	var active bool
	if l.desc.Sensing == SensingEdge {
		raw, err := gl.Level()
		if err != nil {
			gl.Close()
			return fmt.Errorf("%w: read initial level: %w", ErrUnavailable, err)
		}
		active = raw != l.desc.ActiveLow
	}

	l.mu.Lock()
	l.gl = gl
	l.debounce = debounce
	l.pressed = active
	l.level = active
	l.mu.Unlock()
	return nil
}

// teardown cancels all deferred work and releases every requested line.
func (d *Driver) teardown() error {
	d.closing.Store(true)
	var errs []error
	for _, l := range d.lines {
		d.timers.cancel(l.idx)
		d.reporter.cancel(l.idx)

		l.mu.Lock()
		gl := l.gl
		l.gl = nil
		l.pending = false
		l.outbox = nil
		d.release(l)
		l.mu.Unlock()

		if gl != nil {
			if err := gl.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", l.desc.name(), err))
			}
		}
	}
	d.reporter.stop()
	return errors.Join(errs...)
}

// Close stops all timers and reports and releases the lines. Committed
// events that were not yet delivered are dropped. The chip is left open.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	open := d.open
	d.open = false
	d.mu.Unlock()

	err := d.teardown()
	if open {
		err = errors.Join(err, d.closeSink())
	}
	return err
}

// OpenConsumer registers a user of the consumer path. The first user opens
// the sink's Lifecycle.
func (d *Driver) OpenConsumer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if !d.open && d.power == PowerActive {
		if err := d.openSink(); err != nil {
			return err
		}
		d.open = true
	}
	d.users++
	return nil
}

// CloseConsumer drops a user of the consumer path. The last user closes the
// sink's Lifecycle.
func (d *Driver) CloseConsumer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.users == 0 {
		return nil
	}
	d.users--
	if d.users > 0 || !d.open {
		return nil
	}
	d.open = false
	return d.closeSink()
}

func (d *Driver) openSink() error {
	if lc, ok := d.sink.(input.Lifecycle); ok {
		if err := lc.Open(); err != nil {
			return fmt.Errorf("open consumer: %w", err)
		}
	}
	return nil
}

func (d *Driver) closeSink() error {
	if lc, ok := d.sink.(input.Lifecycle); ok {
		if err := lc.Close(); err != nil {
			return fmt.Errorf("close consumer: %w", err)
		}
	}
	return nil
}

// Flush waits until every queued report has been delivered. Pending
// debounce deadlines are not waited for.
func (d *Driver) Flush() {
	d.reporter.drain()
}

// Name returns the instance name.
func (d *Driver) Name() string { return d.name }

// Power returns the current power state.
func (d *Driver) Power() PowerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.power
}

// Strategy returns the configured resume strategy.
func (d *Driver) Strategy() ResumeStrategy { return d.strategy }

// Holds returns the number of outstanding wake holds.
func (d *Driver) Holds() int { return int(d.holds.Load()) }

// MayWake reports whether any line is wake-enabled.
func (d *Driver) MayWake() bool {
	for _, l := range d.lines {
		l.mu.Lock()
		wake := l.wake
		l.mu.Unlock()
		if wake {
			return true
		}
	}
	return false
}

// Lines returns the status of every line in descriptor order.
func (d *Driver) Lines() []LineStatus {
	out := make([]LineStatus, len(d.lines))
	for i, l := range d.lines {
		out[i] = l.status()
	}
	return out
}
