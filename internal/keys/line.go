package keys

import (
	"sync"
	"time"

	"github.com/sweeney/gpio-keys/internal/gpio"
	"github.com/sweeney/gpio-keys/internal/input"
)

// line is the runtime state of one descriptor. All fields below mu are
// guarded by it.
type line struct {
	idx  int
	desc Descriptor

	mu sync.Mutex
	gl gpio.Line
	// debounce is the effective software window; zero when the substrate
	// debounces in hardware.
	debounce time.Duration
	pressed  bool
	disabled bool
	failed   bool
	// pending is set while a debounce deadline is armed. deadline is the
	// end of the latest window; a timer firing before it is stale.
	pending  bool
	deadline time.Time
	// level is the logical level seen at the latest edge.
	level         bool
	holding       bool
	wake          bool
	suspendMasked bool
	wakeFired     bool
	// outbox holds committed groups not yet delivered to the sink.
	outbox [][]input.Event
}

// Caller holds l.mu.
func (l *line) state() LineState {
	switch {
	case l.pending:
		return StatePending
	case l.pressed:
		return StatePressed
	}
	return StateIdle
}

// event builds the logical event for a change to active.
// It reports false for an abs line becoming inactive, which is not reported.
func (l *line) event(active bool, now time.Time) (input.Event, bool) {
	ev := input.Event{Time: now, Type: l.desc.Type, Code: l.desc.Code, Label: l.desc.Label}
	switch {
	case l.desc.Type == input.TypeAbs:
		if !active {
			return ev, false
		}
		ev.Value = l.desc.Value
	case active:
		ev.Value = 1
	}
	return ev, true
}

// commit records a change of pressed and queues its event.
// Caller holds l.mu.
func (l *line) commit(active bool, now time.Time) {
	l.pressed = active
	if ev, ok := l.event(active, now); ok {
		l.outbox = append(l.outbox, []input.Event{ev})
	}
}

// edges returns the edges a line is armed on.
func (l *line) edges() gpio.Edge {
	if l.desc.Sensing == SensingEdge {
		return gpio.EdgeBoth
	}
	if l.desc.ActiveLow {
		return gpio.EdgeFalling
	}
	return gpio.EdgeRising
}

func (l *line) status() LineStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LineStatus{
		Descriptor: l.desc,
		State:      l.state(),
		Pressed:    l.pressed,
		Disabled:   l.disabled,
		Failed:     l.failed,
		Wake:       l.wake,
		Holding:    l.holding,
		Level:      l.level,
	}
}
