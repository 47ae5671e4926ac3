package input

import (
	"sync"
)

// Recorder is a Sink test double that records event groups.
type Recorder struct {
	mu      sync.Mutex
	pending []Event
	groups  [][]Event

	// EmitError, if set, is returned by Emit.
	EmitError error
	// OpenError, if set, is returned by Open.
	OpenError error
	// CloseError, if set, is returned by Close.
	CloseError error

	opened int
	closed int

	notify chan struct{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// Emit records ev in the current group.
func (r *Recorder) Emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.EmitError != nil {
		return r.EmitError
	}
	r.pending = append(r.pending, ev)
	return nil
}

// Sync closes the current group.
func (r *Recorder) Sync() error {
	r.mu.Lock()
	if len(r.pending) > 0 {
		r.groups = append(r.groups, r.pending)
		r.pending = nil
	}
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Open counts consumer opens.
func (r *Recorder) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.OpenError != nil {
		return r.OpenError
	}
	r.opened++
	return nil
}

// Close counts consumer closes.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CloseError != nil {
		return r.CloseError
	}
	r.closed++
	return nil
}

// Groups returns a copy of the synced groups.
func (r *Recorder) Groups() [][]Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Event, len(r.groups))
	copy(out, r.groups)
	return out
}

// Events returns every synced event in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, g := range r.groups {
		out = append(out, g...)
	}
	return out
}

// Opened returns how many times Open succeeded.
func (r *Recorder) Opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

// Closed returns how many times Close succeeded.
func (r *Recorder) Closed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Synced is signalled after each Sync. It can be used to wait for delivery.
func (r *Recorder) Synced() <-chan struct{} {
	return r.notify
}

// Reset clears recorded groups and counters.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = nil
	r.groups = nil
	r.opened = 0
	r.closed = 0
	r.EmitError = nil
	r.OpenError = nil
	r.CloseError = nil
}
