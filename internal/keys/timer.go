package keys

import (
	"sync"
	"time"

	"github.com/sweeney/gpio-keys/internal/clock"
)

// timers holds one re-armable single-shot timer per line.
// Callbacks for the same line never overlap, and once cancel returns the
// callback of the cancelled arm will not run.
type timers struct {
	clock clock.Clock
	fire  func(idx int)
	slots []timerSlot
}

type timerSlot struct {
	mu      sync.Mutex
	cond    sync.Cond
	gen     uint64
	t       clock.Timer
	running bool
}

func newTimers(c clock.Clock, n int, fire func(idx int)) *timers {
	e := &timers{clock: c, fire: fire, slots: make([]timerSlot, n)}
	for i := range e.slots {
		e.slots[i].cond.L = &e.slots[i].mu
	}
	return e
}

// arm (re)starts the timer of idx. A pending deadline is superseded.
func (e *timers) arm(idx int, d time.Duration) {
	s := &e.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	gen := s.gen
	if s.t != nil {
		s.t.Stop()
	}
	s.t = e.clock.AfterFunc(d, func() { e.run(idx, gen) })
}

// cancel stops the timer of idx and waits for a running callback.
// It reports whether a deadline was pending. It must not be called from the
// callback itself.
func (e *timers) cancel(idx int) bool {
	s := &e.slots[idx]
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	pending := false
	if s.t != nil {
		pending = s.t.Stop()
		s.t = nil
	}
	for s.running {
		s.cond.Wait()
	}
	return pending
}

func (e *timers) run(idx int, gen uint64) {
	s := &e.slots[idx]
	s.mu.Lock()
	for s.running {
		s.cond.Wait()
	}
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.t = nil
	s.running = true
	s.mu.Unlock()

	e.fire(idx)

	s.mu.Lock()
	s.running = false
	s.cond.Broadcast()
	s.mu.Unlock()
}
