package keys

import "sync"

// reporter runs deferred work per line on a pool of goroutines.
// A line is queued at most once and never runs on two goroutines at the same
// time; enqueueing a line while it runs schedules exactly one follow-up run.
type reporter struct {
	run func(idx int)

	mu      sync.Mutex
	cond    sync.Cond
	queue   []int
	queued  []bool
	running []bool
	active  int
	closed  bool

	wg sync.WaitGroup
}

func newReporter(n, workers int, run func(idx int)) *reporter {
	r := &reporter{
		run:     run,
		queued:  make([]bool, n),
		running: make([]bool, n),
	}
	r.cond.L = &r.mu
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

// enqueue schedules a run for idx. It reports false if a run was already
// queued or the reporter is stopped.
func (r *reporter) enqueue(idx int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.queued[idx] {
		return false
	}
	r.queued[idx] = true
	if !r.running[idx] {
		r.queue = append(r.queue, idx)
		r.cond.Broadcast()
	}
	return true
}

// cancel drops a queued run of idx and waits for a running one to finish.
func (r *reporter) cancel(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.queued[idx] {
			r.queued[idx] = false
			r.unqueue(idx)
		}
		if !r.running[idx] {
			return
		}
		r.cond.Wait()
	}
}

// flush waits until idx has neither queued nor running work.
func (r *reporter) flush(idx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for (r.queued[idx] || r.running[idx]) && !r.closed {
		r.cond.Wait()
	}
}

// drain waits until no line has queued or running work.
func (r *reporter) drain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for (len(r.queue) > 0 || r.active > 0) && !r.closed {
		r.cond.Wait()
	}
}

// stop discards queued work, waits for running work and ends the workers.
func (r *reporter) stop() {
	r.mu.Lock()
	r.closed = true
	r.queue = nil
	for i := range r.queued {
		r.queued[i] = false
	}
	r.cond.Broadcast()
	r.mu.Unlock()
	r.wg.Wait()
}

// Caller holds r.mu.
func (r *reporter) unqueue(idx int) {
	for i, q := range r.queue {
		if q == idx {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return
		}
	}
}

func (r *reporter) work() {
	defer r.wg.Done()
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		for len(r.queue) == 0 && !r.closed {
			r.cond.Wait()
		}
		if r.closed {
			return
		}
		idx := r.queue[0]
		r.queue = r.queue[1:]
		r.queued[idx] = false
		r.running[idx] = true
		r.active++
		r.mu.Unlock()

		r.run(idx)

		r.mu.Lock()
		r.running[idx] = false
		r.active--
		if r.queued[idx] {
			r.queue = append(r.queue, idx)
		}
		r.cond.Broadcast()
	}
}
