package mqtt

import (
	"sync"

	"github.com/sweeney/gpio-keys/internal/input"
)

// Sink adapts a Publisher to input.Sink. Each Emit/Sync group becomes one
// message. While the consumer path is closed, groups are held and published
// in order when it is opened again.
type Sink struct {
	pub      Publisher
	instance string

	mu      sync.Mutex
	pending []input.Event
	open    bool
	held    *ringBuffer[[]input.Event]
}

// NewSink creates a closed Sink publishing through pub. capacity bounds the
// number of groups held while closed.
func NewSink(pub Publisher, instance string, capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Sink{
		pub:      pub,
		instance: instance,
		held:     newRingBuffer[[]input.Event]("consumer", capacity),
	}
}

// Emit adds ev to the current group.
func (s *Sink) Emit(ev input.Event) error {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
	return nil
}

// Sync publishes the current group, or holds it while closed.
func (s *Sink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	group := s.pending
	s.pending = nil
	if len(group) == 0 {
		return nil
	}
	if !s.open {
		s.held.push(group)
		return nil
	}
	return s.pub.Publish(Group{Instance: s.instance, Events: group})
}

// Open publishes any held groups and resumes direct publishing. Groups are
// published under the sink lock so held groups always precede new ones.
func (s *Sink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	groups := s.held.drainAll()

	var first error
	for _, g := range groups {
		if err := s.pub.Publish(Group{Instance: s.instance, Events: g}); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close stops direct publishing. The broker connection stays up for system events.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

// Held returns the number of groups waiting for Open.
func (s *Sink) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held.len()
}
