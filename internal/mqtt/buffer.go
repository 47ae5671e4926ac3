package mqtt

import log "github.com/sirupsen/logrus"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that holds items while they cannot be
// delivered. Not safe for concurrent use, caller must synchronize.
type ringBuffer[T any] struct {
	name     string
	buf      []T
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any item was dropped since last drain
}

func newRingBuffer[T any](name string, capacity int) *ringBuffer[T] {
	return &ringBuffer[T]{
		name:     name,
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer[T]) push(item T) {
	if r.count == r.capacity {
		if !r.overflow {
			log.WithFields(log.Fields{"buffer": r.name, "capacity": r.capacity}).
				Warn("mqtt: buffer full, dropping oldest")
			r.overflow = true
		}
		// Overwrite oldest: head is already pointing at it
		r.buf[r.head] = item
		r.head = (r.head + 1) % r.capacity
		return
	}
	r.buf[r.head] = item
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer[T]) drainAll() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)
	// Oldest item is at (head - count) mod capacity
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		result[i] = r.buf[(start+i)%r.capacity]
	}

	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer[T]) len() int {
	return r.count
}
