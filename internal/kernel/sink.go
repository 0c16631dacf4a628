package kernel

import "sync"

// Sink receives events from channel goroutines. Post must be safe to call from
// any goroutine, must not block, and must preserve the order of events posted
// by the same goroutine.
type Sink interface {
	Post(Event)
}

// SinkFunc adapts a function to Sink. The function must honour Sink's
// contract itself.
type SinkFunc func(Event)

func (f SinkFunc) Post(ev Event) { f(ev) }

// Queue is an unbounded FIFO Sink drained by a single consumer goroutine.
type Queue struct {
	mu     sync.Mutex
	events []Event
	posted uint64
	ready  chan struct{}
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Post appends ev and wakes the consumer.
func (q *Queue) Post(ev Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.posted++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready fires after Post when the consumer may have work. A single signal can
// stand for many posts; always Drain fully after receiving it.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain hands every queued event to handle in order, on the calling
// goroutine, and returns how many it handled. Events posted while handle runs
// wait for the next Drain.
func (q *Queue) Drain(handle func(Event)) int {
	q.mu.Lock()
	events := q.events
	q.events = nil
	q.mu.Unlock()

	for _, ev := range events {
		handle(ev)
	}
	return len(events)
}

// Len returns the number of undrained events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Posted returns the total number of events ever posted.
func (q *Queue) Posted() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.posted
}
