package journal

import (
	"sync"

	"github.com/roach88/oakvm/internal/ir"
)

// EventType distinguishes journal event kinds.
type EventType int

const (
	// EventTypeClass is a class publication.
	EventTypeClass EventType = iota + 1
	// EventTypeAttach is a completed attach operation.
	EventTypeAttach
)

func (t EventType) String() string {
	switch t {
	case EventTypeClass:
		return "class"
	case EventTypeAttach:
		return "attach"
	default:
		return "unknown"
	}
}

// Event wraps one record waiting to be written.
type Event struct {
	Type   EventType
	Class  *ir.ClassEvent
	Attach *ir.AttachRecord
}

// eventQueue is an unbounded, mutex-guarded FIFO.
//
// Producers are class publication paths and the attach server, neither of
// which may block on the store. The signal channel (buffered, size 1) lets
// Run wait on the queue and a context at the same time.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends e. Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	// Clear the slot so the backing array does not pin the record.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that fires when events may be available. It is
// closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and empty.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops accepting events and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
