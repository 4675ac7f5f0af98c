package processor

import (
	"sync"

	"github.com/eapache/queue"
)

// serialQueue runs submitted operations one at a time, in submission order,
// on a single goroutine. Submitting never blocks: the backlog is unbounded.
type serialQueue struct {
	mu      sync.Mutex
	ops     *queue.Queue
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

func newSerialQueue() *serialQueue {
	q := &serialQueue{
		ops:     queue.New(),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

// submit appends op to the backlog. It reports false once the queue is closed.
func (q *serialQueue) submit(op func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.ops.Add(op)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *serialQueue) run() {
	defer close(q.stopped)
	for {
		op, ok := q.next()
		if !ok {
			return
		}
		op()
	}
}

func (q *serialQueue) next() (func(), bool) {
	for {
		q.mu.Lock()
		if q.ops.Length() > 0 {
			op := q.ops.Remove().(func())
			q.mu.Unlock()
			return op, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.wake
	}
}

// close rejects further submissions, lets the backlog drain and waits for the
// worker to exit. It must not be called from inside an operation.
func (q *serialQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	<-q.stopped
}
