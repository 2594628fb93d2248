package queue

import (
	"errors"
	"sync"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

var (
	// ErrShutdown is returned by Submit once Shutdown has been called.
	ErrShutdown = errors.New("queue: shut down")
	// ErrBusy is returned by Submit when the queue is full.
	ErrBusy = errors.New("queue: busy")
)

// Serial runs submitted tasks one at a time, in submission order, on a
// single background goroutine.
type Serial struct {
	name  string
	tasks chan func()
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewSerial starts the worker goroutine. depth is the number of tasks that
// may wait behind the running one before Submit reports ErrBusy.
func NewSerial(name string, depth int) *Serial {
	if depth <= 0 {
		depth = 1
	}
	q := &Serial{
		name:  name,
		tasks: make(chan func(), depth),
	}
	q.wg.Add(1)
	go q.worker()
	debug.Trace("queue %s: started (depth=%d)", name, depth)
	return q
}

func (q *Serial) worker() {
	defer q.wg.Done()
	for task := range q.tasks {
		q.run(task)
	}
	debug.Trace("queue %s: worker stopped", q.name)
}

// run keeps the worker alive if a task panics.
func (q *Serial) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			debug.Info("queue %s: task panicked: %v", q.name, r)
		}
	}()
	task()
}

// Submit enqueues task without blocking.
func (q *Serial) Submit(task func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrShutdown
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		debug.Verbose("queue %s: full, rejecting task", q.name)
		return ErrBusy
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
// Calling it more than once is a no-op.
func (q *Serial) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.wg.Wait()
	debug.Trace("queue %s: shut down", q.name)
}
