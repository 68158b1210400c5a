package automation

import (
	"sync"
	"time"
)

// triggerQueueSize bounds the executions waiting behind one trigger.
const triggerQueueSize = 256

// Dispatcher gates trigger executions.
//
// It keeps a debounce table from trigger ID to a one-shot timer and a
// FIFO queue per trigger. While a trigger's timer is active, new feedback
// for it is skipped. Each trigger's queue is drained by its own worker, so
// executions of one trigger run one at a time in arrival order while
// different triggers run concurrently.
//
// Thread Safety: All methods are safe for concurrent use.
type Dispatcher struct {
	mu       sync.Mutex
	timers   map[string]*time.Timer
	queues   map[string]chan func()
	disposed bool
	wg       sync.WaitGroup
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		timers: make(map[string]*time.Timer),
		queues: make(map[string]chan func()),
	}
}

// Dispatch queues fn for trigger id unless its debounce timer is active.
//
// A positive interval arms a fresh timer when fn is queued; when it expires
// the trigger becomes eligible again. A zero interval disables debounce but
// executions of the same trigger still run one after another.
//
// Returns false if the feedback was skipped, the trigger's queue is full
// or the dispatcher is disposed.
func (d *Dispatcher) Dispatch(id string, interval time.Duration, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.disposed {
		return false
	}
	if _, active := d.timers[id]; active && interval > 0 {
		return false
	}

	q, ok := d.queues[id]
	if !ok {
		q = make(chan func(), triggerQueueSize)
		d.queues[id] = q
		go d.drain(q)
	}

	d.wg.Add(1)
	select {
	case q <- fn:
	default:
		d.wg.Done()
		return false
	}

	if interval > 0 {
		var timer *time.Timer
		timer = time.AfterFunc(interval, func() {
			d.mu.Lock()
			if d.timers[id] == timer {
				delete(d.timers, id)
			}
			d.mu.Unlock()
		})
		d.timers[id] = timer
	}
	return true
}

// drain runs one trigger's executions in queue order until Dispose closes q.
func (d *Dispatcher) drain(q <-chan func()) {
	for fn := range q {
		func() {
			defer d.wg.Done()
			fn()
		}()
	}
}

// IsDebouncing reports whether id's timer is active.
func (d *Dispatcher) IsDebouncing(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, active := d.timers[id]
	return active
}

// ActiveTimers returns the number of armed debounce timers.
func (d *Dispatcher) ActiveTimers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// ResetAll cancels every debounce timer. Running executions continue.
func (d *Dispatcher) ResetAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
}

// Wait blocks until all admitted executions have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Dispose refuses further work, cancels timers and waits for running
// executions. Safe to call multiple times.
func (d *Dispatcher) Dispose() {
	d.mu.Lock()
	d.disposed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	// Workers finish what is already queued, then exit.
	for id, q := range d.queues {
		close(q)
		delete(d.queues, id)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
