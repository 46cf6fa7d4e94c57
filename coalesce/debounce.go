package coalesce

import (
	"sync"
	"time"
)

// Debouncer invokes fn once the trigger stream has been quiet for window.
// Each Trigger restarts the wait; the handler receives the last argument.
type Debouncer[T any] struct {
	mu     sync.Mutex
	clock  Clock
	window time.Duration
	fn     func(T)
	timer  Timer
	seq    uint64
	last   T
	closed bool
}

func NewDebouncer[T any](clock Clock, window time.Duration, fn func(T)) *Debouncer[T] {
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer[T]{clock: clock, window: window, fn: fn}
}

// Trigger schedules fn(arg) after the window, cancelling any pending call.
func (d *Debouncer[T]) Trigger(arg T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.last = arg
	d.timer = d.clock.AfterFunc(d.window, func() { d.fire(seq) })
}

func (d *Debouncer[T]) fire(seq uint64) {
	d.mu.Lock()
	// a later Trigger owns the timer now
	if d.closed || seq != d.seq {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	arg := d.last
	d.mu.Unlock()

	d.fn(arg)
}

// Pending reports whether a call is scheduled.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Cancel drops the pending call, if any.
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Stop cancels the pending call and ignores future triggers.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
