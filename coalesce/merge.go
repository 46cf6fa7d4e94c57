package coalesce

import (
	"context"
	"sync"
)

// Merger runs fn with at most one call in flight. Calls arriving while one is
// running collapse into a single pending slot; when the running call finishes
// the pending one starts with the combined arguments.
type Merger[T any] struct {
	mu      sync.Mutex
	fn      func(context.Context, T)
	combine func(pending, next T) T

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running    bool
	hasPending bool
	pending    T
	closed     bool
}

// MergeOption customizes a Merger.
type MergeOption[T any] func(*Merger[T])

// WithCombine sets how a new argument folds into the pending one.
// The default keeps the newest argument.
func WithCombine[T any](combine func(pending, next T) T) MergeOption[T] {
	return func(m *Merger[T]) { m.combine = combine }
}

func NewMerger[T any](ctx context.Context, fn func(context.Context, T), opts ...MergeOption[T]) *Merger[T] {
	ctx, cancel := context.WithCancel(ctx)
	m := &Merger[T]{
		fn:      fn,
		combine: func(_, next T) T { return next },
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Call starts fn immediately when idle, otherwise records arg as pending.
func (m *Merger[T]) Call(arg T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.running {
		if m.hasPending {
			m.pending = m.combine(m.pending, arg)
		} else {
			m.pending = arg
			m.hasPending = true
		}
		return
	}
	m.running = true
	m.wg.Add(1)
	go m.run(arg)
}

func (m *Merger[T]) run(arg T) {
	defer m.wg.Done()
	for {
		m.fn(m.ctx, arg)

		m.mu.Lock()
		if m.closed || !m.hasPending {
			m.running = false
			m.mu.Unlock()
			return
		}
		arg = m.pending
		m.hasPending = false
		var zero T
		m.pending = zero
		m.mu.Unlock()
	}
}

// Busy reports whether a call is in flight.
func (m *Merger[T]) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Wait blocks until the in-flight call and anything pending behind it finish.
func (m *Merger[T]) Wait() {
	m.wg.Wait()
}

// Close cancels the in-flight call's context and drops the pending call.
func (m *Merger[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.hasPending = false
	m.mu.Unlock()
	m.cancel()
}
