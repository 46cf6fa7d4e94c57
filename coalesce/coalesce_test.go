package coalesce

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_FiresOnceAfterQuietWindow(t *testing.T) {
	clock := NewManualClock()
	var calls []int
	d := NewDebouncer(clock, 100*time.Millisecond, func(v int) { calls = append(calls, v) })

	d.Trigger(1)
	clock.Advance(60 * time.Millisecond)
	d.Trigger(2)
	clock.Advance(60 * time.Millisecond)
	d.Trigger(3)
	assert.Empty(t, calls)

	clock.Advance(99 * time.Millisecond)
	assert.Empty(t, calls)
	clock.Advance(time.Millisecond)
	assert.Equal(t, []int{3}, calls)
	assert.False(t, d.Pending())
}

func TestDebouncer_SeparateBursts(t *testing.T) {
	clock := NewManualClock()
	count := 0
	d := NewDebouncer(clock, 200*time.Millisecond, func(struct{}) { count++ })

	d.Trigger(struct{}{})
	clock.Advance(250 * time.Millisecond)
	d.Trigger(struct{}{})
	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, 2, count)
}

func TestDebouncer_CancelAndStop(t *testing.T) {
	clock := NewManualClock()
	count := 0
	d := NewDebouncer(clock, 10*time.Millisecond, func(struct{}) { count++ })

	d.Trigger(struct{}{})
	d.Cancel()
	clock.Advance(time.Second)
	assert.Equal(t, 0, count)

	d.Stop()
	d.Trigger(struct{}{})
	clock.Advance(time.Second)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, clock.Pending())
}

func TestMerger_CollapsesCallsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan int, 10)

	var mu sync.Mutex
	var got []int
	m := NewMerger(context.Background(), func(_ context.Context, v int) {
		started <- v
		if v == 1 {
			<-release
		}
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})

	m.Call(1)
	require.Equal(t, 1, <-started)
	assert.True(t, m.Busy())

	m.Call(2)
	m.Call(3)
	m.Call(4)
	close(release)
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 4}, got, "exactly one follow-up call with the latest args")
	assert.False(t, m.Busy())
}

func TestMerger_CombineFoldsPending(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	var got []string
	m := NewMerger(context.Background(), func(_ context.Context, v string) {
		if v == "first" {
			started <- struct{}{}
			<-release
		}
		got = append(got, v)
	}, WithCombine(func(pending, next string) string { return pending + "+" + next }))

	m.Call("first")
	<-started
	m.Call("a")
	m.Call("b")
	close(release)
	m.Wait()

	assert.Equal(t, []string{"first", "a+b"}, got)
}

func TestMerger_IdleCallRunsImmediately(t *testing.T) {
	done := make(chan int, 2)
	m := NewMerger(context.Background(), func(_ context.Context, v int) { done <- v })

	m.Call(7)
	assert.Equal(t, 7, <-done)
	m.Wait()
	m.Call(8)
	assert.Equal(t, 8, <-done)
	m.Wait()
}

func TestMerger_CloseCancelsAndDropsPending(t *testing.T) {
	started := make(chan struct{})
	var calls int
	m := NewMerger(context.Background(), func(ctx context.Context, _ int) {
		calls++
		close(started)
		<-ctx.Done()
	})

	m.Call(1)
	<-started
	m.Call(2)
	m.Close()
	m.Wait()

	assert.Equal(t, 1, calls)
	m.Call(3)
	m.Wait()
	assert.Equal(t, 1, calls)
}
