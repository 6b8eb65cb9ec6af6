package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	p, err := New(Config{Name: t.Name(), Capacity: capacity, Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

// waitReturns fails the test if Wait does not return within the deadline.
func waitReturns(t *testing.T, p *Pool) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
}

// concurrencyProbe records the peak number of simultaneously running tasks.
type concurrencyProbe struct {
	current atomic.Int64
	peak    atomic.Int64
}

func (c *concurrencyProbe) enter() {
	n := c.current.Add(1)
	for {
		peak := c.peak.Load()
		if n <= peak || c.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (c *concurrencyProbe) leave() {
	c.current.Add(-1)
}

// TestNewRejectsNonPositiveCapacity verifies capacity validation.
func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Capacity: 0})
	require.Error(t, err)
	_, err = New(Config{Capacity: -3})
	require.Error(t, err)
}

// TestPoolRunsEveryTaskExactlyOnce schedules many tasks and checks each ran once.
func TestPoolRunsEveryTaskExactlyOnce(t *testing.T) {
	t.Parallel()

	const numTasks = 1000
	p := newTestPool(t, 12)
	counts := make([]atomic.Int32, numTasks)
	for i := 0; i < numTasks; i++ {
		id := i
		require.NoError(t, p.Schedule(func() {
			time.Sleep(time.Duration(id%3) * time.Millisecond)
			counts[id].Add(1)
		}))
	}
	waitReturns(t, p)

	for i := range counts {
		require.Equal(t, int32(1), counts[i].Load(), "task %d", i)
	}
	require.Zero(t, p.Outstanding())
	require.LessOrEqual(t, p.Activated(), 12)
}

// TestPoolBoundsConcurrency asserts no more than Capacity tasks run at once.
func TestPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const capacity = 3
	p := newTestPool(t, capacity)
	var probe concurrencyProbe
	for i := 0; i < 30; i++ {
		require.NoError(t, p.Schedule(func() {
			probe.enter()
			defer probe.leave()
			time.Sleep(5 * time.Millisecond)
		}))
	}
	waitReturns(t, p)

	require.LessOrEqual(t, probe.peak.Load(), int64(capacity))
	require.Equal(t, capacity, p.Activated())
	require.Equal(t, capacity, p.Capacity())
}

// TestPoolWaitWithNoTasksReturnsImmediately covers the empty join.
func TestPoolWaitWithNoTasksReturnsImmediately(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 4)
	waitReturns(t, p)
	require.Zero(t, p.Activated())
}

// TestPoolReusesIdleWorkers checks an idle worker is preferred over activating a new one.
func TestPoolReusesIdleWorkers(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 8)
	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Schedule(func() { ran.Add(1) }))
		waitReturns(t, p)
	}
	require.Equal(t, int32(10), ran.Load())
	require.Equal(t, 1, p.Activated())
}

// TestPoolQueuesFIFOWhenSaturated verifies tasks wait for a free worker in schedule order.
func TestPoolQueuesFIFOWhenSaturated(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 1)
	release := make(chan struct{})
	started := make(chan struct{})

	var mu sync.Mutex
	var order []int
	require.NoError(t, p.Schedule(func() {
		close(started)
		<-release
	}))
	for i := 1; i <= 5; i++ {
		id := i
		require.NoError(t, p.Schedule(func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}))
	}

	<-started
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	require.Empty(t, order, "queued tasks must not run while the only worker is busy")
	mu.Unlock()
	require.Equal(t, 6, p.Outstanding())

	close(release)
	waitReturns(t, p)
	require.Equal(t, []int{1, 2, 3, 4, 5}, order)
	require.Equal(t, 1, p.Activated())
}

// TestPoolRecoversPanickingTask ensures a panic counts as a finished task.
func TestPoolRecoversPanickingTask(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2)
	var ran atomic.Int32
	require.NoError(t, p.Schedule(func() { panic("boom") }))
	for i := 0; i < 4; i++ {
		require.NoError(t, p.Schedule(func() { ran.Add(1) }))
	}
	waitReturns(t, p)

	require.Equal(t, int32(4), ran.Load())
	require.Zero(t, p.Outstanding())

	require.NoError(t, p.Schedule(func() { ran.Add(1) }))
	waitReturns(t, p)
	require.Equal(t, int32(5), ran.Load())
}

// TestPoolRestartableAfterWait allows scheduling again after a completed join.
func TestPoolRestartableAfterWait(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2)
	var ran atomic.Int32
	require.NoError(t, p.Schedule(func() { ran.Add(1) }))
	waitReturns(t, p)
	waitReturns(t, p)

	require.NoError(t, p.Schedule(func() { ran.Add(1) }))
	require.NoError(t, p.Schedule(func() { ran.Add(1) }))
	waitReturns(t, p)
	require.Equal(t, int32(3), ran.Load())
}

// TestPoolScheduleRejections covers nil tasks and scheduling after Close.
func TestPoolScheduleRejections(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Capacity: 1})
	require.NoError(t, err)
	require.ErrorIs(t, p.Schedule(nil), ErrNilTask)

	p.Close()
	require.ErrorIs(t, p.Schedule(func() {}), ErrClosed)
	p.Close()
	waitReturns(t, p)
}

// TestPoolCloseDrainsBeforeWait tears a pool down without a prior Wait.
func TestPoolCloseDrainsBeforeWait(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Capacity: 3})
	require.NoError(t, err)
	var ran atomic.Int32
	for i := 0; i < 12; i++ {
		require.NoError(t, p.Schedule(func() {
			time.Sleep(2 * time.Millisecond)
			ran.Add(1)
		}))
	}

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	require.Equal(t, int32(12), ran.Load())
	require.Zero(t, p.Outstanding())
}

// TestPoolCloseUnusedPool releases a pool that never activated a worker.
func TestPoolCloseUnusedPool(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Capacity: 5})
	require.NoError(t, err)
	p.Close()
	require.Zero(t, p.Activated())
}

// TestPoolTasksMayScheduleOnSamePool checks Wait covers work scheduled by running tasks.
func TestPoolTasksMayScheduleOnSamePool(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, 2)
	var leaves atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Schedule(func() {
			for j := 0; j < 4; j++ {
				if err := p.Schedule(func() {
					time.Sleep(time.Millisecond)
					leaves.Add(1)
				}); err != nil {
					t.Errorf("nested schedule: %v", err)
				}
			}
		}))
	}
	waitReturns(t, p)
	require.Equal(t, int32(12), leaves.Load())
}

// TestNestedPoolsBoundTotalFanOut mirrors feed and article pools: the outer
// join covers every inner join, and total inner concurrency stays within outer x inner.
func TestNestedPoolsBoundTotalFanOut(t *testing.T) {
	t.Parallel()

	const outerCap, innerCap = 2, 3
	outer := newTestPool(t, outerCap)
	var probe concurrencyProbe
	var finished atomic.Int32

	for f := 0; f < 5; f++ {
		require.NoError(t, outer.Schedule(func() {
			inner, err := New(Config{Name: "inner", Capacity: innerCap})
			if err != nil {
				t.Errorf("inner pool: %v", err)
				return
			}
			defer inner.Close()
			for a := 0; a < 7; a++ {
				if err := inner.Schedule(func() {
					probe.enter()
					defer probe.leave()
					time.Sleep(2 * time.Millisecond)
					finished.Add(1)
				}); err != nil {
					t.Errorf("inner schedule: %v", err)
				}
			}
			inner.Wait()
		}))
	}
	waitReturns(t, outer)

	require.Equal(t, int32(35), finished.Load())
	require.LessOrEqual(t, probe.peak.Load(), int64(outerCap*innerCap))
}
