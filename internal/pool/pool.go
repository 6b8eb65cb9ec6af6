package pool

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/metrics"
)

// Task is a unit of work with no result. Its only observable outcomes are its
// side effects and whether it returns or panics.
type Task func()

var (
	// ErrClosed is returned when scheduling on a pool that has been closed.
	ErrClosed = errors.New("pool closed")
	// ErrNilTask is returned when scheduling a nil task.
	ErrNilTask = errors.New("nil task")
)

// Config controls pool sizing and diagnostics.
type Config struct {
	// Name labels log lines and metrics. Defaults to "pool".
	Name string
	// Capacity is the maximum number of workers; must be > 0.
	Capacity int
	// Logger is optional.
	Logger *zap.Logger
}

type slot struct {
	id     int
	assign chan Task
	busy   bool
}

// Pool is a fixed-capacity executor of Tasks. It is safe for concurrent use,
// including Schedule calls made from tasks running on the pool itself.
type Pool struct {
	name     string
	capacity int
	logger   *zap.Logger

	mu          sync.Mutex
	drained     *sync.Cond
	slots       []*slot // activated slots, grown lazily up to capacity
	queue       []Task
	outstanding int
	closed      bool

	wake           chan struct{}
	stop           chan struct{}
	dispatcherDone chan struct{}
	workers        sync.WaitGroup
	closeOnce      sync.Once
}

// New builds a Pool and starts its dispatcher. No worker is activated until
// the first task arrives.
func New(cfg Config) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("pool capacity must be > 0, got %d", cfg.Capacity)
	}
	if cfg.Name == "" {
		cfg.Name = "pool"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		name:           cfg.Name,
		capacity:       cfg.Capacity,
		logger:         logger.With(zap.String("pool", cfg.Name)),
		slots:          make([]*slot, 0, cfg.Capacity),
		wake:           make(chan struct{}, 1),
		stop:           make(chan struct{}),
		dispatcherDone: make(chan struct{}),
	}
	p.drained = sync.NewCond(&p.mu)
	go p.dispatch()
	return p, nil
}

// Schedule enqueues task and returns without waiting for it to run.
func (p *Pool) Schedule(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.queue = append(p.queue, task)
	p.outstanding++
	p.mu.Unlock()

	metrics.AddQueuedTasks(p.name, 1)
	p.signal()
	return nil
}

// Wait blocks until every task scheduled so far has finished. It returns
// immediately when nothing is outstanding.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.outstanding > 0 {
		p.drained.Wait()
	}
}

// Close stops accepting tasks, waits for outstanding tasks to finish, and
// releases the dispatcher and all activated workers. It returns once every
// pool goroutine has exited. Subsequent calls are no-ops.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		for p.outstanding > 0 {
			p.drained.Wait()
		}
		p.mu.Unlock()

		close(p.stop)
		<-p.dispatcherDone

		// The queue is empty and the dispatcher is gone, so nothing sends on
		// an assignment channel again. Closing it is the release sentinel.
		p.mu.Lock()
		for _, s := range p.slots {
			close(s.assign)
		}
		activated := len(p.slots)
		p.mu.Unlock()

		p.workers.Wait()
		p.logger.Debug("pool closed", zap.Int("activated", activated))
	})
}

// Capacity reports the maximum number of workers.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Activated reports how many worker slots have been activated so far.
func (p *Pool) Activated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Outstanding reports scheduled minus finished tasks.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// signal wakes the dispatcher. The channel holds at most one pending wakeup;
// the dispatcher drains the whole queue per wakeup so coalescing loses nothing.
func (p *Pool) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) dispatch() {
	defer close(p.dispatcherDone)
	for {
		select {
		case <-p.wake:
			p.assignPending()
		case <-p.stop:
			return
		}
	}
}

// assignPending hands queued tasks to idle slots in FIFO order until either
// the queue or the available slots run out.
func (p *Pool) assignPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	assigned := 0
	for len(p.queue) > 0 {
		s := p.claimSlotLocked()
		if s == nil {
			break
		}
		task := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		// A claimed slot is idle, so its one-element buffer is empty.
		s.assign <- task
		assigned++
	}
	if len(p.queue) == 0 {
		p.queue = nil
	}
	if assigned > 0 {
		metrics.AddQueuedTasks(p.name, -assigned)
	}
}

// claimSlotLocked prefers an idle activated slot and only activates a new one
// when none is idle and capacity remains. Callers hold p.mu.
func (p *Pool) claimSlotLocked() *slot {
	for _, s := range p.slots {
		if !s.busy {
			s.busy = true
			return s
		}
	}
	if len(p.slots) == p.capacity {
		return nil
	}
	s := &slot{id: len(p.slots), assign: make(chan Task, 1), busy: true}
	p.slots = append(p.slots, s)
	p.workers.Add(1)
	go p.work(s)
	metrics.ObserveWorkerActivated(p.name)
	p.logger.Debug("worker activated", zap.Int("worker", s.id))
	return s
}

func (p *Pool) work(s *slot) {
	defer p.workers.Done()
	for task := range s.assign {
		p.execute(s, task)

		p.mu.Lock()
		s.busy = false
		p.outstanding--
		if p.outstanding == 0 {
			p.drained.Broadcast()
		}
		p.mu.Unlock()
		p.signal()
	}
}

// execute runs task, converting a panic into a logged task failure so the
// caller's bookkeeping always runs.
func (p *Pool) execute(s *slot, task Task) {
	metrics.IncBusyWorkers(p.name)
	defer metrics.DecBusyWorkers(p.name)
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveTask(p.name, metrics.OutcomePanic)
			p.logger.Error("task panicked",
				zap.Int("worker", s.id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			return
		}
		metrics.ObserveTask(p.name, metrics.OutcomeOK)
	}()
	task()
}
