// Package worker runs background tasks off the request path. A task never
// inherits the tenant of the code that queued it; it names its tenant
// explicitly and runs in a context bound to exactly that tenant.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

var (
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	ErrQueueFull = errors.New("worker queue full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("worker stopped")
)

// Task is one unit of background work. TenantID is uuid.Nil for work that
// is not tenant-owned.
type Task struct {
	Name     string
	TenantID uuid.UUID
	Run      func(ctx context.Context) error
}

// Options configures a Dispatcher.
type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
}

// Dispatcher is a fixed pool of goroutines draining a bounded queue.
type Dispatcher struct {
	opts  Options
	queue chan Task
	base  context.Context
	stop  context.CancelFunc
	wg    sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewDispatcher starts opts.Workers goroutines. Tasks see base's values but
// neither its tenant nor its cancellation; only Stop cancels them.
func NewDispatcher(base context.Context, opts Options) *Dispatcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = 64
	}
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(tenancy.Detach(base))
	d := &Dispatcher{
		opts:  opts,
		queue: make(chan Task, opts.QueueSize),
		base:  ctx,
		stop:  cancel,
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.startWorker()
	}
	return d
}

// Submit queues t without blocking.
func (d *Dispatcher) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no function", t.Name)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrStopped
	}
	select {
	case d.queue <- t:
		return nil
	default:
		log.Warn().Str("task", t.Name).Msg("Worker queue full, dropping task")
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Stop refuses new tasks, lets queued ones finish and waits for the workers
// until ctx is done. Tasks still running when ctx expires are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.stop()
		return nil
	case <-ctx.Done():
		d.stop()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) startWorker() {
	defer d.wg.Done()
	for task := range d.queue {
		d.execute(task)
	}
}

func (d *Dispatcher) execute(task Task) {
	logger := log.With().Str("task", task.Name).Logger()
	if task.TenantID != uuid.Nil {
		logger = logger.With().Str("tenant_id", task.TenantID.String()).Logger()
	}

	ctx, cancel := context.WithTimeout(logger.WithContext(d.base), d.opts.TaskTimeout)
	defer cancel()

	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return tenancy.Run(ctx, task.TenantID, task.Run)
	}()

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Background task failed")
		return
	}
	if e := logger.Debug(); e.Enabled() {
		e.Dur("elapsed", time.Since(start)).Msg("Background task finished")
	}
}
