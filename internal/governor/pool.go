package governor

import (
	"context"
	"sync"

	ckrerrors "ckr/internal/errors"
)

// Task is one unit of work executed by the pool.
type Task func(ctx context.Context) error

// Pool runs tasks on a fixed number of workers. The size is decided up
// front, typically from RecommendedWorkers; the pool never grows.
type Pool struct {
	size int

	mu      sync.Mutex
	pending []Task
	errs    []error
	started bool
}

// NewPool creates a pool with the given worker count. A non-positive
// size is a hard error: a silently empty pool would stall every caller.
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		return nil, ckrerrors.New(ckrerrors.InvalidPoolSize, "worker pool size must be positive", nil)
	}
	return &Pool{size: size}, nil
}

// Size returns the worker count.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues a task. Submissions after Run has started are rejected.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ckrerrors.New(ckrerrors.InternalError, "pool already running", nil)
	}
	p.pending = append(p.pending, task)
	return nil
}

// Run starts the workers, drains every queued task, and blocks until
// the queue is exhausted or ctx is cancelled. Task errors are collected,
// not fatal; a ctx error is returned.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ckrerrors.New(ckrerrors.InternalError, "pool already running", nil)
	}
	p.started = true
	tasks := p.pending
	p.pending = nil
	p.mu.Unlock()

	queue := make(chan Task, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range queue {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := task(ctx); err != nil {
					p.mu.Lock()
					p.errs = append(p.errs, err)
					p.mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	return ctx.Err()
}

// Errors returns the task errors collected during Run.
func (p *Pool) Errors() []error {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]error, len(p.errs))
	copy(out, p.errs)
	return out
}
