// Package queue provides admission control for remote calls: a FIFO request
// queue that caps the number of simultaneously outstanding tasks and drains
// as slots free.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/sheetsync/sheetsync/pkg/errors"
)

// Task is a queued unit of work. The queue owns it from enqueue until
// completion, at which point the result passes back to the caller.
type Task func(ctx context.Context) (interface{}, error)

// Stats tracks request queue statistics
type Stats struct {
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	MaxActive int    `json:"max_active"`
}

// Config represents request queue configuration
type Config struct {
	// MaxConcurrent caps simultaneously running tasks
	MaxConcurrent int `yaml:"max_concurrent"`
}

type pending struct {
	ctx  context.Context
	task Task
	done chan outcome
}

type outcome struct {
	result interface{}
	err    error
}

// Queue runs at most MaxConcurrent tasks at once and preserves FIFO order
// among tasks still waiting when a slot frees. Completion of one task
// immediately starts the next waiting one; there is no polling.
type Queue struct {
	mu            sync.Mutex
	maxConcurrent int
	active        int
	waiting       []*pending
	closed        bool
	stats         Stats
}

// New creates a request queue.
func New(config Config) *Queue {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 3
	}
	return &Queue{maxConcurrent: config.MaxConcurrent}
}

// Do enqueues task and blocks until it completes or ctx is done. A caller
// abandoning via ctx does not cancel a task that already started; the queue
// offers no explicit cancel API.
func (q *Queue) Do(ctx context.Context, task Task) (interface{}, error) {
	p := &pending{
		ctx:  ctx,
		task: task,
		// Buffered so an abandoned task's completion never blocks the drain
		done: make(chan outcome, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, errors.NewError(errors.ErrCodeQueueClosed, "request queue is closed")
	}
	q.stats.Enqueued++
	if q.active < q.maxConcurrent {
		q.active++
		if q.active > q.stats.MaxActive {
			q.stats.MaxActive = q.active
		}
		q.mu.Unlock()
		go q.run(p)
	} else {
		q.waiting = append(q.waiting, p)
		q.mu.Unlock()
	}

	select {
	case out := <-p.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run executes p and then chains directly into the next waiting task, if
// any, without releasing the slot in between.
func (q *Queue) run(p *pending) {
	for p != nil {
		result, err := q.invoke(p)

		q.mu.Lock()
		if err != nil {
			q.stats.Failed++
		} else {
			q.stats.Completed++
		}
		q.mu.Unlock()

		p.done <- outcome{result: result, err: err}
		p = q.next()
	}
}

func (q *Queue) invoke(p *pending) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.ErrCodeInternalError,
				fmt.Sprintf("task panic: %v", r))
		}
	}()
	return p.task(p.ctx)
}

func (q *Queue) next() *pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.waiting) > 0 {
		p := q.waiting[0]
		q.waiting = q.waiting[1:]
		return p
	}

	q.active--
	return nil
}

// Active returns the number of currently running tasks.
func (q *Queue) Active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Waiting returns the number of tasks waiting for a slot.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Stats returns current queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// Close rejects new tasks. Running and waiting tasks still complete.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
