// Package persist runs non-critical remote writes in the background.
//
// Callers apply their local state change first and then enqueue the write.
// A failed write is logged and dropped; nothing is rolled back. Tasks run one
// at a time in submission order, so the last write submitted is the last one
// the service sees.
package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("persist queue closed")

// Task is one deferred remote write.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Queue executes tasks on a single worker goroutine.
type Queue struct {
	tasks chan Task
	ctx   context.Context
	stop  context.CancelFunc
	done  chan struct{}

	// closing is closed by Close to release Enqueue calls blocked on a
	// full buffer. senders counts Enqueue calls between the closed check
	// and the send; tasks is closed only after they are gone.
	closing   chan struct{}
	senders   sync.WaitGroup
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool

	onError func(Task, error)
}

// Option configures a Queue.
type Option func(*Queue)

// WithErrorHook installs a callback invoked after a task fails, in addition
// to the log line.
func WithErrorHook(fn func(Task, error)) Option {
	return func(q *Queue) { q.onError = fn }
}

// New starts a queue with room for size pending tasks.
func New(size int, opts ...Option) *Queue {
	if size <= 0 {
		size = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:   make(chan Task, size),
		ctx:     ctx,
		stop:    cancel,
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for t := range q.tasks {
		if err := t.Run(q.ctx); err != nil {
			slog.Warn("background write failed", "task", t.Name, "error", err)
			if q.onError != nil {
				q.onError(t, err)
			}
			continue
		}
		slog.Debug("background write done", "task", t.Name)
	}
}

// Enqueue schedules t. It blocks only while the buffer is full, and returns
// ErrClosed if the queue is closed while it waits.
func (q *Queue) Enqueue(t Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.senders.Add(1)
	q.mu.Unlock()
	defer q.senders.Done()

	select {
	case q.tasks <- t:
		return nil
	case <-q.closing:
		return ErrClosed
	}
}

// Close stops accepting tasks and waits for the pending ones to finish or
// for ctx to expire, in which case in-flight work is cancelled.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.closing)
	}
	q.mu.Unlock()
	q.closeOnce.Do(func() {
		q.senders.Wait()
		close(q.tasks)
	})

	select {
	case <-q.done:
		q.stop()
		return nil
	case <-ctx.Done():
		q.stop()
		<-q.done
		return ctx.Err()
	}
}
