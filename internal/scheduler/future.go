package scheduler

import (
	"context"
	"sync"
)

// Future is the pending outcome of a submitted task. It is resolved exactly
// once, with either a result or an error.
type Future[R any] struct {
	taskID string
	once   sync.Once
	done   chan struct{}
	result R
	err    error
}

func newFuture[R any](taskID string) *Future[R] {
	return &Future[R]{taskID: taskID, done: make(chan struct{})}
}

// TaskID is the id of the task this future belongs to.
func (f *Future[R]) TaskID() string { return f.taskID }

// Done is closed once the future is resolved.
func (f *Future[R]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx ends. Giving up on the wait
// does not cancel the task.
func (f *Future[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// resolve reports whether this call settled the future.
func (f *Future[R]) resolve(result R, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}
