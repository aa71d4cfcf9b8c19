package systems

import (
	"context"
	"sync"
)

// Future holds the result of a job. It resolves on the worker that ran the job,
// so polling does not depend on JobSystem.Update.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Go runs fn on the job system and returns its future.
func Go[T any](js *JobSystem, name string, fn func() (T, error)) *Future[T] {
	f := newFuture[T]()
	err := js.Submit(JobTask{
		Name:    name,
		JobType: JOB_TYPE_RESOURCE_LOAD,
		OnStart: func(interface{}) (interface{}, error) {
			v, err := fn()
			f.resolve(v, err)
			return v, err
		},
	})
	if err != nil {
		var zero T
		f.resolve(zero, err)
	}
	return f
}

// Poll never blocks. The boolean reports whether the job has finished.
func (f *Future[T]) Poll() (T, bool, error) {
	select {
	case <-f.done:
		return f.value, true, f.err
	default:
		var zero T
		return zero, false, nil
	}
}

func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the job finished or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
