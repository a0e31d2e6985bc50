package live

import (
	"context"
	"sync"

	"github.com/KevinKickass/OpenLabManager/internal/types"
)

// QueryFunc loads the data a live query exposes.
type QueryFunc[T any] func(ctx context.Context) (T, error)

// Result is one emission of a watched query.
type Result[T any] struct {
	Value T
	Err   error
}

// Query caches the result of fn and re-runs it when one of its tables
// has been invalidated since the last successful run.
type Query[T any] struct {
	bus    *Bus
	fn     QueryFunc[T]
	tables []types.Table

	mu     sync.Mutex
	value  T
	ran    bool
	seen   map[types.Table]uint64
	closed chan struct{}
	once   sync.Once
}

func NewQuery[T any](bus *Bus, fn QueryFunc[T], tables ...types.Table) *Query[T] {
	return &Query[T]{
		bus:    bus,
		fn:     fn,
		tables: tables,
		closed: make(chan struct{}),
	}
}

// Current returns the latest result, re-running the query first when any
// of its tables moved. Any write that committed before the call is
// visible in the returned value.
func (q *Query[T]) Current(ctx context.Context) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ran && !q.bus.changedSince(q.seen) {
		return q.value, nil
	}

	// Snapshot before running: a write racing with fn leaves the snapshot
	// behind and forces another run next time.
	snapshot := q.bus.Versions(q.tables...)
	value, err := q.fn(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	q.value = value
	q.seen = snapshot
	q.ran = true
	return value, nil
}

// Peek returns the cached result without running the query. ok is false
// until the first successful run.
func (q *Query[T]) Peek() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.value, q.ran
}

// Watch emits the current result and then a fresh one after every
// relevant invalidation, until ctx is done or the query is closed.
// Results computed after cancellation are dropped.
func (q *Query[T]) Watch(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T], 1)
	notify, cancel := q.bus.Subscribe(q.tables...)

	go func() {
		defer close(out)
		defer cancel()

		emit := func() bool {
			value, err := q.Current(ctx)
			select {
			case out <- Result[T]{Value: value, Err: err}:
				return true
			case <-ctx.Done():
				return false
			case <-q.closed:
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.closed:
				return
			case <-notify:
				if !emit() {
					return
				}
			}
		}
	}()

	return out
}

// Close stops every watcher of the query.
func (q *Query[T]) Close() {
	q.once.Do(func() { close(q.closed) })
}
