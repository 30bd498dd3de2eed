package insights

import (
	"context"
	"sync"
)

// LoadState is the lifecycle of a Collection.
type LoadState int

const (
	Idle LoadState = iota
	Loading
	Loaded
	Errored
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	default:
		return "idle"
	}
}

// Collection holds one read-only view fetched from the server. Only the
// result of the most recent Load is kept.
type Collection[T any] struct {
	mu    sync.Mutex
	gen   uint64
	state LoadState
	data  T
	err   error
}

// Snapshot is a copy of a Collection's state.
type Snapshot[T any] struct {
	State LoadState
	Data  T
	Err   error
}

// Load runs fetch and stores its result unless a newer Load or a Reset
// happened meanwhile. It reports whether the result was applied.
func (c *Collection[T]) Load(ctx context.Context, fetch func(context.Context) (T, error)) (bool, error) {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.state = Loading
	c.err = nil
	c.mu.Unlock()

	data, err := fetch(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || ctx.Err() != nil {
		return false, err
	}
	if err != nil {
		c.state = Errored
		c.err = err
		return true, err
	}
	c.state = Loaded
	c.data = data
	return true, nil
}

// Reset discards data and invalidates loads in flight.
func (c *Collection[T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	c.gen++
	c.state = Idle
	c.data = zero
	c.err = nil
}

// Get returns the current state.
func (c *Collection[T]) Get() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot[T]{State: c.state, Data: c.data, Err: c.err}
}
