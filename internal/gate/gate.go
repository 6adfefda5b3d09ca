// Package gate bounds the number of in-flight probe jobs. Waiters are
// admitted in strict FIFO order.
package gate

import (
	"container/list"
	"context"
	"sync"
)

// Gate is a fair concurrency limiter. A limit ≤ 0 means unlimited.
type Gate struct {
	limit int

	mu      sync.Mutex
	active  int
	waiters *list.List
}

// New creates a gate admitting at most limit concurrent calls.
func New(limit int) *Gate {
	return &Gate{limit: limit, waiters: list.New()}
}

// Do runs fn once the gate admits the caller, releasing the slot when
// fn returns. The context aborts waiting, not a running fn.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()
	return fn()
}

// Active returns the number of calls currently holding a slot.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// Pending returns the number of callers queued for a slot.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiters.Len()
}

func (g *Gate) acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.limit <= 0 || (g.active < g.limit && g.waiters.Len() == 0) {
		g.active++
		g.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	elem := g.waiters.PushBack(ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		select {
		case <-ready:
			// Admitted between ctx firing and taking the lock; hand the
			// slot to the next waiter instead of using it.
			g.releaseLocked()
			g.mu.Unlock()
		default:
			g.waiters.Remove(elem)
			g.mu.Unlock()
		}
		return ctx.Err()
	}
}

func (g *Gate) release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked()
}

func (g *Gate) releaseLocked() {
	if front := g.waiters.Front(); front != nil {
		g.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	g.active--
}
