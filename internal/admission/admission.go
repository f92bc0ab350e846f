// Package admission bounds how many connections to a backend scope may be
// in flight at once. Every orchestrator instance resolving to the same scope
// key shares one capacity pool, so three models pointed at the same
// endpoint/account split the pool rather than each getting the full
// allocation.
package admission

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Key identifies a capacity pool: the adapter family plus the connection
// key the adapter scopes itself by (account, endpoint, or "default").
type Key struct {
	Family        string
	ConnectionKey string
}

// Controller maps scope keys to shared semaphores. The pool for a key is
// created on first acquisition with the capacity requested then; later
// acquisitions with a different capacity reuse the existing pool unchanged
// (first-creation-wins).
type Controller struct {
	mu    sync.Mutex
	pools map[Key]*semaphore.Weighted
}

func NewController() *Controller {
	return &Controller{pools: make(map[Key]*semaphore.Weighted)}
}

// Acquire blocks until a slot in the key's pool is free and returns a
// release function. The caller must invoke release on every exit path of
// the guarded region.
func (c *Controller) Acquire(ctx context.Context, key Key, capacity int) (func(), error) {
	if capacity < 1 {
		capacity = 1
	}

	c.mu.Lock()
	pool, ok := c.pools[key]
	if !ok {
		pool = semaphore.NewWeighted(int64(capacity))
		c.pools[key] = pool
	}
	c.mu.Unlock()

	if err := pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { pool.Release(1) })
	}, nil
}

var defaultController = NewController()

// Default returns the process-wide controller shared by all models.
func Default() *Controller {
	return defaultController
}
