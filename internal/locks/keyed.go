// Package locks provides one mutual-exclusion section per key with a
// context-bounded acquire. Entries are reference counted and dropped once no
// holder or waiter remains, so idle auctions cost nothing.
package locks

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

type entry struct {
	sem  *semaphore.Weighted
	refs int
}

// Keyed serializes callers per key
type Keyed struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewKeyed creates an empty keyed lock
func NewKeyed() *Keyed {
	return &Keyed{entries: make(map[string]*entry)}
}

// Lock blocks until the section for key is free or ctx is done. The returned
// unlock must be called exactly once.
func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		k.release(key, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			k.release(key, e)
		})
	}, nil
}

func (k *Keyed) release(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len returns the number of keys currently held or awaited
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
