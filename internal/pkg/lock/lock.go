// Package lock serializes work per user within one process.
package lock

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// UserLock hands out one exclusive slot per user ID. Entries are dropped as
// soon as nobody holds or waits for them.
type UserLock struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewUserLock creates an empty UserLock.
func NewUserLock() *UserLock {
	return &UserLock{entries: make(map[int64]*entry)}
}

func (ul *UserLock) ref(userID int64) *entry {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	e, ok := ul.entries[userID]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		ul.entries[userID] = e
	}
	e.refs++
	return e
}

func (ul *UserLock) unref(userID int64, e *entry) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(ul.entries, userID)
	}
}

// Acquire blocks until the user's slot is free or ctx is done. The returned
// release func must be called exactly once.
func (ul *UserLock) Acquire(ctx context.Context, userID int64) (release func(), err error) {
	e := ul.ref(userID)
	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				ul.unref(userID, e)
			})
		}, nil
	case <-ctx.Done():
		ul.unref(userID, e)
		return nil, ErrLockTimeout
	}
}

// TryAcquire takes the slot only if it is free right now.
func (ul *UserLock) TryAcquire(userID int64) (release func(), ok bool) {
	e := ul.ref(userID)
	select {
	case e.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-e.sem
				ul.unref(userID, e)
			})
		}, true
	default:
		ul.unref(userID, e)
		return nil, false
	}
}

// WithLock runs fn while holding the user's slot, waiting at most timeout.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, timeout time.Duration, fn func() error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	release, err := ul.Acquire(ctx, userID)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

// Held reports whether the user's slot is taken. Point-in-time only.
func (ul *UserLock) Held(userID int64) bool {
	ul.mu.Lock()
	e, ok := ul.entries[userID]
	ul.mu.Unlock()
	return ok && len(e.sem) == 1
}

// size returns the number of live entries.
func (ul *UserLock) size() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.entries)
}
