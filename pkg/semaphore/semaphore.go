// Package semaphore bounds how many relay sessions run at once: the
// accept loop takes a slot before spawning a session and gives it back
// when the session returns.
package semaphore

import (
	"context"
	"fmt"
	"time"
)

// Semaphore is a counting semaphore with a bounded wait. A full Semaphore
// makes Acquire block until a slot frees up, the acquire timeout expires,
// or the caller's context is done.
type Semaphore struct {
	slots   chan struct{}
	timeout time.Duration
}

// New builds a Semaphore with capacity slots, all free, and the given
// acquire timeout.
func New(capacity int, timeout time.Duration) *Semaphore {
	return &Semaphore{
		slots:   make(chan struct{}, capacity),
		timeout: timeout,
	}
}

// Acquire takes a slot, blocking until one is free. It fails once the
// acquire timeout expires or ctx is done, whichever comes first; the
// context's own error wins when both race.
func (s *Semaphore) Acquire(ctx context.Context) error {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("semaphore: no session slot freed within %s", s.timeout)
	}
}

// Release frees a slot taken by Acquire. Releasing more than was acquired
// is programmer error and panics.
func (s *Semaphore) Release() {
	select {
	case <-s.slots:
	default:
		panic("semaphore: Release without matching Acquire")
	}
}

// InUse reports how many slots are currently held.
func (s *Semaphore) InUse() int {
	return len(s.slots)
}

// Cap reports the total number of slots.
func (s *Semaphore) Cap() int {
	return cap(s.slots)
}
