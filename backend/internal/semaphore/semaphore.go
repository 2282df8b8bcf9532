package semaphore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	xsem "golang.org/x/sync/semaphore"
)

const DefaultSize = 100

var (
	ErrAcquireTimeout = errors.New("semaphore acquire reached time limit")
	ErrNotAcquired    = errors.New("semaphore release without acquire")
)

// Control bounds the number of in-flight calls.
type Control struct {
	w    *xsem.Weighted
	size int
	held atomic.Int64
}

func New(size int) *Control {
	if size <= 0 {
		size = DefaultSize
	}
	return &Control{w: xsem.NewWeighted(int64(size)), size: size}
}

// Acquire blocks until a slot is free or ctx is done.
func (s *Control) Acquire(ctx context.Context) error {
	if err := s.w.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", ErrAcquireTimeout, err)
	}
	s.held.Add(1)
	return nil
}

// Release frees one slot. Releasing more than was acquired is reported
// instead of panicking.
func (s *Control) Release() error {
	for {
		n := s.held.Load()
		if n <= 0 {
			return ErrNotAcquired
		}
		if s.held.CompareAndSwap(n, n-1) {
			s.w.Release(1)
			return nil
		}
	}
}

// InUse reports the number of held slots.
func (s *Control) InUse() int { return int(s.held.Load()) }

func (s *Control) Size() int { return s.size }
