package store

import (
	"context"
	"sync"
)

// newWatch runs the notify-then-reread pump shared by both backends.
// The first delivery is the current state; afterwards each kick
// triggers a re-read. Kicks arriving while a delivery is blocked
// coalesce, so the final state always goes out. Read errors skip the
// delivery and wait for the next kick rather than terminating the
// watch. release frees the backend-side listener on cancel; it fires
// on context cancellation too, not only through the CancelFunc.
func newWatch[T any](ctx context.Context, read func(context.Context) (T, error), kick <-chan struct{}, release func()) (<-chan T, CancelFunc) {
	out := make(chan T, 1)
	done := make(chan struct{})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			release()
		})
	}

	go func() {
		defer close(out)
		defer cancel()
		for {
			if value, err := read(ctx); err == nil {
				select {
				case out <- value:
				case <-done:
					return
				}
			}
			select {
			case <-kick:
				select {
				case <-done:
					return
				default:
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel
}

// MapWatch layers a transform onto a watch channel, preserving the
// delivery contract. The returned cancel also unblocks a transform
// goroutine stuck on a delivery the consumer stopped draining, so a
// consumer that walks away mid-delivery leaks nothing.
func MapWatch[In, Out any](in <-chan In, cancel CancelFunc, transform func(In) Out) (<-chan Out, CancelFunc) {
	out := make(chan Out, 1)
	done := make(chan struct{})

	go func() {
		defer close(out)
		for value := range in {
			select {
			case out <- transform(value):
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() { close(done) })
		cancel()
	}
}
