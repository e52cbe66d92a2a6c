package irq

import (
	"context"
	"sync/atomic"
)

// Waker is the wake signal between interrupt context and the task.
//
// It is a single-consumer notification: Signal may be called from any
// number of handlers and never blocks, Park is called by the one task that
// is waiting for modem progress. A signal that arrives while nobody is
// parked is remembered in the pending flag, so a task that checks its
// condition, then parks, cannot miss it. Spurious wakeups are possible and
// callers re-check their condition after Park returns.
type Waker struct {
	pending atomic.Bool
	ch      chan struct{}
	signals atomic.Uint64
}

func NewWaker() *Waker {
	return &Waker{ch: make(chan struct{}, 1)}
}

// Signal marks the waker pending and releases a parked task.
func (w *Waker) Signal() {
	w.signals.Add(1)
	w.pending.Store(true)
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

// Park blocks until a signal is pending or ctx is done.
func (w *Waker) Park(ctx context.Context) error {
	if w.pending.Swap(false) {
		return nil
	}
	select {
	case <-w.ch:
		w.pending.Store(false)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signals reports how many times Signal has been called.
func (w *Waker) Signals() uint64 {
	return w.signals.Load()
}
