// Package notify delivers staff notifications for lifecycle events over
// HTTP, spreading load round-robin across healthy endpoints.
package notify

import (
	"context"
	"errors"
	"sync/atomic"
)

var (
	ErrNoHealthy = errors.New("no healthy notifiers")
	ErrNoAcquire = errors.New("notifier not acquired")
)

type Dispatcher struct {
	notifiers         []Notifier
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

func NewDispatcher(ns []Notifier, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	return &Dispatcher{notifiers: ns, maxAttempts: maxAttempts}
}

// Enabled is false when no notifier is configured; Notify is then a no-op.
func (d *Dispatcher) Enabled() bool { return len(d.notifiers) > 0 }

func (d *Dispatcher) selectNotifier() (Notifier, error) {
	healthy := make([]Notifier, 0, len(d.notifiers))
	for _, n := range d.notifiers {
		if n.Ready() {
			healthy = append(healthy, n)
		}
	}
	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	return healthy[int((x-1)%uint64(len(healthy)))], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, n Notification) error {
	p, err := d.selectNotifier()
	if err != nil {
		return err
	}
	if !p.Acquire() {
		return ErrNoAcquire
	}
	return p.Notify(ctx, n)
}

// Notify tries up to maxAttempts notifiers and returns the last error.
func (d *Dispatcher) Notify(ctx context.Context, n Notification) error {
	if !d.Enabled() {
		return nil
	}
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.tryOnce(ctx, n)
		if err == nil {
			return nil
		}
		last = err
	}
	return last
}
