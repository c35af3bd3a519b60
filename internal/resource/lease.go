package resource

import (
	"context"
	"sync"
)

// Lease serializes access to a singleton resource. Capacity is one; waiters
// are granted the lease strictly in arrival order. A waiter whose context
// ends before its turn leaves the queue without disturbing the order of the
// others.
type Lease struct {
	mu      sync.Mutex
	holder  string
	waiters []*leaseWaiter
}

type leaseWaiter struct {
	id      string
	granted chan struct{}
}

// NewLease creates an unheld lease.
func NewLease() *Lease {
	return &Lease{}
}

// Acquire blocks until the caller holds the lease or ctx is done. On success
// the returned release function must be called exactly once; calling it more
// than once is a no-op.
func (l *Lease) Acquire(ctx context.Context, id string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.holder == "" && len(l.waiters) == 0 {
		l.holder = id
		l.mu.Unlock()
		return l.releaseFunc(), nil
	}

	waiter := &leaseWaiter{id: id, granted: make(chan struct{})}
	l.waiters = append(l.waiters, waiter)
	l.mu.Unlock()

	select {
	case <-waiter.granted:
		return l.releaseFunc(), nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-waiter.granted:
			// Promoted between ctx.Done and taking the lock; pass the
			// lease straight to the next waiter.
			l.promoteNextLocked()
			l.mu.Unlock()
			return nil, ctx.Err()
		default:
		}
		for i, w := range l.waiters {
			if w == waiter {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				break
			}
		}
		l.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (l *Lease) releaseFunc() func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.promoteNextLocked()
		})
	}
}

func (l *Lease) promoteNextLocked() {
	if len(l.waiters) == 0 {
		l.holder = ""
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	l.holder = next.id
	close(next.granted)
}

// Holder returns the id currently holding the lease, or empty.
func (l *Lease) Holder() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// Waiting returns the number of queued acquirers.
func (l *Lease) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}

// AcquireGPU takes the singleton GPU lease for the given job. On a host with
// no accelerator there is nothing to serialize and the returned release is a
// no-op. Blocks in FIFO order behind other holders; cancellable via ctx.
func (g *Guard) AcquireGPU(ctx context.Context, jobID string) (func(), error) {
	if !g.hw.HasGPU() {
		return func() {}, nil
	}
	return g.lease.Acquire(ctx, jobID)
}
