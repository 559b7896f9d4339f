package streaming

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var ErrServerBusy = errors.New("server busy: all generation workers are occupied")

// Pool bounds the number of concurrent engine calls across all connections.
type Pool struct {
	sem          *semaphore.Weighted
	size         int
	queueTimeout time.Duration
	inUse        atomic.Int64
	waiting      atomic.Int64
}

func NewPool(size int, queueTimeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		sem:          semaphore.NewWeighted(int64(size)),
		size:         size,
		queueTimeout: queueTimeout,
	}
}

// Acquire waits for a free worker. It returns ErrServerBusy once the queue timeout
// elapses, or the context error if ctx ends first. The returned func releases the slot.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if p.sem.TryAcquire(1) {
		return p.acquired(), nil
	}

	waitCtx := ctx
	if p.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.queueTimeout)
		defer cancel()
	}

	p.waiting.Add(1)
	err := p.sem.Acquire(waitCtx, 1)
	p.waiting.Add(-1)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrServerBusy
	}
	return p.acquired(), nil
}

func (p *Pool) acquired() func() {
	p.inUse.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			p.inUse.Add(-1)
			p.sem.Release(1)
		}
	}
}

func (p *Pool) Size() int {
	return p.size
}

func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

func (p *Pool) Waiting() int {
	return int(p.waiting.Load())
}
