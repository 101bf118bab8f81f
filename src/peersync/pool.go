package peersync

import (
	"context"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"golang.org/x/sync/semaphore"
)

// PoolPolicy decides what happens to a sync started while the pool is
// full.
type PoolPolicy int

const (
	// PoolQueue waits for a free slot.
	PoolQueue PoolPolicy = iota
	// PoolReject fails immediately with ErrPoolExhausted.
	PoolReject
)

func (p PoolPolicy) String() string {
	switch p {
	case PoolQueue:
		return "queue"
	case PoolReject:
		return "reject"
	default:
		return "unknown"
	}
}

// pool bounds the number of concurrent syncs.
type pool struct {
	sem    *semaphore.Weighted
	policy PoolPolicy
}

func newPool(size int, policy PoolPolicy) *pool {
	if size < 1 {
		size = 1
	}
	return &pool{
		sem:    semaphore.NewWeighted(int64(size)),
		policy: policy,
	}
}

func (p *pool) acquire(ctx context.Context) error {
	if p.policy == PoolReject {
		if !p.sem.TryAcquire(1) {
			return ErrPoolExhausted
		}
		return nil
	}
	return p.sem.Acquire(ctx, 1)
}

func (p *pool) release() {
	p.sem.Release(1)
}

// clockTimer drives backoff waits with a common.Clock.
type clockTimer struct {
	clock common.Clock
	ch    <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) {
	t.ch = t.clock.After(d)
}

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time {
	return t.ch
}
