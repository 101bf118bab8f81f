package peersync

import "errors"

var (
	// ErrSyncTimeout is returned when a round ends before every contacted
	// peer answered and without a quorum.
	ErrSyncTimeout = errors.New("sync round timed out")

	// ErrQuorumNotReached is returned when every contacted peer answered but
	// no answer is backed by a quorum.
	ErrQuorumNotReached = errors.New("quorum not reached")

	// ErrNoPeers is returned when no peer could be contacted.
	ErrNoPeers = errors.New("no peers to sync with")

	// ErrPoolExhausted is returned when the sync pool is full and the pool
	// policy is PoolReject.
	ErrPoolExhausted = errors.New("sync pool exhausted")

	// ErrSyncStalled wraps the last error of a sync whose retries are
	// exhausted.
	ErrSyncStalled = errors.New("sync stalled")

	// ErrInvalidRange is returned when a delta index range is empty or
	// overflows.
	ErrInvalidRange = errors.New("invalid delta index range")

	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("sync manager closed")
)
