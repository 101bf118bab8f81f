package peersync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/ledger"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/peers"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Config holds the sync parameters.
type Config struct {
	// SampleSize is the number of peers queried in a round.
	SampleSize int
	// QuorumThreshold is the fraction of the contacted peers that the
	// winning answer must strictly exceed.
	QuorumThreshold float64
	MaxSyncPoolSize int
	PoolPolicy      PoolPolicy
	// RequestTimeout is the deadline of one round.
	RequestTimeout time.Duration
	// RetryAttempts is the number of retries after the first round.
	RetryAttempts    int
	RetryBackoffBase time.Duration
}

// DefaultConfig returns the default sync parameters.
func DefaultConfig() Config {
	return Config{
		SampleSize:       5,
		QuorumThreshold:  0.5,
		MaxSyncPoolSize:  1,
		PoolPolicy:       PoolQueue,
		RequestTimeout:   5 * time.Second,
		RetryAttempts:    3,
		RetryBackoffBase: 500 * time.Millisecond,
	}
}

// Requester sends a request to a peer. The response is expected to come back
// through HandleResponse under the same correlation id, within ttl.
type Requester interface {
	Request(peerID uint32, cid common.CorrelationID, req net.Payload, ttl time.Duration) error
}

// PeerSampler is the view of the address book used to pick the peers of a
// round.
type PeerSampler interface {
	SamplePeers(n int, exclude ...uint32) []*peers.Peer
}

// HeightResult is the outcome of a delta height round.
type HeightResult struct {
	Index ledger.DeltaIndex
	// Count is the number of peers that reported Index.
	Count int
	// Reputation is the sum of their scores.
	Reputation int
	Contacted  int
}

// DeltaIndexScore is the winning answer of a delta history round.
type DeltaIndexScore struct {
	// Score is the number of peers that reported DeltaIndexes.
	Score        int
	Reputation   int
	Contacted    int
	DeltaIndexes []ledger.DeltaIndex
}

// Manager runs sync rounds against the node's peers.
type Manager struct {
	conf      Config
	requester Requester
	book      PeerSampler
	scores    ScoreSource
	clock     common.Clock
	pool      *pool

	roundsL sync.Mutex
	rounds  map[common.CorrelationID]*round

	heightL  sync.Mutex
	accepted ledger.DeltaIndex
	raisedCh chan struct{}
	stalled  bool

	subL    sync.Mutex
	subs    map[int]chan DeltaIndexScore
	nextSub int
	last    *DeltaIndexScore

	closeOnce  sync.Once
	shutdownCh chan struct{}

	logger  *logrus.Entry
	metrics *Metrics
}

// NewManager creates a sync Manager.
func NewManager(
	conf Config,
	requester Requester,
	book PeerSampler,
	scores ScoreSource,
	clock common.Clock,
	logger *logrus.Entry,
	metrics *Metrics,
) *Manager {

	if clock == nil {
		clock = common.NewRealClock()
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if metrics == nil {
		metrics = NopMetrics()
	}

	return &Manager{
		conf:       conf,
		requester:  requester,
		book:       book,
		scores:     scores,
		clock:      clock,
		pool:       newPool(conf.MaxSyncPoolSize, conf.PoolPolicy),
		rounds:     make(map[common.CorrelationID]*round),
		raisedCh:   make(chan struct{}),
		subs:       make(map[int]chan DeltaIndexScore),
		shutdownCh: make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
}

// GetDeltaHeight asks a sample of peers for their latest delta index and
// returns the answer backed by a quorum. The accepted height is raised to
// the result if it is higher.
func (m *Manager) GetDeltaHeight(ctx context.Context) (*HeightResult, error) {
	var res *HeightResult

	err := m.sync(ctx, func() error {
		r, err := m.heightRound(ctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.accept(res.Index)

	return res, nil
}

// GetDeltaIndexRangeFromPeers asks a sample of peers for the delta indexes
// [height, height+count) and returns the sequence backed by a quorum. The
// result is also published to the ScoredDeltaIndexRange subscribers. An empty
// or overflowing range fails with ErrInvalidRange before any peer is asked.
func (m *Manager) GetDeltaIndexRangeFromPeers(ctx context.Context, height, count uint64) (*DeltaIndexScore, error) {
	if count == 0 || height+count < height {
		return nil, fmt.Errorf("%w: [%d, %d+%d)", ErrInvalidRange, height, height, count)
	}

	var res *DeltaIndexScore

	err := m.sync(ctx, func() error {
		r, err := m.rangeRound(ctx, height, count)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.publish(res)

	return res, nil
}

// sync runs op in a pool slot, retrying it with an exponential backoff.
func (m *Manager) sync(ctx context.Context, op func() error) error {
	select {
	case <-m.shutdownCh:
		return ErrClosed
	default:
	}

	if err := m.pool.acquire(ctx); err != nil {
		if errors.Is(err, ErrPoolExhausted) {
			m.metrics.PoolRejected.Inc()
			m.logger.Debug("Sync pool exhausted")
		}
		return err
	}
	defer m.pool.release()

	m.metrics.InFlight.Inc()
	defer m.metrics.InFlight.Dec()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.conf.RetryBackoffBase
	b.MaxElapsedTime = 0
	b.Clock = m.clock

	attempts := 0
	err := backoff.RetryNotifyWithTimer(
		func() error {
			attempts++
			err := op()
			if err != nil && (ctx.Err() != nil || errors.Is(err, ErrClosed)) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.conf.RetryAttempts)), ctx),
		func(err error, next time.Duration) {
			m.logger.WithFields(logrus.Fields{
				"attempt": attempts,
				"next":    next,
				"error":   err,
			}).Debug("Sync round failed, retrying")
		},
		&clockTimer{clock: m.clock},
	)

	if err == nil {
		m.setStalled(false)
		return nil
	}

	if ctx.Err() != nil || errors.Is(err, ErrClosed) {
		return err
	}

	m.setStalled(true)
	return fmt.Errorf("%w after %d attempts: %w", ErrSyncStalled, attempts, err)
}

func (m *Manager) heightRound(ctx context.Context) (*HeightResult, error) {
	r, contacted := m.startRound(&net.DeltaHeightRequest{})
	defer m.release(r)

	if contacted == 0 {
		m.metrics.Rounds.WithLabelValues("height", "no_peers").Inc()
		return nil, ErrNoPeers
	}

	key := func(p net.Payload) (ledger.DeltaIndex, bool) {
		resp, ok := p.(*net.DeltaHeightResponse)
		if !ok {
			return ledger.DeltaIndex{}, false
		}
		return resp.Index, true
	}

	g, err := collect(ctx, m, r, contacted, key, lessIndex)
	m.metrics.Rounds.WithLabelValues("height", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	return &HeightResult{
		Index:      g.Key,
		Count:      g.Count,
		Reputation: g.Reputation,
		Contacted:  contacted,
	}, nil
}

func (m *Manager) rangeRound(ctx context.Context, height, count uint64) (*DeltaIndexScore, error) {
	r, contacted := m.startRound(&net.DeltaHistoryRequest{Height: height, Range: count})
	defer m.release(r)

	if contacted == 0 {
		m.metrics.Rounds.WithLabelValues("history", "no_peers").Inc()
		return nil, ErrNoPeers
	}

	sequences := make(map[string][]ledger.DeltaIndex)

	key := func(p net.Payload) (string, bool) {
		resp, ok := p.(*net.DeltaHistoryResponse)
		if !ok || !wellFormed(resp.Indexes, height, count) {
			return "", false
		}
		k := rangeKey(resp.Indexes)
		sequences[k] = resp.Indexes
		return k, true
	}

	g, err := collect(ctx, m, r, contacted, key, lessString)
	m.metrics.Rounds.WithLabelValues("history", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}

	return &DeltaIndexScore{
		Score:        g.Count,
		Reputation:   g.Reputation,
		Contacted:    contacted,
		DeltaIndexes: sequences[g.Key],
	}, nil
}

// wellFormed reports whether indexes is a non-empty run of consecutive
// heights starting at height, no longer than count.
func wellFormed(indexes []ledger.DeltaIndex, height, count uint64) bool {
	if len(indexes) == 0 || uint64(len(indexes)) > count {
		return false
	}
	for i, idx := range indexes {
		if idx.Height != height+uint64(i) {
			return false
		}
	}
	return true
}

// startRound sends req to a sample of peers, and returns the round and the
// number of peers the request reached.
func (m *Manager) startRound(req net.Payload) (*round, int) {
	targets := m.book.SamplePeers(m.conf.SampleSize)
	r := newRound(req.Kind(), len(targets))

	cids := make([]common.CorrelationID, len(targets))
	for i, p := range targets {
		cids[i] = common.NewCorrelationID()
		m.register(r, cids[i], p.ID())
	}

	sent := make([]bool, len(targets))

	var g errgroup.Group
	for i, p := range targets {
		i, p := i, p
		g.Go(func() error {
			err := m.requester.Request(p.ID(), cids[i], req, m.conf.RequestTimeout)
			if err != nil {
				m.logger.WithFields(logrus.Fields{
					"peer":  p.ID(),
					"kind":  req.Kind(),
					"error": err,
				}).Error("Requesting peer")
				return nil
			}
			sent[i] = true
			return nil
		})
	}
	g.Wait()

	contacted := 0
	m.roundsL.Lock()
	for i, ok := range sent {
		if ok {
			contacted++
			continue
		}
		delete(m.rounds, cids[i])
		delete(r.peers, cids[i])
	}
	m.roundsL.Unlock()

	return r, contacted
}

// collect reads the replies of a round until the best answer is decided,
// every contacted peer answered, or the round times out. A partial answer
// that already has a quorum is accepted at the timeout.
func collect[K comparable](
	ctx context.Context,
	m *Manager,
	r *round,
	contacted int,
	key func(net.Payload) (K, bool),
	less func(a, b K) bool,
) (*group[K], error) {

	timeout := m.clock.After(m.conf.RequestTimeout)
	claims := []claim[K]{}
	answered := 0

	for answered < contacted {
		select {
		case rep := <-r.replies:
			answered++
			k, ok := key(rep.payload)
			if !ok {
				m.logger.WithField("peer", rep.peerID).Debug("Ignoring malformed sync response")
				continue
			}
			claims = append(claims, claim[K]{peerID: rep.peerID, key: k})
			if groups := rank(claims, m.scores, less); decided(groups, contacted-answered, contacted, m.conf.QuorumThreshold) {
				return groups[0], nil
			}
		case <-timeout:
			groups := rank(claims, m.scores, less)
			if len(groups) > 0 && quorum(groups[0].Count, contacted, m.conf.QuorumThreshold) {
				return groups[0], nil
			}
			return nil, ErrSyncTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.shutdownCh:
			return nil, ErrClosed
		}
	}

	groups := rank(claims, m.scores, less)
	if len(groups) > 0 && quorum(groups[0].Count, contacted, m.conf.QuorumThreshold) {
		return groups[0], nil
	}
	return nil, ErrQuorumNotReached
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrSyncTimeout):
		return "timeout"
	case errors.Is(err, ErrQuorumNotReached):
		return "no_quorum"
	default:
		return "aborted"
	}
}

// accept raises the accepted index if idx is higher, and wakes the waiters.
func (m *Manager) accept(idx ledger.DeltaIndex) {
	m.heightL.Lock()
	defer m.heightL.Unlock()

	if idx.Height <= m.accepted.Height {
		return
	}

	m.logger.WithFields(logrus.Fields{
		"from": m.accepted.Height,
		"to":   idx.Height,
	}).Info("Accepted delta height")

	m.accepted = idx
	close(m.raisedCh)
	m.raisedCh = make(chan struct{})
	m.metrics.AcceptedHeight.Set(float64(idx.Height))
}

// AcceptedHeight returns the highest delta height accepted from a quorum of
// peers.
func (m *Manager) AcceptedHeight() uint64 {
	m.heightL.Lock()
	defer m.heightL.Unlock()
	return m.accepted.Height
}

// AcceptedIndex returns the delta index behind AcceptedHeight.
func (m *Manager) AcceptedIndex() ledger.DeltaIndex {
	m.heightL.Lock()
	defer m.heightL.Unlock()
	return m.accepted
}

// WaitForDeltaHeight blocks until the accepted height reaches target, the
// context is done, or the manager is closed.
func (m *Manager) WaitForDeltaHeight(ctx context.Context, target uint64) error {
	for {
		m.heightL.Lock()
		if m.accepted.Height >= target {
			m.heightL.Unlock()
			return nil
		}
		raised := m.raisedCh
		m.heightL.Unlock()

		select {
		case <-raised:
		case <-ctx.Done():
			return ctx.Err()
		case <-m.shutdownCh:
			return ErrClosed
		}
	}
}

func (m *Manager) setStalled(stalled bool) {
	m.heightL.Lock()
	defer m.heightL.Unlock()

	if m.stalled == stalled {
		return
	}
	m.stalled = stalled

	if stalled {
		m.metrics.Stalled.Set(1)
		m.logger.Info("Sync stalled")
	} else {
		m.metrics.Stalled.Set(0)
		m.logger.Info("Sync resumed")
	}
}

// Stalled reports whether the last sync exhausted its retries.
func (m *Manager) Stalled() bool {
	m.heightL.Lock()
	defer m.heightL.Unlock()
	return m.stalled
}

// ScoredDeltaIndexRange subscribes to the winning answers of history rounds.
// The last answer published, if any, is delivered immediately. Answers are
// dropped for a subscriber whose buffer is full. The returned function
// cancels the subscription and closes the channel.
func (m *Manager) ScoredDeltaIndexRange(buffer int) (<-chan DeltaIndexScore, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan DeltaIndexScore, buffer)

	m.subL.Lock()
	id := m.nextSub
	m.nextSub++
	if m.last != nil {
		ch <- *m.last
	}
	select {
	case <-m.shutdownCh:
		close(ch)
		m.subL.Unlock()
		return ch, func() {}
	default:
	}
	m.subs[id] = ch
	m.subL.Unlock()

	cancel := func() {
		m.subL.Lock()
		defer m.subL.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}

	return ch, cancel
}

func (m *Manager) publish(s *DeltaIndexScore) {
	m.subL.Lock()
	defer m.subL.Unlock()

	m.last = s
	for _, ch := range m.subs {
		select {
		case ch <- *s:
		default:
			m.logger.Debug("Dropping delta index range for slow subscriber")
		}
	}
}

// Close aborts the rounds in progress, releases the waiters, and closes the
// subscriptions.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.shutdownCh)

		m.subL.Lock()
		for id, ch := range m.subs {
			delete(m.subs, id)
			close(ch)
		}
		m.subL.Unlock()
	})
}
