package peersync

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/crypto/keys"
	"github.com/catalyst-network/catalyst/src/ledger"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/peers"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type answer func(req net.Payload) net.Payload

// fakeNetwork answers requests on behalf of the peers, by calling
// HandleResponse from its own goroutine.
type fakeNetwork struct {
	m *Manager

	l        sync.Mutex
	answers  map[uint32]answer
	requests int
	gate     chan struct{}
	wg       sync.WaitGroup
}

func (f *fakeNetwork) Request(peerID uint32, cid common.CorrelationID, req net.Payload, ttl time.Duration) error {
	f.l.Lock()
	f.requests++
	a := f.answers[peerID]
	gate := f.gate
	f.l.Unlock()

	if a == nil {
		return nil
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if gate != nil {
			<-gate
		}
		if p := a(req); p != nil {
			f.m.HandleResponse(cid, peerID, p)
		}
	}()

	return nil
}

func (f *fakeNetwork) Requests() int {
	f.l.Lock()
	defer f.l.Unlock()
	return f.requests
}

type scoreMap map[uint32]int

func (s scoreMap) ScoreOf(id uint32) int {
	return s[id]
}

func testConfig() Config {
	return Config{
		SampleSize:       5,
		QuorumThreshold:  0.5,
		MaxSyncPoolSize:  1,
		PoolPolicy:       PoolQueue,
		RequestTimeout:   200 * time.Millisecond,
		RetryAttempts:    0,
		RetryBackoffBase: time.Millisecond,
	}
}

func newPeers(t *testing.T, n int) []*peers.Peer {
	res := make([]*peers.Peer, n)
	for i := range res {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		res[i] = peers.NewPeer(keys.PublicKeyHex(&key.PublicKey), fmt.Sprintf("addr%d", i), fmt.Sprintf("peer%d", i))
	}
	return res
}

func newTestManager(t *testing.T, conf Config, ps []*peers.Peer, scores ScoreSource) (*Manager, *fakeNetwork) {
	network := &fakeNetwork{answers: make(map[uint32]answer)}
	book := peers.NewAddressBook(peers.NewPeerSet(ps), 0)
	m := NewManager(conf, network, book, scores, nil, common.NewTestEntry(t, "peersync"), nil)
	network.m = m
	return m, network
}

func index(h uint64) ledger.DeltaIndex {
	return ledger.DeltaIndex{Height: h, Cid: fmt.Sprintf("cid%d", h)}
}

func height(h uint64) answer {
	return func(net.Payload) net.Payload {
		return &net.DeltaHeightResponse{Index: index(h)}
	}
}

// history answers history requests from a ledger.
func history(l ledger.Ledger) answer {
	return func(req net.Payload) net.Payload {
		r, ok := req.(*net.DeltaHistoryRequest)
		if !ok {
			return &net.DeltaHeightResponse{Index: l.LatestIndex()}
		}
		return &net.DeltaHistoryResponse{Indexes: l.DeltaIndexes(r.Height, r.Range)}
	}
}

// forked answers history requests with indexes that disagree on every Cid.
func forked(req net.Payload) net.Payload {
	r := req.(*net.DeltaHistoryRequest)
	res := []ledger.DeltaIndex{}
	for h := r.Height; h < r.Height+r.Range; h++ {
		res = append(res, ledger.DeltaIndex{Height: h, Cid: "fork"})
	}
	return &net.DeltaHistoryResponse{Indexes: res}
}

func TestGetDeltaHeightMajority(t *testing.T) {
	defer leaktest.Check(t)()

	ps := newPeers(t, 5)
	m, network := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	for i, p := range ps {
		if i < 3 {
			network.answers[p.ID()] = height(100)
		} else {
			network.answers[p.ID()] = height(95)
		}
	}

	res, err := m.GetDeltaHeight(context.Background())
	require.NoError(t, err)

	assert.Equal(t, index(100), res.Index)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 5, res.Contacted)
	assert.Equal(t, uint64(100), m.AcceptedHeight())
	assert.Equal(t, index(100), m.AcceptedIndex())
	assert.False(t, m.Stalled())

	network.wg.Wait()
}

func TestGetDeltaHeightTieBrokenByReputation(t *testing.T) {
	ps := newPeers(t, 4)
	scores := scoreMap{
		ps[0].ID(): 1,
		ps[1].ID(): 1,
		ps[2].ID(): 5,
		ps[3].ID(): 5,
	}

	conf := testConfig()
	conf.QuorumThreshold = 0.4
	m, network := newTestManager(t, conf, ps, scores)
	defer m.Close()

	network.answers[ps[0].ID()] = height(100)
	network.answers[ps[1].ID()] = height(100)
	network.answers[ps[2].ID()] = height(95)
	network.answers[ps[3].ID()] = height(95)

	res, err := m.GetDeltaHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(95), res.Index.Height)
	assert.Equal(t, 10, res.Reputation)
}

func TestGetDeltaHeightTieBrokenByHeight(t *testing.T) {
	ps := newPeers(t, 4)

	conf := testConfig()
	conf.QuorumThreshold = 0.4
	m, network := newTestManager(t, conf, ps, nil)
	defer m.Close()

	network.answers[ps[0].ID()] = height(95)
	network.answers[ps[1].ID()] = height(100)
	network.answers[ps[2].ID()] = height(95)
	network.answers[ps[3].ID()] = height(100)

	res, err := m.GetDeltaHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(100), res.Index.Height)
}

func TestGetDeltaHeightQuorumNotReached(t *testing.T) {
	ps := newPeers(t, 4)
	m, network := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	for i, p := range ps {
		network.answers[p.ID()] = height(uint64(90 + i))
	}

	_, err := m.GetDeltaHeight(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncStalled)
	assert.ErrorIs(t, err, ErrQuorumNotReached)
	assert.True(t, m.Stalled())
	assert.Equal(t, uint64(0), m.AcceptedHeight())

	for _, p := range ps {
		network.answers[p.ID()] = height(42)
	}

	_, err = m.GetDeltaHeight(context.Background())
	require.NoError(t, err)
	assert.False(t, m.Stalled(), "a successful sync clears the stalled flag")
}

func TestGetDeltaHeightRetriesThenStalls(t *testing.T) {
	ps := newPeers(t, 5)

	conf := testConfig()
	conf.RequestTimeout = 20 * time.Millisecond
	conf.RetryAttempts = 2
	m, network := newTestManager(t, conf, ps, nil)
	defer m.Close()

	// nobody answers
	_, err := m.GetDeltaHeight(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyncStalled)
	assert.ErrorIs(t, err, ErrSyncTimeout)
	assert.True(t, m.Stalled())
	assert.Equal(t, 15, network.Requests(), "1 attempt and 2 retries to 5 peers")
}

func TestGetDeltaHeightPartialQuorumAtTimeout(t *testing.T) {
	ps := newPeers(t, 5)

	conf := testConfig()
	conf.RequestTimeout = 50 * time.Millisecond
	m, network := newTestManager(t, conf, ps, nil)
	defer m.Close()

	for _, p := range ps[:3] {
		network.answers[p.ID()] = height(7)
	}

	res, err := m.GetDeltaHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.Index.Height)
	assert.Equal(t, 3, res.Count)
}

func TestGetDeltaHeightNoPeers(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), []*peers.Peer{}, nil)
	defer m.Close()

	_, err := m.GetDeltaHeight(context.Background())
	assert.ErrorIs(t, err, ErrNoPeers)
}

func TestAcceptedHeightIsMonotonic(t *testing.T) {
	ps := newPeers(t, 3)
	m, network := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	for _, p := range ps {
		network.answers[p.ID()] = height(100)
	}
	_, err := m.GetDeltaHeight(context.Background())
	require.NoError(t, err)

	for _, p := range ps {
		network.answers[p.ID()] = height(90)
	}
	res, err := m.GetDeltaHeight(context.Background())
	require.NoError(t, err)

	assert.Equal(t, uint64(90), res.Index.Height)
	assert.Equal(t, uint64(100), m.AcceptedHeight(), "accepted height should never decrease")
}

func TestWaitForDeltaHeight(t *testing.T) {
	defer leaktest.Check(t)()

	ps := newPeers(t, 3)
	m, network := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	require.NoError(t, m.WaitForDeltaHeight(context.Background(), 0))

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.WaitForDeltaHeight(context.Background(), 50)
	}()

	for _, p := range ps {
		network.answers[p.ID()] = height(20)
	}
	_, err := m.GetDeltaHeight(context.Background())
	require.NoError(t, err)

	select {
	case err := <-errCh:
		t.Fatalf("WaitForDeltaHeight returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	for _, p := range ps {
		network.answers[p.ID()] = height(60)
	}
	_, err = m.GetDeltaHeight(context.Background())
	require.NoError(t, err)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("WaitForDeltaHeight should have returned")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, m.WaitForDeltaHeight(ctx, 1000))

	network.wg.Wait()
}

func TestWaitForDeltaHeightClose(t *testing.T) {
	m, _ := newTestManager(t, testConfig(), newPeers(t, 1), nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.WaitForDeltaHeight(context.Background(), 10)
	}()

	m.Close()

	select {
	case err := <-errCh:
		assert.Equal(t, ErrClosed, err)
	case <-time.After(time.Second):
		t.Fatalf("WaitForDeltaHeight should return on Close")
	}

	_, err := m.GetDeltaHeight(context.Background())
	assert.Equal(t, ErrClosed, err)
}

func TestGetDeltaIndexRangeFromPeers(t *testing.T) {
	ps := newPeers(t, 5)
	m, network := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	chain := ledger.NewInmemLedgerWithHeight(30)
	for i, p := range ps {
		if i < 3 {
			network.answers[p.ID()] = history(chain)
		} else {
			network.answers[p.ID()] = forked
		}
	}

	early, cancelEarly := m.ScoredDeltaIndexRange(4)
	defer cancelEarly()

	res, err := m.GetDeltaIndexRangeFromPeers(context.Background(), 10, 5)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Score)
	assert.Equal(t, 5, res.Contacted)
	assert.Equal(t, chain.DeltaIndexes(10, 5), res.DeltaIndexes)

	select {
	case s := <-early:
		assert.Equal(t, *res, s)
	case <-time.After(time.Second):
		t.Fatalf("subscriber should receive the winning range")
	}

	late, cancelLate := m.ScoredDeltaIndexRange(1)
	defer cancelLate()
	select {
	case s := <-late:
		assert.Equal(t, *res, s, "a new subscriber should get the last range")
	default:
		t.Fatalf("a new subscriber should get the last range immediately")
	}
}

func TestGetDeltaIndexRangeIgnoresMalformed(t *testing.T) {
	ps := newPeers(t, 3)
	m, network := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	chain := ledger.NewInmemLedgerWithHeight(30)
	network.answers[ps[0].ID()] = history(chain)
	network.answers[ps[1].ID()] = history(chain)
	network.answers[ps[2].ID()] = func(net.Payload) net.Payload {
		// starts at the wrong height
		return &net.DeltaHistoryResponse{Indexes: chain.DeltaIndexes(3, 5)}
	}

	res, err := m.GetDeltaIndexRangeFromPeers(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, uint64(10), res.DeltaIndexes[0].Height)
}

func TestGetDeltaIndexRangeRejectsInvalidRange(t *testing.T) {
	ps := newPeers(t, 3)
	m, network := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	chain := ledger.NewInmemLedgerWithHeight(30)
	for _, p := range ps {
		network.answers[p.ID()] = history(chain)
	}

	_, err := m.GetDeltaIndexRangeFromPeers(context.Background(), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = m.GetDeltaIndexRangeFromPeers(context.Background(), 10, math.MaxUint64)
	assert.ErrorIs(t, err, ErrInvalidRange)

	assert.Equal(t, 0, network.Requests(), "no peer should be asked")
	assert.False(t, m.Stalled())
}

func TestSyncPoolReject(t *testing.T) {
	ps := newPeers(t, 3)

	conf := testConfig()
	conf.MaxSyncPoolSize = 2
	conf.PoolPolicy = PoolReject
	conf.RequestTimeout = 2 * time.Second
	m, network := newTestManager(t, conf, ps, nil)
	defer m.Close()

	chain := ledger.NewInmemLedgerWithHeight(30)
	network.gate = make(chan struct{})
	for _, p := range ps {
		network.answers[p.ID()] = history(chain)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.GetDeltaIndexRangeFromPeers(context.Background(), uint64(i), 5)
		}(i)
	}

	require.Eventually(t, func() bool { return network.Requests() == 6 }, time.Second, time.Millisecond)

	_, err := m.GetDeltaIndexRangeFromPeers(context.Background(), 20, 5)
	assert.Equal(t, ErrPoolExhausted, err, "a third sync should be rejected while two are in flight")
	assert.Equal(t, 6, network.Requests(), "the rejected sync should not contact peers")

	close(network.gate)
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.False(t, m.Stalled(), "a rejected sync is not a stall")
}

func TestSyncPoolQueue(t *testing.T) {
	ps := newPeers(t, 3)

	conf := testConfig()
	conf.MaxSyncPoolSize = 2
	conf.PoolPolicy = PoolQueue
	conf.RequestTimeout = 2 * time.Second
	m, network := newTestManager(t, conf, ps, nil)
	defer m.Close()

	chain := ledger.NewInmemLedgerWithHeight(30)
	network.gate = make(chan struct{})
	for _, p := range ps {
		network.answers[p.ID()] = history(chain)
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.GetDeltaIndexRangeFromPeers(context.Background(), uint64(i), 5)
		}(i)
	}

	require.Eventually(t, func() bool { return network.Requests() == 6 }, time.Second, time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errs[2] = m.GetDeltaIndexRangeFromPeers(context.Background(), 20, 5)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 6, network.Requests(), "the third sync should wait for a free slot")

	close(network.gate)
	wg.Wait()

	assert.Equal(t, 9, network.Requests())
	for i, err := range errs {
		assert.NoError(t, err, "sync %d", i)
	}
}

func TestSyncCancel(t *testing.T) {
	ps := newPeers(t, 3)

	conf := testConfig()
	conf.RequestTimeout = 5 * time.Second
	conf.RetryAttempts = 5
	m, _ := newTestManager(t, conf, ps, nil)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := m.GetDeltaHeight(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrSyncStalled)
	assert.False(t, m.Stalled())
}

func TestHandleResponseUnknown(t *testing.T) {
	ps := newPeers(t, 1)
	m, _ := newTestManager(t, testConfig(), ps, nil)
	defer m.Close()

	assert.False(t, m.HandleResponse(common.NewCorrelationID(), ps[0].ID(), &net.DeltaHeightResponse{}))

	r := newRound(net.KindDeltaHeightRequest, 1)
	cid := common.NewCorrelationID()
	m.register(r, cid, ps[0].ID())

	assert.False(t, m.HandleResponse(cid, ps[0].ID()+1, &net.DeltaHeightResponse{}), "wrong peer")
	assert.False(t, m.HandleResponse(cid, ps[0].ID(), &net.DeltaHistoryResponse{}), "wrong kind")
	assert.True(t, m.HandleResponse(cid, ps[0].ID(), &net.DeltaHeightResponse{}))
	assert.False(t, m.HandleResponse(cid, ps[0].ID(), &net.DeltaHeightResponse{}), "answered twice")
}

func TestRank(t *testing.T) {
	claims := []claim[uint64]{
		{peerID: 1, key: 10},
		{peerID: 2, key: 20},
		{peerID: 3, key: 10},
		{peerID: 4, key: 30},
		{peerID: 5, key: 20},
	}
	scores := scoreMap{1: 1, 2: 3, 3: 1, 4: 100, 5: 3}

	groups := rank(claims, scores, func(a, b uint64) bool { return a < b })
	require.Len(t, groups, 3)

	assert.Equal(t, uint64(20), groups[0].Key)
	assert.Equal(t, 2, groups[0].Count)
	assert.Equal(t, 6, groups[0].Reputation)
	assert.ElementsMatch(t, []uint32{2, 5}, groups[0].Peers)

	assert.Equal(t, uint64(10), groups[1].Key)
	assert.Equal(t, uint64(30), groups[2].Key)

	assert.True(t, quorum(3, 5, 0.5))
	assert.False(t, quorum(2, 4, 0.5))
	assert.False(t, quorum(0, 0, 0.5))

	assert.True(t, decided(groups[:1], 0, 2, 0.5))
	assert.False(t, decided(groups, 1, 5, 0.5))
}
