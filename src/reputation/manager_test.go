package reputation

import (
	"io/ioutil"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, store Store) *Manager {
	m, err := NewManager(DefaultPolicy(), store, common.NewTestEntry(t, "reputation"), nil)
	require.NoError(t, err)
	m.Start()
	return m
}

// collect reads n events from ch or fails the test.
func collect(t *testing.T, ch <-chan Event, n int) []Event {
	res := make([]Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(res) < n {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "subscription closed early")
			res = append(res, ev)
		case <-timeout:
			t.Fatalf("received %d events, expected %d", len(res), n)
		}
	}
	return res
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())
	assert.NoError(t, Policy{Timely: 1, Timeout: 2, Invalid: 3}.Validate())

	assert.Error(t, Policy{Timely: 0, Timeout: 2, Invalid: 3}.Validate())
	assert.Error(t, Policy{Timely: 2, Timeout: 2, Invalid: 3}.Validate())
	assert.Error(t, Policy{Timely: 1, Timeout: 3, Invalid: 3}.Validate())
	assert.Error(t, Policy{Timely: 1, Timeout: 3, Invalid: 2}.Validate())

	_, err := NewManager(Policy{Timely: 5, Timeout: 1, Invalid: 20}, nil, nil, nil)
	assert.Error(t, err, "NewManager should reject an invalid policy")
}

func TestPolicyDelta(t *testing.T) {
	p := Policy{Timely: 2, Timeout: 7, Invalid: 30}

	assert.Equal(t, 2, p.Delta(Timely))
	assert.Equal(t, -7, p.Delta(Timeout))
	assert.Equal(t, -30, p.Delta(Invalid))
	assert.Equal(t, 0, p.Delta(Reason(99)))
}

func TestManagerAppliesExactDeltas(t *testing.T) {
	defer leaktest.Check(t)()

	m := newTestManager(t, nil)
	defer m.Close()

	events, cancel := m.Subscribe(10)
	defer cancel()

	policy := m.Policy()

	require.True(t, Emit(m.Sink(), Event{PeerID: 1, Reason: Timely}))
	collect(t, events, 1)
	assert.Equal(t, policy.Timely, m.ScoreOf(1))

	require.True(t, Emit(m.Sink(), Event{PeerID: 2, Reason: Timeout}))
	collect(t, events, 1)
	assert.Equal(t, -policy.Timeout, m.ScoreOf(2))

	require.True(t, Emit(m.Sink(), Event{PeerID: 3, Reason: Invalid}))
	evs := collect(t, events, 1)
	assert.Equal(t, -policy.Invalid, m.ScoreOf(3))

	assert.Equal(t, uint32(3), evs[0].PeerID)
	assert.Equal(t, -policy.Invalid, evs[0].Delta)
	assert.Equal(t, Invalid, evs[0].Reason)
	assert.False(t, evs[0].At.IsZero())

	assert.Equal(t, 0, m.ScoreOf(4), "unknown peer should score 0")
}

func TestManagerFanIn(t *testing.T) {
	defer leaktest.Check(t)()

	m := newTestManager(t, nil)
	defer m.Close()

	const perSource = 200
	events, cancel := m.Subscribe(4 * perSource)
	defer cancel()

	// two independent producers, eg. the p2p and rpc correlation managers
	var wg sync.WaitGroup
	for _, reason := range []Reason{Timely, Timeout} {
		wg.Add(1)
		go func(r Reason) {
			defer wg.Done()
			for i := 0; i < perSource; i++ {
				m.Sink() <- Event{PeerID: 7, Reason: r}
			}
		}(reason)
	}
	wg.Wait()

	collect(t, events, 2*perSource)

	p := m.Policy()
	assert.Equal(t, perSource*p.Timely-perSource*p.Timeout, m.ScoreOf(7))
}

func TestManagerIgnoresUnknownReason(t *testing.T) {
	m := newTestManager(t, nil)
	defer m.Close()

	events, cancel := m.Subscribe(10)
	defer cancel()

	m.Sink() <- Event{PeerID: 1, Reason: Reason(42)}
	m.Sink() <- Event{PeerID: 1, Reason: Timely}

	evs := collect(t, events, 1)
	assert.Equal(t, Timely, evs[0].Reason)
	assert.Equal(t, m.Policy().Timely, m.ScoreOf(1))
}

func TestSubscribeCancel(t *testing.T) {
	m := newTestManager(t, nil)

	events, cancel := m.Subscribe(1)
	cancel()

	_, ok := <-events
	assert.False(t, ok, "cancelled subscription should be closed")

	// cancelling twice, or after Close, is harmless
	cancel()
	other, cancelOther := m.Subscribe(1)
	require.NoError(t, m.Close())
	cancelOther()

	_, ok = <-other
	assert.False(t, ok, "Close should close subscriptions")
}

func TestCloseDrainsQueuedEvents(t *testing.T) {
	store := NewInmemStore()
	m, err := NewManager(DefaultPolicy(), store, nil, nil)
	require.NoError(t, err)

	// queued before the loop starts
	for i := 0; i < 5; i++ {
		require.True(t, Emit(m.Sink(), Event{PeerID: 9, Reason: Timely}))
	}

	m.Start()
	require.NoError(t, m.Close())

	scores, err := store.Scores()
	require.NoError(t, err)
	assert.Equal(t, 5*m.Policy().Timely, scores[9])
}

func TestBadgerStorePersistsScores(t *testing.T) {
	dir, err := ioutil.TempDir("", "catalyst-reputation")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store, err := NewBadgerStore(dir, common.NewTestEntry(t, "badger"))
	require.NoError(t, err)

	m := newTestManager(t, store)
	events, cancel := m.Subscribe(10)

	m.Sink() <- Event{PeerID: 11, Reason: Timely}
	m.Sink() <- Event{PeerID: 12, Reason: Invalid}
	collect(t, events, 2)
	cancel()
	require.NoError(t, m.Close())

	reopened, err := NewBadgerStore(dir, nil)
	require.NoError(t, err)

	m2, err := NewManager(DefaultPolicy(), reopened, nil, nil)
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, m2.Policy().Timely, m2.ScoreOf(11))
	assert.Equal(t, -m2.Policy().Invalid, m2.ScoreOf(12))
	assert.Len(t, m2.Scores(), 2)
}

func TestEmitNeverBlocks(t *testing.T) {
	sink := make(chan Event, 1)

	assert.True(t, Emit(sink, Event{PeerID: 1, Reason: Timely}))
	assert.False(t, Emit(sink, Event{PeerID: 1, Reason: Timely}), "full sink should refuse")
	assert.False(t, Emit(nil, Event{PeerID: 1, Reason: Timely}), "nil sink should refuse")
}
