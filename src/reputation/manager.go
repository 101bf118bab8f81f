package reputation

import (
	"strconv"
	"sync"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/sirupsen/logrus"
)

// DefaultSinkSize is the capacity of the fan-in channel.
const DefaultSinkSize = 1024

// Manager maintains peer scores from the events written to its Sink.
type Manager struct {
	policy Policy
	store  Store
	clock  common.Clock

	sink chan Event

	l      sync.RWMutex
	scores map[uint32]int

	subL    sync.Mutex
	subs    map[int]chan Event
	nextSub int

	logger  *logrus.Entry
	metrics *Metrics

	runOnce    sync.Once
	closeOnce  sync.Once
	shutdownCh chan struct{}
	doneCh     chan struct{}
}

// NewManager creates a Manager. The policy is validated, and scores
// previously persisted in store are loaded. A nil store defaults to an
// InmemStore.
func NewManager(policy Policy, store Store, logger *logrus.Entry, metrics *Metrics) (*Manager, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	if store == nil {
		store = NewInmemStore()
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if metrics == nil {
		metrics = NopMetrics()
	}

	scores, err := store.Scores()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		policy:     policy,
		store:      store,
		clock:      common.NewRealClock(),
		sink:       make(chan Event, DefaultSinkSize),
		scores:     scores,
		subs:       make(map[int]chan Event),
		logger:     logger,
		metrics:    metrics,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	for id, score := range scores {
		metrics.Score.WithLabelValues(peerLabel(id)).Set(float64(score))
	}

	return m, nil
}

// Sink returns the fan-in channel that every producer writes to.
func (m *Manager) Sink() chan<- Event {
	return m.sink
}

// Policy returns the policy applied by the manager.
func (m *Manager) Policy() Policy {
	return m.policy
}

// Start launches the consumer loop in its own goroutine. Subsequent calls are
// no-ops.
func (m *Manager) Start() {
	m.runOnce.Do(func() {
		go m.run()
	})
}

func (m *Manager) run() {
	defer close(m.doneCh)
	for {
		select {
		case ev := <-m.sink:
			m.apply(ev)
		case <-m.shutdownCh:
			// apply what producers managed to queue before shutdown
			for {
				select {
				case ev := <-m.sink:
					m.apply(ev)
				default:
					return
				}
			}
		}
	}
}

// apply is only called from the consumer loop, so events are applied one at
// a time and published in the order they were applied.
func (m *Manager) apply(ev Event) {
	delta := m.policy.Delta(ev.Reason)
	if delta == 0 {
		m.logger.WithFields(logrus.Fields{
			"peer":   ev.PeerID,
			"reason": ev.Reason,
		}).Warn("Ignoring reputation event with unknown reason")
		return
	}

	ev.Delta = delta
	if ev.At.IsZero() {
		ev.At = m.clock.Now()
	}

	m.l.Lock()
	score := m.scores[ev.PeerID] + delta
	m.scores[ev.PeerID] = score
	m.l.Unlock()

	if err := m.store.SetScore(ev.PeerID, score); err != nil {
		m.logger.WithError(err).WithField("peer", ev.PeerID).Error("Failed to persist score")
	}

	m.metrics.Score.WithLabelValues(peerLabel(ev.PeerID)).Set(float64(score))
	m.metrics.Events.WithLabelValues(ev.Reason.String()).Inc()

	m.logger.WithFields(logrus.Fields{
		"peer":   ev.PeerID,
		"reason": ev.Reason,
		"delta":  delta,
		"score":  score,
	}).Debug("Reputation updated")

	m.publish(ev)
}

func (m *Manager) publish(ev Event) {
	m.subL.Lock()
	defer m.subL.Unlock()

	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.metrics.SubscriberDrops.Inc()
		}
	}
}

// ScoreOf returns the current score of a peer. Unknown peers score 0.
func (m *Manager) ScoreOf(peerID uint32) int {
	m.l.RLock()
	defer m.l.RUnlock()
	return m.scores[peerID]
}

// Scores returns a snapshot of every score.
func (m *Manager) Scores() map[uint32]int {
	m.l.RLock()
	defer m.l.RUnlock()

	res := make(map[uint32]int, len(m.scores))
	for k, v := range m.scores {
		res[k] = v
	}
	return res
}

// Subscribe returns a channel receiving every event applied from now on, and
// a function to cancel the subscription. Events are dropped for a subscriber
// whose buffer is full, so a slow subscriber never stalls the manager.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	m.subL.Lock()
	id := m.nextSub
	m.nextSub++
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

// Close stops the consumer loop, after applying the events already queued,
// and closes the store. Subscriber channels are closed.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.shutdownCh)
		m.runOnce.Do(func() { close(m.doneCh) })
		<-m.doneCh

		m.subL.Lock()
		for id, ch := range m.subs {
			close(ch)
			delete(m.subs, id)
		}
		m.subL.Unlock()

		err = m.store.Close()
	})
	return err
}

func peerLabel(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
