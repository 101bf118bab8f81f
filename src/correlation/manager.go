package correlation

import (
	"errors"
	"sync"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/reputation"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicateCorrelationID is returned when a request is registered
	// under an id that is still outstanding.
	ErrDuplicateCorrelationID = errors.New("duplicate correlation id")

	// ErrNilCorrelationID is returned when a request has no correlation id.
	ErrNilCorrelationID = errors.New("nil correlation id")

	// ErrNilPeer is returned when a request has no peer.
	ErrNilPeer = errors.New("nil peer")

	// ErrClosed is returned when a request is registered after Close.
	ErrClosed = errors.New("correlation manager closed")
)

// PendingRequest is a request waiting for its response.
type PendingRequest struct {
	CorrelationID common.CorrelationID
	PeerID        uint32
	// ExpectedKind is the kind of the response. KindUnknown accepts any kind.
	ExpectedKind net.PayloadKind
	IssuedAt     time.Time
	TTL          time.Duration
}

// Deadline returns the instant at which the request expires.
func (r PendingRequest) Deadline() time.Time {
	return r.IssuedAt.Add(r.TTL)
}

type entry struct {
	req   PendingRequest
	timer common.Timer
}

// Manager is the table of pending requests of one request source.
type Manager struct {
	name       string
	defaultTTL time.Duration
	clock      common.Clock
	sink       chan<- reputation.Event

	l       sync.Mutex
	pending map[common.CorrelationID]*entry
	closed  bool

	logger  *logrus.Entry
	metrics *Metrics
}

// NewManager creates a Manager. Requests registered without a TTL use
// defaultTTL. Timely and Timeout events are written to sink, which is usually
// the Sink of a reputation.Manager.
func NewManager(
	name string,
	defaultTTL time.Duration,
	clock common.Clock,
	sink chan<- reputation.Event,
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
		name:       name,
		defaultTTL: defaultTTL,
		clock:      clock,
		sink:       sink,
		pending:    make(map[common.CorrelationID]*entry),
		logger:     logger.WithField("manager", name),
		metrics:    metrics,
	}
}

// AddPendingRequest registers a request and schedules its eviction. IssuedAt
// is set from the manager's clock.
func (m *Manager) AddPendingRequest(req PendingRequest) error {
	if req.CorrelationID.IsNil() {
		m.logger.Error("AddPendingRequest called without correlation id")
		return ErrNilCorrelationID
	}

	if req.PeerID == 0 {
		m.logger.WithField("correlation_id", req.CorrelationID).Error("AddPendingRequest called without peer")
		return ErrNilPeer
	}

	if req.TTL <= 0 {
		req.TTL = m.defaultTTL
	}

	m.l.Lock()
	defer m.l.Unlock()

	if m.closed {
		return ErrClosed
	}

	if _, ok := m.pending[req.CorrelationID]; ok {
		m.logger.WithField("correlation_id", req.CorrelationID).Error("Duplicate correlation id")
		return ErrDuplicateCorrelationID
	}

	req.IssuedAt = m.clock.Now()

	e := &entry{req: req}
	e.timer = m.clock.AfterFunc(req.TTL, func() {
		m.evict(req.CorrelationID, e)
	})
	m.pending[req.CorrelationID] = e

	m.metrics.Pending.WithLabelValues(m.name).Set(float64(len(m.pending)))

	return nil
}

// TryMatchResponse claims the pending request answered by env. The request
// is found only if it is still outstanding, was sent to env.SenderID, and
// expects env.Kind. Unknown, late, duplicate or mismatched responses are
// reported as not found.
func (m *Manager) TryMatchResponse(env *net.Envelope) (PendingRequest, bool) {
	if env == nil {
		return PendingRequest{}, false
	}

	m.l.Lock()

	e, ok := m.pending[env.CorrelationID]
	if !ok {
		m.l.Unlock()
		m.unmatched(env, "unknown correlation id")
		return PendingRequest{}, false
	}

	if env.SenderID != e.req.PeerID ||
		(e.req.ExpectedKind != net.KindUnknown && env.Kind != e.req.ExpectedKind) {
		m.l.Unlock()
		m.unmatched(env, "unexpected sender or kind")
		return PendingRequest{}, false
	}

	delete(m.pending, env.CorrelationID)
	e.timer.Stop()
	m.metrics.Pending.WithLabelValues(m.name).Set(float64(len(m.pending)))

	// eviction wins at the deadline, even if its timer has not run yet
	if !m.clock.Now().Before(e.req.Deadline()) {
		m.l.Unlock()
		m.evicted(e.req)
		m.unmatched(env, "late response")
		return PendingRequest{}, false
	}

	m.l.Unlock()

	m.metrics.Matched.WithLabelValues(m.name).Inc()
	m.emit(e.req.PeerID, reputation.Timely)

	return e.req, true
}

// evict removes the entry if it is still the one the timer was created for.
func (m *Manager) evict(cid common.CorrelationID, e *entry) {
	m.l.Lock()
	cur, ok := m.pending[cid]
	if !ok || cur != e {
		m.l.Unlock()
		return
	}
	delete(m.pending, cid)
	m.metrics.Pending.WithLabelValues(m.name).Set(float64(len(m.pending)))
	m.l.Unlock()

	m.evicted(e.req)
}

func (m *Manager) evicted(req PendingRequest) {
	m.metrics.Evicted.WithLabelValues(m.name).Inc()

	m.logger.WithFields(logrus.Fields{
		"correlation_id": req.CorrelationID,
		"peer":           req.PeerID,
		"ttl":            req.TTL,
	}).Debug("Request timed out")

	m.emit(req.PeerID, reputation.Timeout)
}

func (m *Manager) unmatched(env *net.Envelope, reason string) {
	m.metrics.Unmatched.WithLabelValues(m.name).Inc()

	m.logger.WithFields(logrus.Fields{
		"correlation_id": env.CorrelationID,
		"sender":         env.SenderID,
		"kind":           env.Kind,
		"reason":         reason,
	}).Debug("UnmatchedResponse")
}

func (m *Manager) emit(peerID uint32, reason reputation.Reason) {
	if m.sink == nil {
		return
	}
	if !reputation.Emit(m.sink, reputation.Event{PeerID: peerID, Reason: reason}) {
		m.metrics.DroppedEvents.WithLabelValues(m.name).Inc()
		m.logger.WithFields(logrus.Fields{
			"peer":   peerID,
			"reason": reason,
		}).Warn("Reputation sink full, dropping event")
	}
}

// Has reports whether a request is outstanding under cid.
func (m *Manager) Has(cid common.CorrelationID) bool {
	m.l.Lock()
	defer m.l.Unlock()
	_, ok := m.pending[cid]
	return ok
}

// Pending returns the number of outstanding requests.
func (m *Manager) Pending() int {
	m.l.Lock()
	defer m.l.Unlock()
	return len(m.pending)
}

// Close stops every eviction timer and drops the outstanding requests
// without emitting events. Requests registered afterwards are refused.
func (m *Manager) Close() {
	m.l.Lock()
	defer m.l.Unlock()

	m.closed = true
	for cid, e := range m.pending {
		e.timer.Stop()
		delete(m.pending, cid)
	}
	m.metrics.Pending.WithLabelValues(m.name).Set(0)
}
