package gossip

import (
	"errors"
	"fmt"
	"sync"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/peers"
	"github.com/catalyst-network/catalyst/src/reputation"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxHops is the hop budget of a new message.
	DefaultMaxHops = 3
	// DefaultCacheSize is the number of records and seen ids kept.
	DefaultCacheSize = 10000
	// DefaultSendParallelism bounds the concurrent sends of one fan-out.
	DefaultSendParallelism = 8
)

var (
	// ErrClosed is returned by BroadcastAsync after Close.
	ErrClosed = errors.New("gossip manager closed")
	// ErrNotGossip is returned by ReceiveAsync for envelopes of another kind.
	ErrNotGossip = errors.New("not a gossip envelope")
	// ErrNoPeers is returned by BroadcastAsync when there is nobody to send to.
	ErrNoPeers = errors.New("no peers to gossip to")
)

// Config holds the gossip parameters.
type Config struct {
	// FanoutFactor is the number of peers a message is sent to. 0 means
	// ceil(log2(N)).
	FanoutFactor int
	MaxHops      uint32
	CacheSize    int
	// RateLimit is the number of messages per second accepted from one
	// sender. 0 disables rate limiting.
	RateLimit       float64
	SendParallelism int
}

// DefaultConfig returns the default gossip parameters.
func DefaultConfig() Config {
	return Config{
		MaxHops:         DefaultMaxHops,
		CacheSize:       DefaultCacheSize,
		SendParallelism: DefaultSendParallelism,
	}
}

// PeerSampler is the view of the address book used for gossip.
type PeerSampler interface {
	Len() int
	SamplePeers(n int, exclude ...uint32) []*peers.Peer
	MarkAlive(id uint32, alive bool)
}

// Handler consumes the messages of a topic.
type Handler func(Message)

// Manager is the gossip engine of a node.
type Manager struct {
	conf     Config
	book     PeerSampler
	sender   net.Sender
	signer   net.Signer
	verifier net.Verifier
	sink     chan<- reputation.Event
	clock    common.Clock

	// l guards the combined lookups of records and seen.
	l       sync.Mutex
	records *lru.Cache[common.CorrelationID, *Record]
	seen    *lru.Cache[common.CorrelationID, struct{}]

	handlersL sync.RWMutex
	handlers  map[string][]Handler

	limitersL sync.Mutex
	limiters  map[uint32]*rate.Limiter

	closeL sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	logger  *logrus.Entry
	metrics *Metrics
}

// NewManager creates a gossip Manager. Invalid events are written to sink.
func NewManager(
	conf Config,
	book PeerSampler,
	sender net.Sender,
	signer net.Signer,
	verifier net.Verifier,
	sink chan<- reputation.Event,
	clock common.Clock,
	logger *logrus.Entry,
	metrics *Metrics,
) (*Manager, error) {

	if conf.CacheSize <= 0 {
		conf.CacheSize = DefaultCacheSize
	}
	if conf.SendParallelism <= 0 {
		conf.SendParallelism = DefaultSendParallelism
	}

	records, err := lru.New[common.CorrelationID, *Record](conf.CacheSize)
	if err != nil {
		return nil, err
	}

	seen, err := lru.New[common.CorrelationID, struct{}](conf.CacheSize)
	if err != nil {
		return nil, err
	}

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
		conf:     conf,
		book:     book,
		sender:   sender,
		signer:   signer,
		verifier: verifier,
		sink:     sink,
		clock:    clock,
		records:  records,
		seen:     seen,
		handlers: make(map[string][]Handler),
		limiters: make(map[uint32]*rate.Limiter),
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Handle registers a handler for the messages of a topic. Handlers run on
// the goroutine that calls ReceiveAsync and should not block.
func (m *Manager) Handle(topic string, h Handler) {
	m.handlersL.Lock()
	defer m.handlersL.Unlock()
	m.handlers[topic] = append(m.handlers[topic], h)
}

// BroadcastAsync signs msg and sends it to a random subset of peers. A nil
// correlation id is replaced with a fresh one, which is returned. The sends
// happen in the background.
func (m *Manager) BroadcastAsync(msg Message) (common.CorrelationID, error) {
	env, err := net.NewEnvelope(msg.CorrelationID, m.signer.ID(), &net.GossipPayload{
		Topic: msg.Topic,
		Data:  msg.Data,
	})
	if err != nil {
		return common.NilCorrelationID, err
	}
	env.HopCount = m.conf.MaxHops

	if err := m.signer.Sign(env); err != nil {
		return common.NilCorrelationID, fmt.Errorf("signing gossip: %w", err)
	}

	rec := &Record{
		CorrelationID: env.CorrelationID,
		OriginID:      env.OriginID,
		RemainingHops: m.conf.MaxHops,
		FirstSeenAt:   m.clock.Now(),
		Payload:       &net.GossipPayload{Topic: msg.Topic, Data: msg.Data},
		Relayed:       true,
		envelope:      env,
	}

	m.l.Lock()
	if ok, _ := m.seen.ContainsOrAdd(env.CorrelationID, struct{}{}); ok {
		m.l.Unlock()
		return env.CorrelationID, fmt.Errorf("correlation id %s already gossiped", env.CorrelationID)
	}
	m.records.Add(env.CorrelationID, rec)
	m.metrics.Records.Set(float64(m.records.Len()))
	m.l.Unlock()

	targets := m.book.SamplePeers(Fanout(m.book.Len(), m.conf.FanoutFactor))
	if len(targets) == 0 {
		return env.CorrelationID, ErrNoPeers
	}

	if !m.sendAsync(env, targets) {
		return env.CorrelationID, ErrClosed
	}

	m.metrics.Broadcast.Inc()

	m.logger.WithFields(logrus.Fields{
		"correlation_id": env.CorrelationID,
		"topic":          msg.Topic,
		"fanout":         len(targets),
	}).Debug("Broadcast")

	return env.CorrelationID, nil
}

// ReceiveAsync processes a gossip envelope received from a peer. Envelopes
// whose sender signature does not verify are dropped without a penalty, since
// the sender is not authenticated. Envelopes with a bad origin signature or
// payload are dropped, and the authenticated sender is penalized.
// Messages seen for the first time are delivered to the handlers of their
// topic, and relayed in the background while hops remain. Drops are not
// reported as errors.
func (m *Manager) ReceiveAsync(env *net.Envelope) error {
	if env == nil || env.Kind != net.KindGossip {
		return ErrNotGossip
	}

	if !m.verifier.VerifySender(env) {
		m.metrics.Invalid.Inc()
		m.logger.WithFields(logrus.Fields{
			"sender":         env.SenderID,
			"correlation_id": env.CorrelationID,
		}).Debug("Dropping gossip with unauthenticated sender")
		return nil
	}

	if !m.allow(env.SenderID) {
		m.metrics.RateLimited.Inc()
		m.logger.WithField("sender", env.SenderID).Debug("Gossip rate limit exceeded")
		return nil
	}

	if !m.verifier.Verify(env) {
		m.invalid(env, "invalid signature")
		return nil
	}

	p, err := net.DecodePayload(net.KindGossip, env.Payload)
	if err != nil {
		m.invalid(env, err.Error())
		return nil
	}
	payload := p.(*net.GossipPayload)

	hops := env.HopCount
	if hops > m.conf.MaxHops {
		hops = m.conf.MaxHops
	}

	rec := &Record{
		CorrelationID: env.CorrelationID,
		OriginID:      env.OriginID,
		RemainingHops: hops,
		FirstSeenAt:   m.clock.Now(),
		Payload:       payload,
		envelope:      env,
	}

	m.l.Lock()
	if ok, _ := m.seen.ContainsOrAdd(env.CorrelationID, struct{}{}); ok {
		m.l.Unlock()
		m.metrics.Duplicates.Inc()
		return nil
	}
	relay := rec.RemainingHops > 0
	rec.Relayed = relay
	m.records.Add(env.CorrelationID, rec)
	m.metrics.Records.Set(float64(m.records.Len()))
	m.l.Unlock()

	m.metrics.Received.Inc()

	if relay {
		m.relay(rec, env.SenderID)
	}

	m.dispatch(rec.Message())

	return nil
}

// relay forwards a copy of the record's envelope, with one hop less, to
// peers other than the sender and the origin.
func (m *Manager) relay(rec *Record, from uint32) {
	targets := m.book.SamplePeers(
		Fanout(m.book.Len(), m.conf.FanoutFactor),
		from,
		rec.OriginID,
	)
	if len(targets) == 0 {
		return
	}

	env := rec.envelope.Copy()
	env.HopCount = rec.RemainingHops - 1
	if err := m.signer.Countersign(env); err != nil {
		m.logger.WithFields(logrus.Fields{
			"correlation_id": rec.CorrelationID,
			"error":          err,
		}).Error("Countersigning gossip")
		return
	}

	if m.sendAsync(env, targets) {
		m.metrics.Relayed.Inc()
	}
}

// sendAsync sends env to every target from a background goroutine. It
// returns false if the manager is closed.
func (m *Manager) sendAsync(env *net.Envelope, targets []*peers.Peer) bool {
	m.closeL.RLock()
	defer m.closeL.RUnlock()

	if m.closed {
		return false
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		var g errgroup.Group
		g.SetLimit(m.conf.SendParallelism)

		for _, p := range targets {
			id := p.ID()
			g.Go(func() error {
				err := m.sender.SendEnvelope(id, env)
				if err != nil {
					m.metrics.SendErrors.Inc()
					m.logger.WithFields(logrus.Fields{
						"peer":           id,
						"correlation_id": env.CorrelationID,
						"error":          err,
					}).Error("Sending gossip")
				}
				m.book.MarkAlive(id, err == nil)
				return err
			})
		}

		g.Wait()
	}()

	return true
}

func (m *Manager) dispatch(msg Message) {
	m.handlersL.RLock()
	handlers := m.handlers[msg.Topic]
	m.handlersL.RUnlock()

	if len(handlers) == 0 {
		m.logger.WithField("topic", msg.Topic).Debug("No handler for gossip topic")
		return
	}

	for _, h := range handlers {
		h(msg)
	}
}

func (m *Manager) invalid(env *net.Envelope, reason string) {
	m.metrics.Invalid.Inc()

	m.logger.WithFields(logrus.Fields{
		"sender":         env.SenderID,
		"origin":         env.OriginID,
		"correlation_id": env.CorrelationID,
		"reason":         reason,
	}).Warn("Dropping invalid gossip")

	if m.sink == nil {
		return
	}
	if !reputation.Emit(m.sink, reputation.Event{PeerID: env.SenderID, Reason: reputation.Invalid}) {
		m.logger.WithField("peer", env.SenderID).Warn("Reputation sink full, dropping event")
	}
}

func (m *Manager) allow(sender uint32) bool {
	if m.conf.RateLimit <= 0 {
		return true
	}

	m.limitersL.Lock()
	defer m.limitersL.Unlock()

	l, ok := m.limiters[sender]
	if !ok {
		burst := int(m.conf.RateLimit)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(m.conf.RateLimit), burst)
		m.limiters[sender] = l
	}
	return l.AllowN(m.clock.Now(), 1)
}

// Lookup returns a copy of the record of a message, if its payload is still
// held.
func (m *Manager) Lookup(cid common.CorrelationID) (*Record, bool) {
	m.l.Lock()
	defer m.l.Unlock()

	rec, ok := m.records.Peek(cid)
	if !ok {
		return nil, false
	}
	return rec.copy(), true
}

// Seen reports whether a message was ever seen, even if its record has been
// removed since.
func (m *Manager) Seen(cid common.CorrelationID) bool {
	m.l.Lock()
	defer m.l.Unlock()
	return m.seen.Contains(cid)
}

// RemoveSignedBroadcastMessageData releases the record of a message once it
// has been consumed. The id is still remembered, so that late copies of the
// message are not delivered or relayed again.
func (m *Manager) RemoveSignedBroadcastMessageData(cid common.CorrelationID) {
	m.l.Lock()
	defer m.l.Unlock()

	m.records.Remove(cid)
	m.metrics.Records.Set(float64(m.records.Len()))
}

// Len returns the number of records holding a payload.
func (m *Manager) Len() int {
	m.l.Lock()
	defer m.l.Unlock()
	return m.records.Len()
}

// Close refuses new sends and waits for the ones in flight.
func (m *Manager) Close() {
	m.closeL.Lock()
	m.closed = true
	m.closeL.Unlock()

	m.wg.Wait()
}
