package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
	"github.com/catalyst-network/catalyst/src/config"
	"github.com/catalyst-network/catalyst/src/correlation"
	"github.com/catalyst-network/catalyst/src/gossip"
	"github.com/catalyst-network/catalyst/src/ledger"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/node/state"
	"github.com/catalyst-network/catalyst/src/peers"
	"github.com/catalyst-network/catalyst/src/peersync"
	"github.com/catalyst-network/catalyst/src/reputation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Node owns the managers of a Catalyst node and routes the envelopes it
// receives to them.
type Node struct {
	// The node's state machine and goroutine limiter
	state.Manager

	conf   *config.Config
	logger *logrus.Entry
	clock  common.Clock

	validator *Validator
	signer    net.Signer
	verifier  net.Verifier
	book      *peers.AddressBook
	ledger    ledger.Ledger

	trans  net.Transport
	netCh  <-chan net.RPC
	sender net.Sender

	correlation *correlation.Manager
	reputation  *reputation.Manager
	gossip      *gossip.Manager
	sync        *peersync.Manager

	handlers map[net.PayloadKind]handlerFunc
	metrics  *Metrics

	controlTimer *ControlTimer
	polling      int32

	ctx        context.Context
	cancel     context.CancelFunc
	shutdownCh chan struct{}
	// tracks the Run loop and the background loop, which launch routines
	loops sync.WaitGroup

	start time.Time
}

// NewNode creates a Node and every manager it owns. Metrics are registered
// with reg when it is not nil. A nil store keeps reputation scores in
// memory.
func NewNode(conf *config.Config,
	validator *Validator,
	book *peers.AddressBook,
	ledger ledger.Ledger,
	store reputation.Store,
	trans net.Transport,
	reg prometheus.Registerer,
) (*Node, error) {

	if err := conf.Validate(); err != nil {
		return nil, err
	}

	logger := conf.Logger().WithField("this_id", validator.ID())
	clock := common.NewRealClock()

	rep, err := reputation.NewManager(
		reputationPolicy(conf),
		store,
		logger.WithField("prefix", "reputation"),
		reputation.NewMetrics(MetricsNamespace, reg),
	)
	if err != nil {
		return nil, err
	}

	signer := validator.Signer()
	verifier := net.NewKeyVerifier(book)
	sender := net.NewPeerSender(trans, book)

	corr := correlation.NewManager(
		"p2p",
		conf.CacheTTL,
		clock,
		rep.Sink(),
		logger.WithField("prefix", "correlation"),
		correlation.NewMetrics(MetricsNamespace, reg),
	)

	gm, err := gossip.NewManager(
		gossipConfig(conf),
		book,
		sender,
		signer,
		verifier,
		rep.Sink(),
		clock,
		logger.WithField("prefix", "gossip"),
		gossip.NewMetrics(MetricsNamespace, reg),
	)
	if err != nil {
		rep.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	node := &Node{
		conf:         conf,
		logger:       logger,
		clock:        clock,
		validator:    validator,
		signer:       signer,
		verifier:     verifier,
		book:         book,
		ledger:       ledger,
		trans:        trans,
		netCh:        trans.Consumer(),
		sender:       sender,
		correlation:  corr,
		reputation:   rep,
		gossip:       gm,
		controlTimer: NewRandomControlTimer(clock),
		ctx:          ctx,
		cancel:       cancel,
		shutdownCh:   make(chan struct{}),
		metrics:      NewMetrics(MetricsNamespace, reg),
	}

	node.sync = peersync.NewManager(
		syncConfig(conf),
		node,
		book,
		rep,
		clock,
		logger.WithField("prefix", "peersync"),
		peersync.NewMetrics(MetricsNamespace, reg),
	)

	node.registerHandlers()

	return node, nil
}

// Init starts the reputation loop and puts the node in the Syncing state.
func (n *Node) Init() error {
	if _, ok := n.book.ByID(n.validator.ID()); !ok {
		return fmt.Errorf("validator %d does not belong to the peer set", n.validator.ID())
	}

	n.reputation.Start()
	n.setState(state.Syncing)
	n.start = time.Now()

	return nil
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

// Run processes inbound envelopes and polls the delta height of the network
// at every heartbeat, until Shutdown.
func (n *Node) Run() {
	n.loops.Add(2)
	defer n.loops.Done()

	//Accept inbound connections. Listen returns when the transport is closed.
	go n.trans.Listen()

	//The ControlTimer paces the delta height polls.
	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	//Process inbound envelopes regardless of the state of the node.
	go n.doBackgroundWork()

	for {
		select {
		case <-n.controlTimer.tickCh:
			n.logger.WithField("state", n.GetState().String()).Debug("Heartbeat")
			n.GoFunc(n.pollDeltaHeight)
			n.pingDeadPeers()
			n.controlTimer.Reset(n.conf.HeartbeatTimeout)
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) doBackgroundWork() {
	defer n.loops.Done()

	for {
		select {
		case rpc := <-n.netCh:
			n.GoFunc(func() {
				n.processRPC(rpc)
			})
		case <-n.shutdownCh:
			return
		}
	}
}

// pollDeltaHeight runs one delta height sync unless another one is still in
// flight, and updates the node state with its outcome.
func (n *Node) pollDeltaHeight() {
	if !atomic.CompareAndSwapInt32(&n.polling, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&n.polling, 0)

	res, err := n.sync.GetDeltaHeight(n.ctx)

	switch {
	case err == nil:
		n.logger.WithFields(logrus.Fields{
			"height":    res.Index.Height,
			"count":     res.Count,
			"contacted": res.Contacted,
		}).Debug("Delta height")
		n.transition(state.Running)
	case errors.Is(err, peersync.ErrSyncStalled):
		n.logger.WithError(err).Warn("Delta height sync stalled")
		n.transition(state.Stalled)
	case errors.Is(err, peersync.ErrPoolExhausted),
		errors.Is(err, peersync.ErrClosed),
		errors.Is(err, context.Canceled):
		n.logger.WithError(err).Debug("Delta height sync skipped")
	default:
		n.logger.WithError(err).Error("Delta height sync")
	}
}

// transition moves the node to s unless it is shutting down.
func (n *Node) transition(s state.State) {
	for {
		cur := n.GetState()
		if cur == state.Shutdown || cur == s {
			return
		}
		if n.CompareAndSetState(cur, s) {
			n.metrics.State.Set(float64(s))
			n.logger.WithFields(logrus.Fields{
				"from": cur.String(),
				"to":   s.String(),
			}).Info("State change")
			return
		}
	}
}

func (n *Node) setState(s state.State) {
	n.SetState(s)
	n.metrics.State.Set(float64(s))
}

// pingDeadPeers probes the peers marked as not alive. A pong brings them back
// into the samples.
func (n *Node) pingDeadPeers() {
	for _, p := range n.book.Dead() {
		id := p.ID()
		n.GoFunc(func() {
			if err := n.Ping(id); err != nil {
				n.logger.WithFields(logrus.Fields{
					"peer":  id,
					"error": err,
				}).Debug("Ping")
			}
		})
	}
}

// Shutdown stops the node, aborts the sync rounds in progress, and closes the
// managers and the transport.
func (n *Node) Shutdown() {
	if n.GetState() != state.Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(state.Shutdown)

		n.cancel()
		n.sync.Close()

		//Stop and wait for concurrent operations
		close(n.shutdownCh)
		n.controlTimer.Shutdown()

		n.loops.Wait()
		n.WaitRoutines()

		n.gossip.Close()
		n.correlation.Close()

		//transport and store should only be closed once all concurrent operations
		//are finished otherwise they will panic trying to use close objects
		n.trans.Close()

		if err := n.reputation.Close(); err != nil {
			n.logger.WithError(err).Error("Closing reputation store")
		}
	}
}

// Broadcast gossips data under topic to the network.
func (n *Node) Broadcast(topic string, data []byte) (common.CorrelationID, error) {
	return n.gossip.BroadcastAsync(gossip.Message{
		Topic: topic,
		Data:  data,
	})
}

// OnGossip registers a handler for the gossip messages of a topic. The
// payload of a message is released once every handler of its topic has
// returned.
func (n *Node) OnGossip(topic string, h gossip.Handler) {
	n.gossip.Handle(topic, func(msg gossip.Message) {
		h(msg)
		n.gossip.RemoveSignedBroadcastMessageData(msg.CorrelationID)
	})
}

// GetDeltaIndexRange reconciles the delta indexes [height, height+count)
// with the network.
func (n *Node) GetDeltaIndexRange(ctx context.Context, height, count uint64) (*peersync.DeltaIndexScore, error) {
	return n.sync.GetDeltaIndexRangeFromPeers(ctx, height, count)
}

// WaitForDeltaHeight blocks until the network's accepted delta height reaches
// target.
func (n *Node) WaitForDeltaHeight(ctx context.Context, target uint64) error {
	return n.sync.WaitForDeltaHeight(ctx, target)
}

// ScoredDeltaIndexRange subscribes to the delta index ranges accepted from
// the network.
func (n *Node) ScoredDeltaIndexRange(buffer int) (<-chan peersync.DeltaIndexScore, func()) {
	return n.sync.ScoredDeltaIndexRange(buffer)
}

// ReputationEvents subscribes to the reputation events applied by the node.
func (n *Node) ReputationEvents(buffer int) (<-chan reputation.Event, func()) {
	return n.reputation.Subscribe(buffer)
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	timeElapsed := time.Since(n.start)

	alive := 0
	peerSet := n.book.Peers()
	for _, p := range peerSet.Peers {
		if p.ID() != n.validator.ID() && n.book.IsAlive(p.ID()) {
			alive++
		}
	}

	accepted := n.sync.AcceptedIndex()

	s := map[string]string{
		"id":               fmt.Sprint(n.validator.ID()),
		"moniker":          n.validator.Moniker,
		"state":            n.GetState().String(),
		"accepted_height":  strconv.FormatUint(accepted.Height, 10),
		"accepted_cid":     accepted.Cid,
		"local_height":     strconv.FormatUint(n.ledger.Height(), 10),
		"stalled":          strconv.FormatBool(n.sync.Stalled()),
		"pending_requests": strconv.Itoa(n.correlation.Pending()),
		"gossip_records":   strconv.Itoa(n.gossip.Len()),
		"num_peers":        strconv.Itoa(n.book.Len()),
		"alive_peers":      strconv.Itoa(alive),
		"time_elapsed":     strconv.FormatFloat(timeElapsed.Seconds(), 'f', 2, 64),
	}
	return s
}

// ID returns the validator ID
func (n *Node) ID() uint32 {
	return n.validator.ID()
}

// GetPeers returns the peers
func (n *Node) GetPeers() []*peers.Peer {
	return n.book.Peers().Peers
}

// GetReputation returns the score of every peer with a score.
func (n *Node) GetReputation() map[uint32]int {
	return n.reputation.Scores()
}

// ScoreOf returns the reputation score of a peer.
func (n *Node) ScoreOf(peerID uint32) int {
	return n.reputation.ScoreOf(peerID)
}

// AcceptedIndex returns the latest delta index accepted from a quorum of
// peers.
func (n *Node) AcceptedIndex() ledger.DeltaIndex {
	return n.sync.AcceptedIndex()
}

// LocalIndex returns the latest delta index of the local ledger.
func (n *Node) LocalIndex() ledger.DeltaIndex {
	return n.ledger.LatestIndex()
}
