// Package catalyst assembles a Catalyst node from its configuration: keys,
// peers, transport, stores, node, and HTTP service.
package catalyst

import (
	"context"
	"fmt"
	"time"

	"github.com/catalyst-network/catalyst/src/config"
	"github.com/catalyst-network/catalyst/src/crypto/keys"
	"github.com/catalyst-network/catalyst/src/ledger"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/node"
	"github.com/catalyst-network/catalyst/src/peers"
	"github.com/catalyst-network/catalyst/src/reputation"
	"github.com/catalyst-network/catalyst/src/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

// Catalyst is a struct containing the key parts of a Catalyst node
type Catalyst struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     reputation.Store
	Ledger    ledger.Ledger
	Peers     *peers.PeerSet
	Service   *service.Service
	Registry  *prometheus.Registry
	logger    *logrus.Entry
}

// NewCatalyst is a factory method to produce a Catalyst instance.
func NewCatalyst(c *config.Config) *Catalyst {
	engine := &Catalyst{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init initialises Catalyst based upon the Config. Ledger, Transport and
// Peers are only created if they were not set beforehand.
func (c *Catalyst) Init() error {

	if err := c.Config.Validate(); err != nil {
		c.logger.WithError(err).Error("catalyst.go:Init() Validate")
		return err
	}

	c.initRegistry()

	if err := c.initKey(); err != nil {
		c.logger.WithError(err).Error("catalyst.go:Init() initKey")
		return err
	}

	if err := c.initPeers(); err != nil {
		c.logger.WithError(err).Error("catalyst.go:Init() initPeers")
		return err
	}

	if err := c.initStore(); err != nil {
		c.logger.WithError(err).Error("catalyst.go:Init() initStore")
		return err
	}

	if err := c.initTransport(); err != nil {
		c.logger.WithError(err).Error("catalyst.go:Init() initTransport")
		return err
	}

	if c.Ledger == nil {
		c.Ledger = ledger.NewInmemLedger()
	}

	if err := c.initNode(); err != nil {
		c.logger.WithError(err).Error("catalyst.go:Init() initNode")
		return err
	}

	c.initService()

	return nil
}

// Run starts the HTTP service and runs the node. It blocks until the node is
// shut down.
func (c *Catalyst) Run() {
	if c.Service != nil {
		go c.Service.Serve()
	}

	c.Node.Run()
}

// Shutdown stops the HTTP service and the node.
func (c *Catalyst) Shutdown() {
	if c.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Service.Close(ctx); err != nil {
			c.logger.WithError(err).Error("Closing service")
		}
	}

	if c.Node != nil {
		c.Node.Shutdown()
	}
}

func (c *Catalyst) initRegistry() {
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func (c *Catalyst) initKey() error {
	if c.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(c.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			c.logger.Errorf("Error reading private key from file: %v", err)
			return err
		}

		c.Config.Key = privKey
	}
	return nil
}

func (c *Catalyst) initPeers() error {
	if c.Peers != nil {
		return nil
	}

	peerStore := peers.NewJSONPeerSet(c.Config.DataDir)

	participants, err := peerStore.PeerSet()
	if err != nil {
		return err
	}

	if participants.Len() < 2 {
		return fmt.Errorf("peers.json should define at least two peers")
	}

	c.Peers = participants

	return nil
}

func (c *Catalyst) initStore() error {
	if !c.Config.Store {
		c.logger.Debug("Creating InmemStore")
		c.Store = reputation.NewInmemStore()
		return nil
	}

	c.logger.WithField("path", c.Config.DatabaseDir).Debug("Creating BadgerStore")

	store, err := reputation.NewBadgerStore(c.Config.DatabaseDir, c.logger.WithField("prefix", "badger"))
	if err != nil {
		return err
	}
	c.Store = store

	return nil
}

func (c *Catalyst) initTransport() error {
	if c.Transport != nil {
		return nil
	}

	trans, err := net.NewTCPTransport(
		c.Config.BindAddr,
		c.Config.AdvertiseAddr,
		c.Config.MaxPool,
		c.Config.TCPTimeout,
		c.logger.WithField("prefix", "transport"),
	)
	if err != nil {
		return err
	}

	c.Transport = trans

	return nil
}

func (c *Catalyst) initNode() error {
	validator := node.NewValidator(c.Config.Key, c.Config.Moniker)

	c.logger.WithFields(logrus.Fields{
		"peers": c.Peers.Len(),
		"id":    validator.ID(),
	}).Debug("PARTICIPANTS")

	n, err := node.NewNode(
		c.Config,
		validator,
		peers.NewAddressBook(c.Peers, validator.ID()),
		c.Ledger,
		c.Store,
		c.Transport,
		c.Registry,
	)
	if err != nil {
		return err
	}

	if err := n.Init(); err != nil {
		n.Shutdown()
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	c.Node = n

	return nil
}

func (c *Catalyst) initService() {
	if !c.Config.NoService {
		c.Service = service.NewService(c.Config.ServiceAddr, c.Node, c.Registry, c.logger.WithField("prefix", "service"))
	}
}
