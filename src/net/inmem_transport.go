package net

import (
	"fmt"
	"sync"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
)

// NewInmemAddr returns a new in-memory addr with
// a randomly generated UUID as the ID.
func NewInmemAddr() string {
	return common.NewCorrelationID().String()
}

// InmemTransport implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration
	shutdownCh chan struct{}
	shutdown   bool
}

// NewInmemTransport is used to initialize a new transport
// and generates a random local address if none is specified
func NewInmemTransport(addr string) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 64),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    500 * time.Millisecond,
		shutdownCh: make(chan struct{}),
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Send implements the Transport interface. The envelope is copied so that
// sender and receiver never share buffers.
func (i *InmemTransport) Send(target string, env *Envelope) error {
	i.RLock()
	peer, ok := i.peers[target]
	closed := i.shutdown
	i.RUnlock()

	if closed {
		return ErrTransportShutdown
	}

	if !ok {
		return fmt.Errorf("failed to connect to peer: %v", target)
	}

	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Envelope: env.Copy(),
		RespChan: respCh,
	}

	timeout := time.After(i.timeout)

	select {
	case peer.consumerCh <- rpc:
	case <-peer.shutdownCh:
		return ErrTransportShutdown
	case <-timeout:
		return fmt.Errorf("send timed out")
	}

	select {
	case resp := <-respCh:
		return resp.Error
	case <-peer.shutdownCh:
		return ErrTransportShutdown
	case <-timeout:
		return fmt.Errorf("send timed out")
	}
}

// Connect is used to connect this transport to another transport for
// a given peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	if !i.shutdown {
		close(i.shutdownCh)
		i.shutdown = true
	}
	i.peers = make(map[string]*InmemTransport)
	return nil
}

// Listen is an empty function as there is no need to defer
// initialisation of the InMem service
func (i *InmemTransport) Listen() {
}

// ConnectAll fully connects a list of in-memory transports.
func ConnectAll(transports []*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalAddr(), b)
			}
		}
	}
}
