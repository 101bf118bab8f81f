package catalyst

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/catalyst-network/catalyst/src/config"
	"github.com/catalyst-network/catalyst/src/crypto/keys"
	"github.com/catalyst-network/catalyst/src/ledger"
	"github.com/catalyst-network/catalyst/src/net"
	"github.com/catalyst-network/catalyst/src/peers"
	"github.com/catalyst-network/catalyst/src/reputation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitFromDataDir(t *testing.T) {
	dataDir := t.TempDir()

	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	other, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(dataDir)
	conf.DatabaseDir = filepath.Join(dataDir, config.DefaultBadgerFile)
	conf.BindAddr = "127.0.0.1:0"
	conf.Store = true
	conf.NoService = true

	require.NoError(t, keys.NewSimpleKeyfile(conf.Keyfile()).WriteKey(key))
	require.NoError(t, peers.NewJSONPeerSet(dataDir).Write([]*peers.Peer{
		peers.NewPeer(keys.PublicKeyHex(&key.PublicKey), "127.0.0.1:1", "self"),
		peers.NewPeer(keys.PublicKeyHex(&other.PublicKey), "127.0.0.1:2", "other"),
	}))

	engine := NewCatalyst(conf)
	require.NoError(t, engine.Init())
	defer engine.Shutdown()

	assert.Equal(t, 2, engine.Peers.Len())
	assert.IsType(t, &reputation.BadgerStore{}, engine.Store)
	assert.IsType(t, &net.NetworkTransport{}, engine.Transport)
	assert.Nil(t, engine.Service)
	assert.Equal(t, keys.PublicKeyID(keys.FromPublicKey(&key.PublicKey)), engine.Node.ID())
}

func TestInitWithoutKey(t *testing.T) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(t.TempDir())

	assert.Error(t, NewCatalyst(conf).Init())
}

func TestInitWithoutPeers(t *testing.T) {
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.SetDataDir(t.TempDir())
	conf.Key = key

	assert.Error(t, NewCatalyst(conf).Init())
}

func TestInitRejectsInvalidConfig(t *testing.T) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)
	conf.QuorumThreshold = 1

	assert.Error(t, NewCatalyst(conf).Init())
}

func TestRunInmem(t *testing.T) {
	const n = 3

	ks := make([]*ecdsa.PrivateKey, n)
	pirs := make([]*peers.Peer, n)
	transports := make([]*net.InmemTransport, n)

	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		ks[i] = key

		addr, trans := net.NewInmemTransport("")
		transports[i] = trans
		pirs[i] = peers.NewPeer(keys.PublicKeyHex(&key.PublicKey), addr, fmt.Sprintf("node%d", i))
	}
	net.ConnectAll(transports)
	peerSet := peers.NewPeerSet(pirs)

	engines := make([]*Catalyst, n)
	for i := 0; i < n; i++ {
		conf := config.NewTestConfig(t, logrus.DebugLevel)
		conf.Key = ks[i]
		conf.Moniker = fmt.Sprintf("node%d", i)
		conf.NoService = true

		engine := NewCatalyst(conf)
		engine.Peers = peerSet
		engine.Transport = transports[i]
		engine.Ledger = ledger.NewInmemLedgerWithHeight(4)

		require.NoError(t, engine.Init())
		engines[i] = engine

		go engine.Run()
	}

	defer func() {
		for _, e := range engines {
			e.Shutdown()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, e := range engines {
		require.NoError(t, e.Node.WaitForDeltaHeight(ctx, 4))
	}

	families, err := engines[0].Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["catalyst_peersync_accepted_height"])
	assert.True(t, names["go_goroutines"])
}
