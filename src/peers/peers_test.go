package peers

import (
	"fmt"
	"io/ioutil"
	"os"
	"testing"

	"github.com/catalyst-network/catalyst/src/crypto/keys"
)

func initPeers(t *testing.T, n int) []*Peer {
	res := []*Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		res = append(res, NewPeer(
			keys.PublicKeyHex(&key.PublicKey),
			fmt.Sprintf("addr%d", i),
			fmt.Sprintf("peer%d", i),
		))
	}
	return res
}

func TestJSONPeerSet(t *testing.T) {
	dir, err := ioutil.TempDir("", "catalyst-peers")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeerSet(dir)

	if _, err := store.PeerSet(); err == nil {
		t.Fatalf("reading a missing peers.json should fail")
	}

	peers := initPeers(t, 3)

	if err := store.Write(peers); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if peerSet.Len() != 3 {
		t.Fatalf("peerSet should contain 3 peers, not %d", peerSet.Len())
	}

	for _, p := range peers {
		loaded, ok := peerSet.ByID[p.ID()]
		if !ok {
			t.Fatalf("peer %d missing after reload", p.ID())
		}
		if loaded.NetAddr != p.NetAddr || loaded.Moniker != p.Moniker {
			t.Fatalf("peer %d not persisted correctly: %+v", p.ID(), loaded)
		}
		if loaded.PubKey() == nil {
			t.Fatalf("peer %d public key should parse", p.ID())
		}
	}
}

func TestAddressBookSample(t *testing.T) {
	peers := initPeers(t, 6)
	self := peers[0].ID()
	ab := NewAddressBook(NewPeerSet(peers), self)

	if ab.Len() != 5 {
		t.Fatalf("Len should exclude self, got %d", ab.Len())
	}

	for i := 0; i < 20; i++ {
		sample := ab.SamplePeers(3, peers[1].ID())
		if len(sample) != 3 {
			t.Fatalf("sample should contain 3 peers, got %d", len(sample))
		}
		seen := map[uint32]bool{}
		for _, p := range sample {
			if p.ID() == self || p.ID() == peers[1].ID() {
				t.Fatalf("sample contains an excluded peer")
			}
			if seen[p.ID()] {
				t.Fatalf("sample contains duplicates")
			}
			seen[p.ID()] = true
		}
	}

	if all := ab.SamplePeers(10); len(all) != 5 {
		t.Fatalf("oversized sample should return every other peer, got %d", len(all))
	}

	ab.MarkAlive(peers[2].ID(), false)
	if ab.IsAlive(peers[2].ID()) {
		t.Fatalf("peer should be dead")
	}
	for _, p := range ab.SamplePeers(10) {
		if p.ID() == peers[2].ID() {
			t.Fatalf("dead peer should not be sampled")
		}
	}
	if dead := ab.Dead(); len(dead) != 1 || dead[0].ID() != peers[2].ID() {
		t.Fatalf("Dead should return peer 2, got %v", dead)
	}

	ab.MarkAlive(peers[2].ID(), true)
	if !ab.IsAlive(peers[2].ID()) {
		t.Fatalf("peer should be alive again")
	}

	if ab.IsAlive(12345) {
		t.Fatalf("unknown peer should not be alive")
	}
}

func TestAddressBookResolve(t *testing.T) {
	peers := initPeers(t, 2)
	ab := NewAddressBook(NewPeerSet(peers[:1]), 0)

	if addr, ok := ab.Addr(peers[0].ID()); !ok || addr != "addr0" {
		t.Fatalf("Addr should resolve addr0, got %q", addr)
	}

	if _, ok := ab.PubKey(peers[1].ID()); ok {
		t.Fatalf("unknown peer should not resolve")
	}

	ab.AddPeer(peers[1])

	if pub, ok := ab.PubKey(peers[1].ID()); !ok || pub == nil {
		t.Fatalf("added peer should resolve")
	}
}
