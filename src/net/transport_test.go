package net

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/catalyst-network/catalyst/src/common"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport("")
		return it
	case TCP:
		tt, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, "transport"))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

func connect(ttype int, a, b Transport) {
	if ttype == INMEM {
		a.(*InmemTransport).Connect(b.LocalAddr(), b)
		b.(*InmemTransport).Connect(a.LocalAddr(), a)
	}
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Send(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, t)
		defer trans1.Close()
		trans2 := NewTestTransport(ttype, t)
		defer trans2.Close()
		connect(ttype, trans1, trans2)

		env, err := NewEnvelope(common.NewCorrelationID(), 7, &DeltaHistoryRequest{Height: 10, Range: 5})
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		env.Signature = []byte("sig")
		env.SenderSignature = []byte("hop")

		received := make(chan *Envelope, 1)
		go func() {
			select {
			case rpc := <-trans1.Consumer():
				received <- rpc.Envelope
				rpc.Respond(nil)
			case <-time.After(time.Second):
				close(received)
			}
		}()

		if err := trans2.Send(trans1.LocalAddr(), env); err != nil {
			t.Fatalf("err: %v", err)
		}

		got, ok := <-received
		if !ok {
			t.Fatalf("timeout")
		}
		if !reflect.DeepEqual(got, env) {
			t.Fatalf("envelope mismatch: %#v %#v", got, env)
		}

		// pooled connection is reused
		go func() {
			rpc := <-trans1.Consumer()
			rpc.Respond(errors.New("refused"))
		}()

		err = trans2.Send(trans1.LocalAddr(), env)
		if err == nil || err.Error() != "refused" {
			t.Fatalf("Send should return the remote error, got %v", err)
		}
	}
}

func TestTransport_SendUnknownTarget(t *testing.T) {
	_, trans := NewInmemTransport("")
	defer trans.Close()

	env, _ := NewEnvelope(common.NilCorrelationID, 1, &PingRequest{})
	if err := trans.Send("nowhere", env); err == nil {
		t.Fatalf("Send to an unknown target should fail")
	}
}

func TestInmemTransport_Shutdown(t *testing.T) {
	_, trans1 := NewInmemTransport("")
	_, trans2 := NewInmemTransport("")
	connect(INMEM, trans1, trans2)

	trans1.Close()

	env, _ := NewEnvelope(common.NilCorrelationID, 1, &PingRequest{})
	if err := trans2.Send(trans1.LocalAddr(), env); err != ErrTransportShutdown {
		t.Fatalf("Send to a closed transport should return ErrTransportShutdown, got %v", err)
	}
	if err := trans1.Send(trans2.LocalAddr(), env); err != ErrTransportShutdown {
		t.Fatalf("Send from a closed transport should return ErrTransportShutdown, got %v", err)
	}
}

func TestPeerSender(t *testing.T) {
	_, trans1 := NewInmemTransport("")
	_, trans2 := NewInmemTransport("")
	connect(INMEM, trans1, trans2)

	sender := NewPeerSender(trans2, mapAddrResolver{1: trans1.LocalAddr()})

	go func() {
		rpc := <-trans1.Consumer()
		rpc.Respond(nil)
	}()

	env, _ := NewEnvelope(common.NilCorrelationID, 2, &PingRequest{})
	if err := sender.SendEnvelope(1, env); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := sender.SendEnvelope(3, env); !errors.Is(err, ErrUnknownPeer) {
		t.Fatalf("unknown peer should return ErrUnknownPeer, got %v", err)
	}
}

type mapAddrResolver map[uint32]string

func (m mapAddrResolver) Addr(id uint32) (string, bool) {
	a, ok := m[id]
	return a, ok
}
