// Package ledger defines the local view of the delta chain that a node serves
// to its peers, and that the sync manager reconciles against theirs.
package ledger

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/catalyst-network/catalyst/src/crypto"
)

// DeltaIndex locates one delta in the chain.
type DeltaIndex struct {
	Height uint64
	Cid    string
}

func (d DeltaIndex) String() string {
	return fmt.Sprintf("%d:%s", d.Height, d.Cid)
}

// Ledger is the read side of the ledger that the node exposes to peers.
type Ledger interface {
	// Height returns the height of the latest delta.
	Height() uint64

	// LatestIndex returns the index of the latest delta.
	LatestIndex() DeltaIndex

	// DeltaIndexes returns up to count consecutive indexes starting at
	// height from. The result is shorter when the chain ends earlier.
	DeltaIndexes(from uint64, count uint64) []DeltaIndex
}

// GenesisCid is the content identifier of the delta at height 0.
var GenesisCid = hex.EncodeToString(crypto.SHA256([]byte("catalyst-genesis")))

// InmemLedger is an append-only, in-memory chain of delta indexes.
type InmemLedger struct {
	l       sync.RWMutex
	indexes []DeltaIndex
}

// NewInmemLedger returns a ledger containing only the genesis delta.
func NewInmemLedger() *InmemLedger {
	return &InmemLedger{
		indexes: []DeltaIndex{{Height: 0, Cid: GenesisCid}},
	}
}

// NewInmemLedgerWithHeight returns a ledger whose chain has been extended up
// to the given height.
func NewInmemLedgerWithHeight(height uint64) *InmemLedger {
	l := NewInmemLedger()
	for l.Height() < height {
		l.Append()
	}
	return l
}

// Append extends the chain by one delta and returns its index. The Cid is
// derived from the previous Cid and the new height.
func (l *InmemLedger) Append() DeltaIndex {
	l.l.Lock()
	defer l.l.Unlock()

	prev := l.indexes[len(l.indexes)-1]
	next := DeltaIndex{
		Height: prev.Height + 1,
		Cid:    NextCid(prev.Cid, prev.Height+1),
	}
	l.indexes = append(l.indexes, next)
	return next
}

// Height implements the Ledger interface.
func (l *InmemLedger) Height() uint64 {
	l.l.RLock()
	defer l.l.RUnlock()
	return l.indexes[len(l.indexes)-1].Height
}

// LatestIndex implements the Ledger interface.
func (l *InmemLedger) LatestIndex() DeltaIndex {
	l.l.RLock()
	defer l.l.RUnlock()
	return l.indexes[len(l.indexes)-1]
}

// DeltaIndexes implements the Ledger interface.
func (l *InmemLedger) DeltaIndexes(from uint64, count uint64) []DeltaIndex {
	l.l.RLock()
	defer l.l.RUnlock()

	res := []DeltaIndex{}
	n := uint64(len(l.indexes))
	if from >= n {
		return res
	}
	if count > n-from {
		count = n - from
	}
	for h := from; h < from+count; h++ {
		res = append(res, l.indexes[h])
	}
	return res
}

// NextCid derives the Cid of the delta at height from the Cid of its
// predecessor.
func NextCid(prevCid string, height uint64) string {
	return hex.EncodeToString(crypto.ChainHash([]byte(prevCid), []byte(strconv.FormatUint(height, 10))))
}
