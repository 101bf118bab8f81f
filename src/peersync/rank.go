package peersync

import (
	"sort"
	"strings"

	"github.com/catalyst-network/catalyst/src/ledger"
)

// claim is the answer of one peer in a round.
type claim[K comparable] struct {
	peerID uint32
	key    K
}

// group aggregates the peers that gave the same answer.
type group[K comparable] struct {
	Key        K
	Count      int
	Reputation int
	Peers      []uint32
}

// ScoreSource gives the reputation of a peer.
type ScoreSource interface {
	ScoreOf(peerID uint32) int
}

// rank groups claims by key, and orders the groups by count, then
// reputation, then key. less orders keys, and makes the ranking
// deterministic when count and reputation are equal: the key that is not
// less wins.
func rank[K comparable](claims []claim[K], scores ScoreSource, less func(a, b K) bool) []*group[K] {
	byKey := make(map[K]*group[K])
	groups := []*group[K]{}

	for _, c := range claims {
		g, ok := byKey[c.key]
		if !ok {
			g = &group[K]{Key: c.key}
			byKey[c.key] = g
			groups = append(groups, g)
		}
		g.Count++
		g.Peers = append(g.Peers, c.peerID)
		if scores != nil {
			g.Reputation += scores.ScoreOf(c.peerID)
		}
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Reputation != b.Reputation {
			return a.Reputation > b.Reputation
		}
		return less(b.Key, a.Key)
	})

	return groups
}

// quorum reports whether count answers out of contacted peers pass the
// threshold. The count must be strictly greater than threshold*contacted.
func quorum(count, contacted int, threshold float64) bool {
	if contacted == 0 {
		return false
	}
	return float64(count) > threshold*float64(contacted)
}

// decided reports whether the leading group can no longer be overtaken by
// the pending answers.
func decided[K comparable](groups []*group[K], pending, contacted int, threshold float64) bool {
	if len(groups) == 0 || !quorum(groups[0].Count, contacted, threshold) {
		return false
	}
	second := 0
	if len(groups) > 1 {
		second = groups[1].Count
	}
	return groups[0].Count > second+pending
}

func lessIndex(a, b ledger.DeltaIndex) bool {
	if a.Height != b.Height {
		return a.Height < b.Height
	}
	return a.Cid < b.Cid
}

// rangeKey is the comparable fingerprint of a sequence of indexes.
func rangeKey(indexes []ledger.DeltaIndex) string {
	parts := make([]string, len(indexes))
	for i, idx := range indexes {
		parts[i] = idx.String()
	}
	return strings.Join(parts, ",")
}

func lessString(a, b string) bool {
	return a < b
}
