package reputation

import (
	"sync"
)

// Store persists peer scores across restarts.
type Store interface {
	// Scores returns every persisted score.
	Scores() (map[uint32]int, error)
	// SetScore records the current score of a peer.
	SetScore(peerID uint32, score int) error
	Close() error
}

// InmemStore is a Store that does not outlive the process.
type InmemStore struct {
	l      sync.RWMutex
	scores map[uint32]int
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		scores: make(map[uint32]int),
	}
}

// Scores implements the Store interface.
func (s *InmemStore) Scores() (map[uint32]int, error) {
	s.l.RLock()
	defer s.l.RUnlock()

	res := make(map[uint32]int, len(s.scores))
	for k, v := range s.scores {
		res[k] = v
	}
	return res, nil
}

// SetScore implements the Store interface.
func (s *InmemStore) SetScore(peerID uint32, score int) error {
	s.l.Lock()
	defer s.l.Unlock()
	s.scores[peerID] = score
	return nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
