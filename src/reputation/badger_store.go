package reputation

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger"
	"github.com/sirupsen/logrus"
)

const scorePrefix = "score_"

// BadgerStore is a Store backed by a Badger database.
type BadgerStore struct {
	db   *badger.DB
	path string
}

// NewBadgerStore opens an existing database or creates a new one if nothing
// is found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:   handle,
		path: path,
	}, nil
}

func scoreKey(peerID uint32) []byte {
	return []byte(scorePrefix + strconv.FormatUint(uint64(peerID), 10))
}

// Scores implements the Store interface.
func (s *BadgerStore) Scores() (map[uint32]int, error) {
	res := make(map[uint32]int)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(scorePrefix)

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			id, err := strconv.ParseUint(string(item.Key()[len(prefix):]), 10, 32)
			if err != nil {
				return fmt.Errorf("malformed score key %q: %w", item.Key(), err)
			}

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(val) != 8 {
				return fmt.Errorf("malformed score value for peer %d", id)
			}

			res[uint32(id)] = int(int64(binary.BigEndian.Uint64(val)))
		}
		return nil
	})

	return res, err
}

// SetScore implements the Store interface.
func (s *BadgerStore) SetScore(peerID uint32, score int) error {
	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, uint64(int64(score)))

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(scoreKey(peerID), val)
	})
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
