package metastore

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

// PebbleStore adapts a pebble database to the Store interface. keyspace
// optionally namespaces the headers inside a shared database, standing in
// for the dedicated column family the metadata usually lives in.
type PebbleStore struct {
	db       *pebble.DB
	keyspace []byte
}

// NewPebbleStore wraps db. keyspace may be nil when the database is
// dedicated to partition headers.
func NewPebbleStore(db *pebble.DB, keyspace []byte) *PebbleStore {
	return &PebbleStore{db: db, keyspace: keyspace}
}

func (ps *PebbleStore) wrap(key []byte) []byte {
	if len(ps.keyspace) == 0 {
		return key
	}
	out := make([]byte, 0, len(ps.keyspace)+len(key))
	out = append(out, ps.keyspace...)
	return append(out, key...)
}

// Get implements Store.
func (ps *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := ps.db.Get(ps.wrap(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "metastore: pebble get")
	}
	out := append([]byte(nil), v...)
	if err := closer.Close(); err != nil {
		return nil, false, errors.Wrap(err, "metastore: pebble get close")
	}
	return out, true, nil
}

// ScanPrefix implements Store.
func (ps *PebbleStore) ScanPrefix(prefix []byte, limit int, fn func(key, value []byte) error) error {
	lower := ps.wrap(prefix)
	opts := &pebble.IterOptions{LowerBound: lower}
	if upper, ok := prefixSuccessor(lower); ok {
		opts.UpperBound = upper
	}
	iter, err := ps.db.NewIter(opts)
	if err != nil {
		return errors.Wrap(err, "metastore: pebble iter")
	}
	defer func() { _ = iter.Close() }()

	seen := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		if limit > 0 && seen >= limit {
			break
		}
		key := iter.Key()
		if !bytes.HasPrefix(key, lower) {
			break
		}
		if err := fn(key[len(ps.keyspace):], iter.Value()); err != nil {
			return err
		}
		seen++
	}
	return errors.Wrap(iter.Error(), "metastore: pebble scan")
}

// prefixSuccessor returns the smallest key greater than every key with
// the given prefix, or false if none exists.
func prefixSuccessor(prefix []byte) ([]byte, bool) {
	end := len(prefix)
	for end > 0 && prefix[end-1] == 0xff {
		end--
	}
	if end == 0 {
		return nil, false
	}
	out := make([]byte, end)
	copy(out, prefix[:end])
	out[end-1]++
	return out, true
}
