// Package metastore defines the side metadata-store boundary the
// partition header resolver reads through, plus two implementations: an
// in-memory skiplist store and a pebble-backed store.
package metastore

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// ErrPointLookupUnsupported is returned by stores that only support
// scanning; the resolver falls back to a bounded prefix scan.
var ErrPointLookupUnsupported = errors.New("metastore: point lookup unsupported")

// Store is the read surface consumed by the resolver. Both operations
// read committed state only; the meta store holds nothing but partition
// headers, so no range-deletion reasoning applies to these reads.
type Store interface {
	// Get returns the value stored under key, and whether it exists.
	Get(key []byte) ([]byte, bool, error)
	// ScanPrefix calls fn for each key with the given prefix, in key
	// order, visiting at most limit entries (limit <= 0 means no bound).
	// fn returning an error stops the scan and propagates it.
	ScanPrefix(prefix []byte, limit int, fn func(key, value []byte) error) error
}

// Handle is a publish-once cell for the store reference. The filter is
// constructed before the owning engine has a store to hand it; Attach
// publishes the reference once, atomically visible to compaction threads
// already calling Load. Re-attaching is a no-op.
type Handle struct {
	store atomic.Pointer[holder]
}

type holder struct{ s Store }

// Attach publishes s. The first call wins; later calls are ignored.
// The return reports whether this call published its store.
func (h *Handle) Attach(s Store) bool {
	if s == nil {
		return false
	}
	return h.store.CompareAndSwap(nil, &holder{s: s})
}

// Load returns the attached store, or false if none is attached yet.
func (h *Handle) Load() (Store, bool) {
	p := h.store.Load()
	if p == nil {
		return nil, false
	}
	return p.s, true
}
