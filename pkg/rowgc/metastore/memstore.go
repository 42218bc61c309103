package metastore

import (
	"bytes"
	"math/rand"
	"sync"
	"time"
)

const maxLevel = 32 // Maximum number of levels in the skiplist
const p = 0.25      // Probability for level increase

type node struct {
	key   []byte
	value []byte
	next  []*node
}

// MemStore is a sorted in-memory Store backed by a skiplist. It is the
// reference implementation used in tests and examples; hosts embed the
// real storage substrate behind the same interface.
type MemStore struct {
	mutex   sync.RWMutex
	head    *node
	height  int
	length  int
	randSrc rand.Source
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		head: &node{
			next: make([]*node, maxLevel),
		},
		randSrc: rand.NewSource(time.Now().UnixNano()),
		height:  1,
	}
}

func (ms *MemStore) randomLevel() int {
	level := 1
	for ; level < maxLevel && rand.New(ms.randSrc).Float64() < p; level++ {
	}
	return level
}

// Set inserts or updates a key-value pair. Both slices are copied.
func (ms *MemStore) Set(key, value []byte) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	update := make([]*node, maxLevel)
	current := ms.head

	for i := ms.height - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].key, key) < 0 {
			current = current.next[i]
		}
		update[i] = current
	}

	if current.next[0] != nil && bytes.Equal(current.next[0].key, key) {
		current.next[0].value = append([]byte(nil), value...)
		return
	}

	level := ms.randomLevel()
	if level > ms.height {
		for i := ms.height; i < level; i++ {
			update[i] = ms.head
		}
		ms.height = level
	}

	n := &node{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
		next:  make([]*node, level),
	}
	for i := 0; i < level; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	ms.length++
}

// Get implements Store.
func (ms *MemStore) Get(key []byte) ([]byte, bool, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	current := ms.head
	for i := ms.height - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].key, key) < 0 {
			current = current.next[i]
		}
	}
	n := current.next[0]
	if n != nil && bytes.Equal(n.key, key) {
		return n.value, true, nil
	}
	return nil, false, nil
}

// ScanPrefix implements Store, walking level 0 from the first key at or
// above prefix.
func (ms *MemStore) ScanPrefix(prefix []byte, limit int, fn func(key, value []byte) error) error {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	current := ms.head
	for i := ms.height - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].key, prefix) < 0 {
			current = current.next[i]
		}
	}
	seen := 0
	for n := current.next[0]; n != nil && bytes.HasPrefix(n.key, prefix); n = n.next[0] {
		if limit > 0 && seen >= limit {
			break
		}
		if err := fn(n.key, n.value); err != nil {
			return err
		}
		seen++
	}
	return nil
}

// Len returns the number of stored entries.
func (ms *MemStore) Len() int {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()
	return ms.length
}
