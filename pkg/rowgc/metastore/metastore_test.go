package metastore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemStoreSetGet(t *testing.T) {
	ms := NewMemStore()
	ms.Set([]byte("a"), []byte("1"))
	ms.Set([]byte("b"), []byte("2"))
	ms.Set([]byte("a"), []byte("3")) // overwrite

	v, ok, err := ms.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("3"), v)

	_, ok, err = ms.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)

	require.Equal(t, 2, ms.Len())
}

func TestMemStoreScanPrefix(t *testing.T) {
	ms := NewMemStore()
	for _, k := range []string{"pk1/a", "pk1/b", "pk1/c", "pk2/a", "zz"} {
		ms.Set([]byte(k), []byte(k))
	}

	var got []string
	err := ms.ScanPrefix([]byte("pk1/"), 0, func(key, value []byte) error {
		require.Equal(t, key, value)
		got = append(got, string(key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"pk1/a", "pk1/b", "pk1/c"}, got)

	got = got[:0]
	require.NoError(t, ms.ScanPrefix([]byte("pk1/"), 2, func(key, _ []byte) error {
		got = append(got, string(key))
		return nil
	}))
	require.Equal(t, []string{"pk1/a", "pk1/b"}, got)

	// Empty prefix walks everything in order.
	got = got[:0]
	require.NoError(t, ms.ScanPrefix(nil, 0, func(key, _ []byte) error {
		got = append(got, string(key))
		return nil
	}))
	require.Equal(t, []string{"pk1/a", "pk1/b", "pk1/c", "pk2/a", "zz"}, got)
}

func TestMemStoreSetCopies(t *testing.T) {
	ms := NewMemStore()
	k := []byte("key")
	v := []byte("val")
	ms.Set(k, v)
	k[0] = 'x'
	v[0] = 'x'

	got, ok, err := ms.Get([]byte("key"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("val"), got)
}

func TestHandlePublishOnce(t *testing.T) {
	var h Handle
	_, ok := h.Load()
	require.False(t, ok)

	first := NewMemStore()
	second := NewMemStore()
	require.True(t, h.Attach(first))
	require.False(t, h.Attach(second), "second attach must lose")

	s, ok := h.Load()
	require.True(t, ok)
	require.Same(t, Store(first), s)

	require.False(t, h.Attach(nil))
	s, ok = h.Load()
	require.True(t, ok)
	require.Same(t, Store(first), s)
}

func TestHandleConcurrentAttach(t *testing.T) {
	var h Handle
	stores := []*MemStore{NewMemStore(), NewMemStore(), NewMemStore(), NewMemStore()}

	var wg sync.WaitGroup
	for _, s := range stores {
		wg.Add(1)
		go func(s *MemStore) {
			defer wg.Done()
			h.Attach(s)
		}(s)
	}
	wg.Wait()

	got, ok := h.Load()
	require.True(t, ok)
	found := false
	for _, s := range stores {
		if got == Store(s) {
			found = true
		}
	}
	require.True(t, found, "loaded store must be one of the attached ones")
}
