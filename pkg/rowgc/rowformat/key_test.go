package rowformat

import (
	"bytes"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestKeyRoundTripDiscoverMode(t *testing.T) {
	in := Key{
		PartitionKey: []byte("user:42"),
		Clustering: ClusteringKey{
			{Kind: KindClustering, Value: []byte("2024-01-01")},
			{Kind: KindClustering, Value: []byte("eu-west")},
		},
		CellPath: []byte("body"),
	}
	raw := EncodeKey(in, 0)
	out, err := DecodeKey(raw, 0)
	require.NoError(t, err)
	require.Equal(t, in.PartitionKey, out.PartitionKey)
	require.Equal(t, in.Clustering, out.Clustering)
	require.Equal(t, in.CellPath, out.CellPath)
	require.True(t, out.SamePartition(raw))
}

func TestKeyRoundTripFixedLength(t *testing.T) {
	in := Key{
		PartitionKey: []byte("12345678"),
		Clustering:   ClusteringKey{{Kind: KindClustering, Value: []byte("a")}},
	}
	raw := EncodeKey(in, 8)
	out, err := DecodeKey(raw, 8)
	require.NoError(t, err)
	require.Equal(t, in.PartitionKey, out.PartitionKey)
	require.Equal(t, raw[:8], out.PartitionSection())
	require.Empty(t, out.CellPath)
}

func TestKeyEmptyClustering(t *testing.T) {
	raw := EncodeKey(Key{PartitionKey: []byte("pk")}, 0)
	out, err := DecodeKey(raw, 0)
	require.NoError(t, err)
	require.Nil(t, out.Clustering)
}

func TestDecodeKeyMalformed(t *testing.T) {
	cases := map[string]struct {
		raw []byte
		pk  int
	}{
		"empty discover":         {nil, 0},
		"short fixed pk":         {[]byte("abc"), 8},
		"truncated pk length":    {[]byte{0x00}, 0},
		"pk shorter than length": {[]byte{0x00, 0x05, 'a', 'b'}, 0},
		"missing component count": {
			[]byte{0x00, 0x02, 'p', 'k'}, 0,
		},
		"truncated component": {
			[]byte{0x00, 0x02, 'p', 'k', 2, byte(KindClustering), 0x00, 0x01, 'x'}, 0,
		},
		"component longer than key": {
			[]byte{0x00, 0x01, 'p', 1, byte(KindClustering), 0x00, 0x09, 'x'}, 0,
		},
		"unknown kind": {
			[]byte{0x00, 0x01, 'p', 1, 0x09, 0x00, 0x01, 'x'}, 0,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeKey(tc.raw, tc.pk)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedKey), "want ErrMalformedKey, got %v", err)
		})
	}
}

func TestPartitionSuccessor(t *testing.T) {
	s, ok := PartitionSuccessor([]byte{0x01, 0x02})
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x03}, s)

	s, ok = PartitionSuccessor([]byte{0x01, 0xff, 0xff})
	require.True(t, ok)
	require.Equal(t, []byte{0x02}, s)

	_, ok = PartitionSuccessor([]byte{0xff, 0xff})
	require.False(t, ok)
}

// The successor must sort after every key of the partition and not skip
// into the partition itself.
func TestPartitionSuccessorBoundsPartition(t *testing.T) {
	k := Key{
		PartitionKey: []byte("pk\xff"),
		Clustering:   ClusteringKey{{Kind: KindClustering, Value: bytes.Repeat([]byte{0xff}, 8)}},
		CellPath:     bytes.Repeat([]byte{0xff}, 4),
	}
	raw := EncodeKey(k, 0)
	dec, err := DecodeKey(raw, 0)
	require.NoError(t, err)
	succ, ok := PartitionSuccessor(dec.PartitionSection())
	require.True(t, ok)
	require.Positive(t, bytes.Compare(succ, raw))
}
