package rowformat

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestValueRoundTripPlainRow(t *testing.T) {
	in := Markers{Timestamp: 1_700_000_000_000_000, Payload: []byte("hello")}
	out, err := DecodeValue(EncodeValue(in))
	require.NoError(t, err)
	require.Equal(t, in.Timestamp, out.Timestamp)
	require.False(t, out.Tombstone)
	require.False(t, out.HasTTL)
	require.Equal(t, []byte("hello"), out.Payload)
}

func TestValueRoundTripExpiring(t *testing.T) {
	in := Markers{
		Timestamp: 1_700_000_000_000_000,
		HasTTL:    true,
		TTL:       3600,
		Payload:   []byte("v"),
	}
	out, err := DecodeValue(EncodeValue(in))
	require.NoError(t, err)
	require.True(t, out.HasTTL)
	require.Equal(t, uint32(3600), out.TTL)

	exp, ok := out.ExpiresAt()
	require.True(t, ok)
	require.Equal(t, int64(1_700_000_000+3600), exp)
}

func TestValueRoundTripRangeTombstones(t *testing.T) {
	in := Markers{
		Timestamp: 42,
		RangeTombstones: []RangeTombstone{
			{
				Start:             ck(KindInclusiveStart, "b"),
				End:               ck(KindInclusiveEnd, "d"),
				MarkedForDeleteAt: 41,
				LocalDeletionTime: 1_700_000_000,
			},
			{
				Start:             ck(KindExclusiveStart, "x"),
				End:               ck(KindExclusiveEnd, "z"),
				MarkedForDeleteAt: 40,
				LocalDeletionTime: 1_700_000_100,
			},
		},
		Payload: []byte("p"),
	}
	out, err := DecodeValue(EncodeValue(in))
	require.NoError(t, err)
	require.Len(t, out.RangeTombstones, 2)
	require.Equal(t, in.RangeTombstones[0].MarkedForDeleteAt, out.RangeTombstones[0].MarkedForDeleteAt)
	require.True(t, Equal(in.RangeTombstones[1].Start, out.RangeTombstones[1].Start))
	require.Equal(t, []byte("p"), out.Payload)
}

func TestTombstoneValue(t *testing.T) {
	out, err := DecodeValue(TombstoneValue(99, 1_700_000_000))
	require.NoError(t, err)
	require.True(t, out.Tombstone)
	require.Equal(t, int64(99), out.Timestamp)
	require.Equal(t, uint32(1_700_000_000), out.LocalDeletionTime)
	_, ok := out.ExpiresAt()
	require.False(t, ok)
}

func TestDecodeValueMalformed(t *testing.T) {
	valid := EncodeValue(Markers{
		Timestamp: 1,
		RangeTombstones: []RangeTombstone{{
			Start: ck(KindInclusiveStart, "a"),
			End:   ck(KindInclusiveEnd, "b"),
		}},
	})
	inverted := EncodeValue(Markers{
		Timestamp: 1,
		RangeTombstones: []RangeTombstone{{
			Start: ck(KindInclusiveStart, "b"),
			End:   ck(KindInclusiveEnd, "a"),
		}},
	})
	cases := map[string][]byte{
		"empty":                 nil,
		"short header":          {0x00, 0x01},
		"unknown flags":         append([]byte{0x80}, valid[1:]...),
		"tombstone with ttl":    {flagTombstone | flagTTL | flagLocalDeletionTime, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0},
		"tombstone without ldt": {flagTombstone, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0},
		"missing rt count":      valid[:9],
		"truncated rt":          valid[:len(valid)-4],
		"inverted rt bounds":    inverted,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeValue(raw)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedValue), "want ErrMalformedValue, got %v", err)
		})
	}
}

func TestPartitionHeaderRoundTrip(t *testing.T) {
	in := PartitionHeader{MarkedForDeleteAt: 12345, LocalDeletionTime: 67890}
	out, err := DecodePartitionHeader(EncodePartitionHeader(in))
	require.NoError(t, err)
	require.Equal(t, in, out)

	_, err = DecodePartitionHeader([]byte("short"))
	require.True(t, errors.Is(err, ErrMalformedValue))
}

func TestPartitionHeaderMerge(t *testing.T) {
	h := PartitionHeader{MarkedForDeleteAt: 10, LocalDeletionTime: 100}
	h.Merge(PartitionHeader{MarkedForDeleteAt: 20, LocalDeletionTime: 50})
	require.Equal(t, int64(20), h.MarkedForDeleteAt)
	require.Equal(t, uint32(50), h.LocalDeletionTime)

	h.Merge(PartitionHeader{MarkedForDeleteAt: 5, LocalDeletionTime: 999})
	require.Equal(t, int64(20), h.MarkedForDeleteAt)

	h.Merge(PartitionHeader{MarkedForDeleteAt: 20, LocalDeletionTime: 80})
	require.Equal(t, uint32(80), h.LocalDeletionTime)
}
