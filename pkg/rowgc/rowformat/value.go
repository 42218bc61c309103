package rowformat

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const (
	flagTombstone = 1 << iota
	flagTTL
	flagLocalDeletionTime
)

// RangeTombstone deletes every row whose clustering key falls inside
// [Start, End] under Compare's kind-aware order.
type RangeTombstone struct {
	Start             ClusteringKey
	End               ClusteringKey
	MarkedForDeleteAt int64  // microseconds
	LocalDeletionTime uint32 // unix seconds
}

// Covers reports whether ck lies inside the tombstone's bounds.
func (rt RangeTombstone) Covers(ck ClusteringKey) bool {
	return Compare(rt.Start, ck) <= 0 && Compare(ck, rt.End) <= 0
}

// Clone deep-copies the tombstone. Decoded tombstones alias the value
// buffer they came from; a tombstone retained past the current call
// must be cloned.
func (rt RangeTombstone) Clone() RangeTombstone {
	out := rt
	out.Start = cloneClusteringKey(rt.Start)
	out.End = cloneClusteringKey(rt.End)
	return out
}

func cloneClusteringKey(ck ClusteringKey) ClusteringKey {
	if ck == nil {
		return nil
	}
	out := make(ClusteringKey, len(ck))
	for i, c := range ck {
		out[i] = Component{Kind: c.Kind, Value: append([]byte(nil), c.Value...)}
	}
	return out
}

// Markers is the liveness state decoded from a stored value.
//
// Layout (BigEndian):
//
//	u8 flags, i64 timestamp (microseconds)
//	[u32 ttl seconds] [u32 local deletion time, unix seconds]
//	u16 range tombstone count, then per tombstone:
//	    start ck, end ck (clustering-section encoding),
//	    i64 marked_for_delete_at, u32 local_deletion_time
//	payload: remaining bytes, opaque
type Markers struct {
	Timestamp int64 // write timestamp, microseconds
	Tombstone bool  // row-level tombstone; Timestamp is the deletion time

	TTL    uint32 // seconds; valid when HasTTL
	HasTTL bool

	LocalDeletionTime uint32 // unix seconds; valid when HasLDT
	HasLDT            bool

	RangeTombstones []RangeTombstone
	Payload         []byte
}

// ExpiresAt returns the unix second at which a TTL'd row dies, and
// whether the row carries a TTL at all.
func (m Markers) ExpiresAt() (int64, bool) {
	if !m.HasTTL {
		return 0, false
	}
	return m.Timestamp/1_000_000 + int64(m.TTL), true
}

// DecodeValue parses a stored value into Markers. Slices alias raw.
func DecodeValue(raw []byte) (Markers, error) {
	var m Markers
	b := raw
	if len(b) < 9 {
		return m, errors.Wrap(ErrMalformedValue, "value shorter than marker header")
	}
	flags := b[0]
	if flags&^(flagTombstone|flagTTL|flagLocalDeletionTime) != 0 {
		return m, errors.Wrapf(ErrMalformedValue, "unknown flag bits %#x", flags)
	}
	m.Tombstone = flags&flagTombstone != 0
	m.HasTTL = flags&flagTTL != 0
	m.HasLDT = flags&flagLocalDeletionTime != 0
	m.Timestamp = int64(binary.BigEndian.Uint64(b[1:9]))
	b = b[9:]

	if m.Tombstone && m.HasTTL {
		return m, errors.Wrap(ErrMalformedValue, "tombstone with ttl")
	}
	if m.Tombstone && !m.HasLDT {
		return m, errors.Wrap(ErrMalformedValue, "tombstone without local deletion time")
	}

	if m.HasTTL {
		if len(b) < 4 {
			return m, errors.Wrap(ErrMalformedValue, "truncated ttl")
		}
		m.TTL = binary.BigEndian.Uint32(b)
		b = b[4:]
	}
	if m.HasLDT {
		if len(b) < 4 {
			return m, errors.Wrap(ErrMalformedValue, "truncated local deletion time")
		}
		m.LocalDeletionTime = binary.BigEndian.Uint32(b)
		b = b[4:]
	}

	if len(b) < 2 {
		return m, errors.Wrap(ErrMalformedValue, "missing range tombstone count")
	}
	count := int(binary.BigEndian.Uint16(b))
	b = b[2:]
	if count > 0 {
		m.RangeTombstones = make([]RangeTombstone, 0, count)
	}
	for i := 0; i < count; i++ {
		var rt RangeTombstone
		var err error
		rt.Start, b, err = decodeClusteringKey(b)
		if err != nil {
			return m, errors.Wrapf(ErrMalformedValue, "range tombstone %d start: %v", i, err)
		}
		rt.End, b, err = decodeClusteringKey(b)
		if err != nil {
			return m, errors.Wrapf(ErrMalformedValue, "range tombstone %d end: %v", i, err)
		}
		if len(b) < 12 {
			return m, errors.Wrapf(ErrMalformedValue, "truncated range tombstone %d", i)
		}
		rt.MarkedForDeleteAt = int64(binary.BigEndian.Uint64(b))
		rt.LocalDeletionTime = binary.BigEndian.Uint32(b[8:])
		b = b[12:]
		if Compare(rt.Start, rt.End) > 0 {
			return m, errors.Wrapf(ErrMalformedValue, "range tombstone %d bounds inverted", i)
		}
		m.RangeTombstones = append(m.RangeTombstones, rt)
	}
	m.Payload = b
	return m, nil
}

// EncodeValue is the inverse of DecodeValue.
func EncodeValue(m Markers) []byte {
	var buf bytes.Buffer
	var flags byte
	if m.Tombstone {
		flags |= flagTombstone
	}
	if m.HasTTL {
		flags |= flagTTL
	}
	if m.HasLDT {
		flags |= flagLocalDeletionTime
	}
	buf.WriteByte(flags)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(m.Timestamp))
	buf.Write(ts[:])
	var u32 [4]byte
	if m.HasTTL {
		binary.BigEndian.PutUint32(u32[:], m.TTL)
		buf.Write(u32[:])
	}
	if m.HasLDT {
		binary.BigEndian.PutUint32(u32[:], m.LocalDeletionTime)
		buf.Write(u32[:])
	}
	var cnt [2]byte
	binary.BigEndian.PutUint16(cnt[:], uint16(len(m.RangeTombstones)))
	buf.Write(cnt[:])
	for _, rt := range m.RangeTombstones {
		encodeClusteringKey(&buf, rt.Start)
		encodeClusteringKey(&buf, rt.End)
		binary.BigEndian.PutUint64(ts[:], uint64(rt.MarkedForDeleteAt))
		buf.Write(ts[:])
		binary.BigEndian.PutUint32(u32[:], rt.LocalDeletionTime)
		buf.Write(u32[:])
	}
	buf.Write(m.Payload)
	return buf.Bytes()
}

// TombstoneValue builds the encoded row tombstone an expired TTL row is
// rewritten into: same write timestamp, deletion visible at ldt.
func TombstoneValue(timestamp int64, ldt uint32) []byte {
	return EncodeValue(Markers{
		Timestamp:         timestamp,
		Tombstone:         true,
		HasLDT:            true,
		LocalDeletionTime: ldt,
	})
}
