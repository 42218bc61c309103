package rowformat

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// Kind tags a clustering-key component. For concrete rows every component
// is KindClustering; range-tombstone bounds use the start/end variants.
// The byte values double as sort weights when two keys are equal up to
// their kind tags, so the declaration order is load-bearing: at the same
// prefix an exclusive-end bound sorts before the rows it excludes, an
// inclusive-start bound before the rows it includes, and the end/start
// variants after them.
type Kind byte

const (
	KindExclusiveEnd Kind = iota
	KindInclusiveStart
	KindClustering
	KindInclusiveEnd
	KindExclusiveStart

	kindMax = KindExclusiveStart
)

func (k Kind) String() string {
	switch k {
	case KindExclusiveEnd:
		return "excl-end"
	case KindInclusiveStart:
		return "incl-start"
	case KindClustering:
		return "clustering"
	case KindInclusiveEnd:
		return "incl-end"
	case KindExclusiveStart:
		return "excl-start"
	}
	return "invalid"
}

// Component is one typed clustering-key component.
type Component struct {
	Kind  Kind
	Value []byte
}

// ClusteringKey is the ordered component sequence between the partition
// key and the cell path.
type ClusteringKey []Component

// Key is a decoded storage key.
//
// Layout (lengths BigEndian):
//
//	[pk section][u8 component count][components...][cell path]
//	pk section: pkLength raw bytes, or u16 len + bytes when pkLength == 0
//	component:  u8 kind, u16 len, value bytes
//	cell path:  remaining bytes, opaque
type Key struct {
	PartitionKey []byte
	Clustering   ClusteringKey
	CellPath     []byte

	// prefix is the encoded partition-key section, aliasing the raw key.
	prefix []byte
}

// PartitionSection returns the encoded partition-key prefix of the raw
// key, including the length prefix in discover mode. Every key of the
// same partition starts with exactly these bytes.
func (k Key) PartitionSection() []byte { return k.prefix }

// SamePartition reports whether raw begins with k's partition section.
func (k Key) SamePartition(raw []byte) bool {
	return bytes.HasPrefix(raw, k.prefix)
}

// DecodeKey splits raw into partition key, clustering key and cell path.
// pkLength is the configured partition-key byte length; 0 means the key
// carries its own u16 length prefix. Decoding is zero-copy: all returned
// slices alias raw.
func DecodeKey(raw []byte, pkLength int) (Key, error) {
	var k Key
	rest := raw
	switch {
	case pkLength > 0:
		if len(rest) < pkLength {
			return k, errors.Wrapf(ErrMalformedKey, "key shorter than partition key length %d", pkLength)
		}
		k.PartitionKey = rest[:pkLength]
		k.prefix = raw[:pkLength]
		rest = rest[pkLength:]
	default:
		if len(rest) < 2 {
			return k, errors.Wrap(ErrMalformedKey, "missing partition key length prefix")
		}
		n := int(binary.BigEndian.Uint16(rest))
		if len(rest) < 2+n {
			return k, errors.Wrapf(ErrMalformedKey, "truncated partition key: want %d bytes", n)
		}
		k.PartitionKey = rest[2 : 2+n]
		k.prefix = raw[:2+n]
		rest = rest[2+n:]
	}

	ck, rest, err := decodeClusteringKey(rest)
	if err != nil {
		return k, err
	}
	k.Clustering = ck
	k.CellPath = rest
	return k, nil
}

func decodeClusteringKey(b []byte) (ClusteringKey, []byte, error) {
	if len(b) < 1 {
		return nil, nil, errors.Wrap(ErrMalformedKey, "missing clustering component count")
	}
	count := int(b[0])
	b = b[1:]
	if count == 0 {
		return nil, b, nil
	}
	ck := make(ClusteringKey, 0, count)
	for i := 0; i < count; i++ {
		if len(b) < 3 {
			return nil, nil, errors.Wrapf(ErrMalformedKey, "truncated clustering component %d", i)
		}
		kind := Kind(b[0])
		if kind > kindMax {
			return nil, nil, errors.Wrapf(ErrMalformedKey, "unknown clustering kind %d", b[0])
		}
		n := int(binary.BigEndian.Uint16(b[1:3]))
		b = b[3:]
		if len(b) < n {
			return nil, nil, errors.Wrapf(ErrMalformedKey, "truncated clustering component %d: want %d bytes", i, n)
		}
		ck = append(ck, Component{Kind: kind, Value: b[:n]})
		b = b[n:]
	}
	return ck, b, nil
}

// EncodeKey is the inverse of DecodeKey, used by hosts building meta-store
// keys and by tests. pkLength follows the same convention as DecodeKey.
func EncodeKey(k Key, pkLength int) []byte {
	var buf bytes.Buffer
	if pkLength == 0 {
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(k.PartitionKey)))
		buf.Write(l[:])
	}
	buf.Write(k.PartitionKey)
	encodeClusteringKey(&buf, k.Clustering)
	buf.Write(k.CellPath)
	return buf.Bytes()
}

func encodeClusteringKey(buf *bytes.Buffer, ck ClusteringKey) {
	buf.WriteByte(byte(len(ck)))
	for _, c := range ck {
		buf.WriteByte(byte(c.Kind))
		var l [2]byte
		binary.BigEndian.PutUint16(l[:], uint16(len(c.Value)))
		buf.Write(l[:])
		buf.Write(c.Value)
	}
}

// CompareKeys is the total order over whole storage keys: partition
// section bytes first, then the kind-aware clustering order, then the
// cell path. The storage engine must sort with this comparator (or one
// agreeing with it) for range-tombstone containment and skip bounds to
// be valid; hosts on pebble install it as the Comparer's Compare.
//
// A key that does not decode (a bare skip bound, foreign data) falls
// back to raw byte order, which agrees with this order whenever the
// partition sections differ.
func CompareKeys(a, b []byte, pkLength int) int {
	ka, errA := DecodeKey(a, pkLength)
	kb, errB := DecodeKey(b, pkLength)
	if errA != nil || errB != nil {
		return bytes.Compare(a, b)
	}
	if c := bytes.Compare(ka.prefix, kb.prefix); c != 0 {
		return c
	}
	if c := Compare(ka.Clustering, kb.Clustering); c != 0 {
		return c
	}
	return bytes.Compare(ka.CellPath, kb.CellPath)
}

// PartitionSuccessor returns the smallest byte string greater than every
// key carrying the given encoded partition section: the section with its
// last byte incremented, trailing 0xff bytes stripped first. The second
// return is false when no successor exists (the section is all 0xff).
func PartitionSuccessor(section []byte) ([]byte, bool) {
	end := len(section)
	for end > 0 && section[end-1] == 0xff {
		end--
	}
	if end == 0 {
		return nil, false
	}
	out := make([]byte, end)
	copy(out, section[:end])
	out[end-1]++
	return out, true
}
