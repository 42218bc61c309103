package rowformat

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

const partitionHeaderLen = 12

// PartitionHeader is a partition-level tombstone: every row of the
// partition with a write timestamp at or below MarkedForDeleteAt is dead
// once the grace window on LocalDeletionTime has passed. Headers are
// looked up from the side metadata store during a compaction pass and
// never persisted by this package.
type PartitionHeader struct {
	MarkedForDeleteAt int64  // microseconds
	LocalDeletionTime uint32 // unix seconds
}

// Merge folds another header into h, keeping the most recent deletion.
func (h *PartitionHeader) Merge(o PartitionHeader) {
	if o.MarkedForDeleteAt > h.MarkedForDeleteAt ||
		(o.MarkedForDeleteAt == h.MarkedForDeleteAt && o.LocalDeletionTime > h.LocalDeletionTime) {
		*h = o
	}
}

// DecodePartitionHeader parses a meta-store value. The encoding is a
// fixed 12 bytes: i64 marked_for_delete_at, u32 local_deletion_time.
func DecodePartitionHeader(raw []byte) (PartitionHeader, error) {
	var h PartitionHeader
	if len(raw) != partitionHeaderLen {
		return h, errors.Wrapf(ErrMalformedValue, "partition header is %d bytes, want %d", len(raw), partitionHeaderLen)
	}
	h.MarkedForDeleteAt = int64(binary.BigEndian.Uint64(raw))
	h.LocalDeletionTime = binary.BigEndian.Uint32(raw[8:])
	return h, nil
}

// EncodePartitionHeader is the inverse of DecodePartitionHeader.
func EncodePartitionHeader(h PartitionHeader) []byte {
	out := make([]byte, partitionHeaderLen)
	binary.BigEndian.PutUint64(out, uint64(h.MarkedForDeleteAt))
	binary.BigEndian.PutUint32(out[8:], h.LocalDeletionTime)
	return out
}
