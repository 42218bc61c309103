// Package filter implements the compaction-time garbage-collection
// decision engine for the wide-column row model: per key-value pair it
// decides whether the pair is still live, must be removed, must be
// rewritten (an expired cell converted to a tombstone), or whether the
// rest of its partition is dead and can be skipped wholesale.
package filter

import (
	"bytes"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/widerow/rowgc/pkg/rowgc/metastore"
	"github.com/widerow/rowgc/pkg/rowgc/rowformat"
	"github.com/widerow/rowgc/pkg/rowgc/truetime"
)

// ValueType tells the engine what kind of entry the host handed it.
// Only plain values are examined; merge operands and unknown types are
// kept, since the engine cannot see the merged result.
type ValueType int

const (
	ValueTypeValue ValueType = iota
	ValueTypeMerge
	ValueTypeOther
)

// DecisionKind enumerates the engine's verdicts.
type DecisionKind int

const (
	DecisionKeep DecisionKind = iota
	DecisionRemove
	DecisionChangeValue
	DecisionRemoveRange
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionKeep:
		return "keep"
	case DecisionRemove:
		return "remove"
	case DecisionChangeValue:
		return "change_value"
	case DecisionRemoveRange:
		return "remove_range"
	}
	return "invalid"
}

// Decision is the verdict for one key-value pair. NewValue is set for
// DecisionChangeValue; SkipUntil for DecisionRemoveRange, asserting that
// every key in [current, SkipUntil) is dead. That assertion holds only
// if the host admits no writes into a partition after recording its
// partition-level delete within the same compacted run.
type Decision struct {
	Kind      DecisionKind
	NewValue  []byte
	SkipUntil []byte
}

var keep = Decision{Kind: DecisionKeep}

// ErrOutOfOrderKey reports that the host called Decide with a key not
// strictly greater than the previous one. The engine's partition and
// range-tombstone state is only valid under sorted iteration, so this
// is fatal for the compaction pass.
var ErrOutOfOrderKey = errors.New("filter: key not in increasing order")

// Config is the policy option set.
type Config struct {
	// PurgeTTLOnExpiration removes expired rows immediately instead of
	// converting them to tombstones. Only safe when every writer uses
	// the same TTL, otherwise shadowed data can come back.
	PurgeTTLOnExpiration bool

	// IgnoreRangeDeleteOnRead makes range- and partition-level
	// tombstones physically removable without waiting out the grace
	// period, trading read-after-delete correctness for space.
	IgnoreRangeDeleteOnRead bool

	// GCGracePeriod is how long a tombstone must stay visible before
	// physical removal.
	GCGracePeriod time.Duration

	// PartitionKeyLength is the fixed byte length of the partition-key
	// prefix; 0 means keys carry their own length prefix.
	PartitionKeyLength int
}

// CompactionFilter is the decision engine. One instance (or Clone) is
// driven sequentially by a single compaction job; the per-partition
// cache below needs no locking. The metadata store reference is the one
// late-bound piece, published through the resolver's publish-once
// handle.
type CompactionFilter struct {
	cfg      Config
	logger   *zap.Logger
	clock    truetime.Clock
	metrics  *Metrics
	resolver *resolver

	// Per-pass state, reset on every partition transition.
	curPartition      []byte
	curHeader         *rowformat.PartitionHeader
	headerUnavailable bool
	activeRTs         []rowformat.RangeTombstone
	lastKey           []byte
}

// New creates a filter with the system clock and no metrics.
func New(l *zap.Logger, cfg Config) *CompactionFilter {
	return &CompactionFilter{
		cfg:      cfg,
		logger:   l,
		clock:    truetime.SystemClock{},
		resolver: newResolver(l, nil),
	}
}

// Name identifies the filter in host logs.
func (f *CompactionFilter) Name() string { return "rowgc.CompactionFilter" }

// SetClock replaces the compaction clock. Call before the first Decide.
func (f *CompactionFilter) SetClock(c truetime.Clock) {
	if c != nil {
		f.clock = c
	}
}

// SetMetrics installs the metrics set shared by clones of this filter.
func (f *CompactionFilter) SetMetrics(m *Metrics) {
	f.metrics = m
	f.resolver.metrics = m
}

// AttachMetaStore publishes the side metadata store the partition
// header resolver reads. Idempotent; safe before or after compactions
// begin.
func (f *CompactionFilter) AttachMetaStore(s metastore.Store) {
	f.resolver.attach(s)
}

// Clone returns a filter for another compaction job: shared policy,
// clock, metrics and store handle, fresh per-pass state.
func (f *CompactionFilter) Clone() *CompactionFilter {
	return &CompactionFilter{
		cfg:      f.cfg,
		logger:   f.logger,
		clock:    f.clock,
		metrics:  f.metrics,
		resolver: f.resolver,
	}
}

// Decide evaluates one key-value pair. Keys must arrive in strictly
// increasing order within a pass; a non-nil error means the pass must
// abort. Malformed input and resolver failures degrade to Keep, since a
// missed removal is reclaimed on a later pass while a wrong removal is
// forever. DecisionRemoveRange relies on the host contract that no
// writes land in a partition after its partition-level delete within
// the same compacted run; hosts that cannot guarantee this must treat
// it as DecisionRemove.
func (f *CompactionFilter) Decide(level int, key []byte, vt ValueType, existingValue []byte) (Decision, error) {
	f.metrics.keyExamined()

	if f.lastKey != nil && rowformat.CompareKeys(key, f.lastKey, f.cfg.PartitionKeyLength) <= 0 {
		f.metrics.orderViolation()
		f.logger.Error("compaction handed keys out of order",
			zap.Int("level", level),
			zap.Int("key_len", len(key)),
			zap.Int("last_key_len", len(f.lastKey)))
		return Decision{}, errors.Wrapf(ErrOutOfOrderKey, "level %d", level)
	}
	f.lastKey = append(f.lastKey[:0], key...)

	if vt != ValueTypeValue {
		return f.emit(keep), nil
	}

	k, err := rowformat.DecodeKey(key, f.cfg.PartitionKeyLength)
	if err != nil {
		f.metrics.malformedKey()
		f.logger.Warn("undecodable key kept", zap.Int("key_len", len(key)), zap.Error(err))
		return f.emit(keep), nil
	}

	if !bytes.Equal(k.PartitionSection(), f.curPartition) {
		f.enterPartition(k)
	}
	if f.headerUnavailable {
		return f.emit(keep), nil
	}

	m, err := rowformat.DecodeValue(existingValue)
	if err != nil {
		f.metrics.malformedValue()
		f.logger.Warn("undecodable value kept", zap.Int("value_len", len(existingValue)), zap.Error(err))
		return f.emit(keep), nil
	}

	f.pruneActive(k.Clustering)
	for _, rt := range m.RangeTombstones {
		// Decoded tombstones alias the host's value buffer; they outlive
		// this call, so clone.
		f.activeRTs = append(f.activeRTs, rt.Clone())
	}

	now := f.clock.Now().Unix()
	grace := int64(f.cfg.GCGracePeriod / time.Second)
	pastGrace := func(ldt uint32) bool { return now > int64(ldt)+grace }

	// Partition-level tombstone: the row is dead, and so is everything
	// after it in the partition that the same header dominates. Skip to
	// the next partition in one step when a sound bound exists.
	if f.curHeader != nil && m.Timestamp <= f.curHeader.MarkedForDeleteAt &&
		(f.cfg.IgnoreRangeDeleteOnRead || pastGrace(f.curHeader.LocalDeletionTime)) {
		if skip, ok := rowformat.PartitionSuccessor(k.PartitionSection()); ok {
			return f.emit(Decision{Kind: DecisionRemoveRange, SkipUntil: skip}), nil
		}
		return f.emit(Decision{Kind: DecisionRemove}), nil
	}

	// Range tombstones collected while walking this partition.
	for _, rt := range f.activeRTs {
		if m.Timestamp <= rt.MarkedForDeleteAt && rt.Covers(k.Clustering) &&
			(f.cfg.IgnoreRangeDeleteOnRead || pastGrace(rt.LocalDeletionTime)) {
			return f.emit(Decision{Kind: DecisionRemove}), nil
		}
	}

	// A row-level tombstone is itself garbage once its grace period has
	// run out. The ignore-range option does not apply here: it covers
	// range and partition markers only.
	if m.Tombstone {
		if pastGrace(m.LocalDeletionTime) {
			return f.emit(Decision{Kind: DecisionRemove}), nil
		}
		return f.emit(keep), nil
	}

	// Expired TTL: purge outright when the caller asserted uniform TTL
	// usage, otherwise rewrite into a tombstone that stays visible for
	// the grace period.
	if exp, ok := m.ExpiresAt(); ok && now >= exp {
		if f.cfg.PurgeTTLOnExpiration {
			return f.emit(Decision{Kind: DecisionRemove}), nil
		}
		nv := rowformat.TombstoneValue(m.Timestamp, uint32(exp))
		return f.emit(Decision{Kind: DecisionChangeValue, NewValue: nv}), nil
	}

	// Newer than every applicable deletion marker: liveness wins.
	return f.emit(keep), nil
}

func (f *CompactionFilter) emit(d Decision) Decision {
	f.metrics.decision(d.Kind)
	return d
}

// enterPartition resets per-partition state and resolves the new
// partition's deletion header.
func (f *CompactionFilter) enterPartition(k rowformat.Key) {
	f.curPartition = append(f.curPartition[:0], k.PartitionSection()...)
	f.activeRTs = f.activeRTs[:0]
	f.curHeader = nil
	f.headerUnavailable = false

	h, err := f.resolver.resolve(k.PartitionKey)
	if err != nil {
		f.metrics.resolverError()
		f.headerUnavailable = true
		f.logger.Warn("partition header unresolved, keeping partition",
			zap.Int("pk_len", len(k.PartitionKey)), zap.Error(err))
		return
	}
	f.curHeader = h
}

// pruneActive drops range tombstones the iteration has moved past.
func (f *CompactionFilter) pruneActive(ck rowformat.ClusteringKey) {
	kept := f.activeRTs[:0]
	for _, rt := range f.activeRTs {
		if rowformat.Compare(ck, rt.End) <= 0 {
			kept = append(kept, rt)
		}
	}
	f.activeRTs = kept
}
