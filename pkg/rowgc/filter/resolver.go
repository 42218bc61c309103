package filter

import (
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/widerow/rowgc/pkg/rowgc/metastore"
	"github.com/widerow/rowgc/pkg/rowgc/rowformat"
)

// ErrResolveUnavailable reports that the metadata store has not been
// attached yet or a lookup against it failed; the engine keeps the
// affected partition instead of guessing.
var ErrResolveUnavailable = errors.New("filter: partition header unavailable")

const (
	// scanHeaderLimit bounds the fallback prefix scan; a partition with
	// more headers than this keeps its rows until a point lookup works.
	scanHeaderLimit = 64

	// negCacheWarmLimit caps the attach-time warm scan. Past it the
	// negative cache is disabled rather than left partial in the wrong
	// direction.
	negCacheWarmLimit = 100_000

	negCacheFPRate = 0.01
)

// resolver looks up partition-level deletion headers from the side
// metadata store. It is stateless per call and safe to invoke
// repeatedly; the engine caches the result per partition.
//
// The negative cache is a bloom filter over the meta keys present when
// the store was attached. A definite miss answers "no header" without a
// store read, which is the common case. Headers written after the warm
// pass are missed until the next attach cycle; that only delays
// reclamation, it never removes live data.
type resolver struct {
	handle  metastore.Handle
	logger  *zap.Logger
	metrics *Metrics

	neg atomic.Pointer[bloom.BloomFilter]
}

func newResolver(logger *zap.Logger, metrics *Metrics) *resolver {
	return &resolver{logger: logger, metrics: metrics}
}

// attach publishes the store (first caller wins) and warms the negative
// cache from it. A losing attach must not warm: the cache would then
// describe a store that is not the one being read.
func (r *resolver) attach(s metastore.Store) {
	if r.handle.Attach(s) {
		r.warm(s)
	}
}

func (r *resolver) warm(s metastore.Store) {
	keys := make([][]byte, 0, 1024)
	overflow := false
	err := s.ScanPrefix(nil, negCacheWarmLimit+1, func(key, _ []byte) error {
		if len(keys) >= negCacheWarmLimit {
			overflow = true
			return nil
		}
		keys = append(keys, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		r.logger.Warn("negative cache warm scan failed, cache disabled", zap.Error(err))
		return
	}
	if overflow {
		r.logger.Info("metadata store larger than warm budget, negative cache disabled",
			zap.Int("budget", negCacheWarmLimit))
		return
	}
	if len(keys) > 0 {
		// The cache tests exact partition-key membership, which only
		// matches stores served by point lookup; scan-only stores may
		// key headers with suffixes the cache would wrongly hide.
		if _, _, err := s.Get(keys[0]); err != nil {
			r.logger.Info("store not point-lookup capable, negative cache disabled", zap.Error(err))
			return
		}
	}
	n := uint(len(keys))
	if n == 0 {
		n = 1
	}
	bf := bloom.NewWithEstimates(n, negCacheFPRate)
	for _, k := range keys {
		bf.Add(k)
	}
	r.neg.Store(bf)
	r.logger.Info("partition header negative cache warmed", zap.Int("headers", len(keys)))
}

// resolve returns the partition-level deletion header for pk, or nil
// when the partition is not globally deleted. Point lookup first; a
// failing or unsupported point lookup falls back to a bounded prefix
// scan merged by the most recent deletion.
func (r *resolver) resolve(pk []byte) (*rowformat.PartitionHeader, error) {
	s, ok := r.handle.Load()
	if !ok {
		return nil, ErrResolveUnavailable
	}

	if bf := r.neg.Load(); bf != nil && !bf.Test(pk) {
		r.metrics.resolverMiss()
		return nil, nil
	}

	r.metrics.resolverPoint()
	v, found, err := s.Get(pk)
	switch {
	case err == nil:
		if !found {
			r.metrics.resolverMiss()
			return nil, nil
		}
		h, derr := rowformat.DecodePartitionHeader(v)
		if derr != nil {
			return nil, errors.CombineErrors(ErrResolveUnavailable, derr)
		}
		return &h, nil
	case errors.Is(err, metastore.ErrPointLookupUnsupported):
		// fall through to the scan path
	default:
		r.logger.Warn("partition header point lookup failed, trying scan",
			zap.Int("pk_len", len(pk)), zap.Error(err))
	}

	r.metrics.resolverScan()
	var merged *rowformat.PartitionHeader
	scanErr := s.ScanPrefix(pk, scanHeaderLimit, func(_, value []byte) error {
		h, derr := rowformat.DecodePartitionHeader(value)
		if derr != nil {
			return derr
		}
		if merged == nil {
			merged = &h
			return nil
		}
		merged.Merge(h)
		return nil
	})
	if scanErr != nil {
		return nil, errors.CombineErrors(ErrResolveUnavailable, scanErr)
	}
	if merged == nil {
		r.metrics.resolverMiss()
	}
	return merged, nil
}
