package filter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the compaction filter's counters. A nil *Metrics is
// valid and records nothing, so per-job filters in tests never touch the
// process-wide registry.
type Metrics struct {
	// KeysExamined counts every call into Decide.
	KeysExamined prometheus.Counter

	// Decisions counts emitted decisions by kind.
	Decisions *prometheus.CounterVec

	// MalformedKeys and MalformedValues count decode failures that
	// degraded to Keep.
	MalformedKeys   prometheus.Counter
	MalformedValues prometheus.Counter

	// ResolverPoint, ResolverScan and ResolverMiss count partition
	// header lookups by path; ResolverErrors counts lookups that failed
	// and kept the affected partition.
	ResolverPoint  prometheus.Counter
	ResolverScan   prometheus.Counter
	ResolverMiss   prometheus.Counter
	ResolverErrors prometheus.Counter

	// OrderViolations counts fatal out-of-order keys from the host.
	OrderViolations prometheus.Counter
}

// NewMetrics creates and registers the filter metrics with the default
// registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		KeysExamined: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "filter",
			Name:      "keys_examined_total",
			Help:      "Key-value pairs examined during compaction.",
		}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "filter",
			Name:      "decisions_total",
			Help:      "Decisions emitted, by kind.",
		}, []string{"kind"}),
		MalformedKeys: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "filter",
			Name:      "malformed_keys_total",
			Help:      "Keys that failed to decode and were kept.",
		}),
		MalformedValues: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "filter",
			Name:      "malformed_values_total",
			Help:      "Values that failed to decode and were kept.",
		}),
		ResolverPoint: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "resolver",
			Name:      "point_lookups_total",
			Help:      "Partition header point lookups.",
		}),
		ResolverScan: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "resolver",
			Name:      "scan_fallbacks_total",
			Help:      "Partition header resolutions served by prefix scan.",
		}),
		ResolverMiss: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "resolver",
			Name:      "misses_total",
			Help:      "Partitions with no deletion header.",
		}),
		ResolverErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "resolver",
			Name:      "errors_total",
			Help:      "Header resolutions that failed; the partition is kept.",
		}),
		OrderViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rowgc",
			Subsystem: "filter",
			Name:      "order_violations_total",
			Help:      "Out-of-order keys seen from the host. Fatal.",
		}),
	}
}

// Nil-safe recording helpers; every field access is guarded so a nil
// *Metrics can flow through the filter untouched.

func (m *Metrics) keyExamined() {
	if m != nil {
		m.KeysExamined.Inc()
	}
}

func (m *Metrics) decision(kind DecisionKind) {
	if m != nil {
		m.Decisions.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) malformedKey() {
	if m != nil {
		m.MalformedKeys.Inc()
	}
}

func (m *Metrics) malformedValue() {
	if m != nil {
		m.MalformedValues.Inc()
	}
}

func (m *Metrics) resolverPoint() {
	if m != nil {
		m.ResolverPoint.Inc()
	}
}

func (m *Metrics) resolverScan() {
	if m != nil {
		m.ResolverScan.Inc()
	}
}

func (m *Metrics) resolverMiss() {
	if m != nil {
		m.ResolverMiss.Inc()
	}
}

func (m *Metrics) resolverError() {
	if m != nil {
		m.ResolverErrors.Inc()
	}
}

func (m *Metrics) orderViolation() {
	if m != nil {
		m.OrderViolations.Inc()
	}
}
