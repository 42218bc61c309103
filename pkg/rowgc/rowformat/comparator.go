package rowformat

import "bytes"

// Compare is a strict total order over clustering keys, consistent with
// the byte order the storage engine sorts real rows by.
//
// Components are compared pairwise by value. At the first differing
// component the byte order decides. If the shared components are all
// equal, a key with fewer components is a bound (or row) at that prefix:
// its trailing kind decides whether it sorts before or after the keys
// extending the prefix. Start bounds and exclusive-end bounds sort before
// every extension, inclusive-end and exclusive-start bounds after, and a
// plain row before its extensions. Two keys of equal length order by the
// kind weight of their last differing tag.
func Compare(a, b ClusteringKey) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := bytes.Compare(a[i].Value, b[i].Value); c != 0 {
			return c
		}
		if a[i].Kind != b[i].Kind {
			// Interior components of well-formed keys are always
			// KindClustering; ordering by weight at the first mismatch
			// keeps the order total either way.
			return kindWeight(a[i].Kind) - kindWeight(b[i].Kind)
		}
	}
	switch {
	case len(a) == len(b):
		return 0
	case len(a) < len(b):
		if len(a) == 0 {
			return -1
		}
		return -extensionOrder(a[len(a)-1].Kind)
	default:
		if len(b) == 0 {
			return 1
		}
		return extensionOrder(b[len(b)-1].Kind)
	}
}

func kindWeight(k Kind) int { return int(k) }

// extensionOrder reports where keys extending a prefix sort relative to
// a bound of the given kind at that prefix: +1 when extensions come
// after the bound, -1 when before.
func extensionOrder(k Kind) int {
	switch k {
	case KindInclusiveEnd, KindExclusiveStart:
		return -1
	default:
		// Start bounds, exclusive-end bounds and plain rows all precede
		// keys that extend their prefix.
		return 1
	}
}

// Equal reports component-wise equality including kind tags.
func Equal(a, b ClusteringKey) bool { return Compare(a, b) == 0 }
