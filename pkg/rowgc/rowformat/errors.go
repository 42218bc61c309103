package rowformat

import "github.com/cockroachdb/errors"

// Marker errors for decode failures. Callers test with errors.Is; the
// wrapped detail says what was inconsistent.
var (
	ErrMalformedKey   = errors.New("rowformat: malformed key")
	ErrMalformedValue = errors.New("rowformat: malformed value")
)
