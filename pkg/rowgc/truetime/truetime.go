// Package truetime supplies the compaction clock. Liveness decisions
// compare against "now"; a host that needs cross-node agreement on
// expiry can plug in the NTP-backed clock instead of the system one.
package truetime

import (
	"sync"
	"time"

	"github.com/beevik/ntp"
	"go.uber.org/zap"
)

// Clock yields the current time. Implementations are safe for
// concurrent use.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NTPClock corrects the host clock by an offset queried from an NTP
// server. The offset is cached and refreshed at an interval rather than
// queried per call; decisions tolerate the drift inside one interval.
type NTPClock struct {
	server  string
	refresh time.Duration
	logger  *zap.Logger

	mu        sync.RWMutex
	offset    time.Duration
	fetchedAt time.Time
}

// NewNTPClock creates an NTP-corrected clock. An empty server defaults
// to time.google.com; refresh <= 0 defaults to one minute.
func NewNTPClock(server string, refresh time.Duration, logger *zap.Logger) *NTPClock {
	if server == "" {
		server = "time.google.com"
	}
	if refresh <= 0 {
		refresh = time.Minute
	}
	return &NTPClock{server: server, refresh: refresh, logger: logger}
}

// Now returns the offset-corrected time. If the NTP query fails the
// last known offset keeps being applied.
func (c *NTPClock) Now() time.Time {
	c.mu.RLock()
	offset, fetchedAt := c.offset, c.fetchedAt
	c.mu.RUnlock()

	if time.Since(fetchedAt) > c.refresh {
		offset = c.refreshOffset(fetchedAt)
	}
	return time.Now().Add(offset)
}

func (c *NTPClock) refreshOffset(seen time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchedAt != seen {
		// Another caller refreshed while we waited for the lock.
		return c.offset
	}
	resp, err := ntp.Query(c.server)
	if err != nil {
		c.logger.Warn("ntp query failed, keeping cached offset",
			zap.String("server", c.server), zap.Error(err))
	} else {
		c.offset = resp.ClockOffset
	}
	c.fetchedAt = time.Now()
	return c.offset
}
