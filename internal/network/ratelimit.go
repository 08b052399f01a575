package network

import (
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxPacketsPerSec is the per-source datagram limit used when none is configured.
const DefaultMaxPacketsPerSec = 300

// staleAfter is how long a source may stay silent before its bucket is dropped.
const staleAfter = time.Minute

// rateTracker tracks per-IP datagram counts within a one-second window.
type rateTracker struct {
	mu        sync.Mutex
	counts    map[string]*rateBucket
	maxPerSec int
	lastSweep time.Time
}

type rateBucket struct {
	count       int
	windowStart time.Time
}

func newRateTracker(maxPerSec int) *rateTracker {
	return &rateTracker{
		counts:    make(map[string]*rateBucket),
		maxPerSec: maxPerSec,
	}
}

func (rt *rateTracker) allow(ip string, now time.Time) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if now.Sub(rt.lastSweep) >= staleAfter {
		for k, b := range rt.counts {
			if now.Sub(b.windowStart) >= staleAfter {
				delete(rt.counts, k)
			}
		}
		rt.lastSweep = now
	}

	b, exists := rt.counts[ip]
	if !exists || now.Sub(b.windowStart) >= time.Second {
		rt.counts[ip] = &rateBucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= rt.maxPerSec
}

func (rt *rateTracker) sources() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return len(rt.counts)
}

// LimitedConn wraps a packet connection and silently drops datagrams from
// sources that exceed the per-second limit.
type LimitedConn struct {
	net.PacketConn
	tracker *rateTracker
	dropped uint64
	now     func() time.Time
}

// NewLimitedConn wraps conn. A non-positive maxPerSec uses DefaultMaxPacketsPerSec.
func NewLimitedConn(conn net.PacketConn, maxPerSec int) *LimitedConn {
	if maxPerSec <= 0 {
		maxPerSec = DefaultMaxPacketsPerSec
	}
	return &LimitedConn{
		PacketConn: conn,
		tracker:    newRateTracker(maxPerSec),
		now:        time.Now,
	}
}

// ReadFrom returns the next datagram from a source within its limit.
func (c *LimitedConn) ReadFrom(p []byte) (int, net.Addr, error) {
	for {
		n, addr, err := c.PacketConn.ReadFrom(p)
		if err != nil {
			return n, addr, err
		}
		if c.tracker.allow(extractIP(addr), c.now()) {
			return n, addr, nil
		}
		c.dropped++
		if c.dropped%1000 == 1 {
			log.Warn().
				Str("src", addr.String()).
				Uint64("dropped_total", c.dropped).
				Msg("UDP rate limit exceeded, dropping datagrams")
		}
	}
}

// Dropped returns how many datagrams were discarded. It must be called from
// the reading goroutine.
func (c *LimitedConn) Dropped() uint64 {
	return c.dropped
}

func extractIP(addr net.Addr) string {
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
