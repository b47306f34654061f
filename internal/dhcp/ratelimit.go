package dhcp

import (
	"net"
	"sync"
	"time"

	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// Rate limit scopes, used as the metrics label for a rejected request.
const (
	LimitGlobal = "global"
	LimitMAC    = "mac"
)

// macStaleAfter is how long an idle per-MAC bucket is kept.
const macStaleAfter = 30 * time.Second

// RateLimiter provides token-bucket rate limiting for DHCP requests.
// Limits both global requests/sec and per-MAC requests/sec.
type RateLimiter struct {
	enabled        bool
	globalLimit    int
	perMACLimit    int
	globalTokens   int
	perMAC         map[[dhcpv4.EthernetAddrLen]byte]*macBucket
	mu             sync.Mutex
	lastRefill     time.Time
	refillInterval time.Duration
	now            func() time.Time
}

type macBucket struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(enabled bool, globalLimit, perMACLimit int) *RateLimiter {
	if globalLimit <= 0 {
		globalLimit = 100
	}
	if perMACLimit <= 0 {
		perMACLimit = 10
	}
	return &RateLimiter{
		enabled:        enabled,
		globalLimit:    globalLimit,
		perMACLimit:    perMACLimit,
		globalTokens:   globalLimit,
		perMAC:         make(map[[dhcpv4.EthernetAddrLen]byte]*macBucket),
		lastRefill:     time.Now(),
		refillInterval: time.Second,
		now:            time.Now,
	}
}

// Allow checks if a request from the given MAC is permitted. When it is not,
// scope names the limit that was hit.
func (r *RateLimiter) Allow(mac net.HardwareAddr) (allowed bool, scope string) {
	if r == nil || !r.enabled {
		return true, ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.refill(now)

	if r.globalTokens <= 0 {
		return false, LimitGlobal
	}

	var key [dhcpv4.EthernetAddrLen]byte
	copy(key[:], mac)
	bucket, exists := r.perMAC[key]
	if !exists {
		bucket = &macBucket{tokens: r.perMACLimit}
		r.perMAC[key] = bucket
	}
	bucket.lastSeen = now

	if bucket.tokens <= 0 {
		return false, LimitMAC
	}

	r.globalTokens--
	bucket.tokens--
	return true, ""
}

// refill adds tokens back based on elapsed time since last refill.
func (r *RateLimiter) refill(now time.Time) {
	intervals := int(now.Sub(r.lastRefill) / r.refillInterval)
	if intervals <= 0 {
		return
	}
	r.lastRefill = r.lastRefill.Add(time.Duration(intervals) * r.refillInterval)

	r.globalTokens = min(r.globalTokens+r.globalLimit*intervals, r.globalLimit)

	for key, bucket := range r.perMAC {
		if now.Sub(bucket.lastSeen) > macStaleAfter {
			delete(r.perMAC, key)
			continue
		}
		bucket.tokens = min(bucket.tokens+r.perMACLimit*intervals, r.perMACLimit)
	}
}

// Stats returns current rate limiter statistics.
func (r *RateLimiter) Stats() (globalTokens int, trackedMACs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.globalTokens, len(r.perMAC)
}
