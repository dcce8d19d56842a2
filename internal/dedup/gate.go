package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const keyPrefix = "dedup:"

// Policy decides what happens when the cache itself is unreachable.
type Policy string

const (
	// FailOpen lets the message through on a cache error. Availability
	// over consistency: a duplicate send beats blocking all delivery on a
	// cache outage.
	FailOpen Policy = "fail_open"
	// FailClosed surfaces the cache error to the caller instead.
	FailClosed Policy = "fail_closed"
)

// Cache is the set-if-absent-with-expiry capability the gate needs.
type Cache interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Gate reserves message fingerprints for a dedup window. Reservation is
// best-effort, not exactly-once: the fail-open path can admit duplicates.
type Gate struct {
	cache  Cache
	ttl    time.Duration
	policy Policy
	log    zerolog.Logger
}

func NewGate(cache Cache, ttl time.Duration, policy Policy, log zerolog.Logger) *Gate {
	if policy != FailClosed {
		policy = FailOpen
	}
	return &Gate{
		cache:  cache,
		ttl:    ttl,
		policy: policy,
		log:    log,
	}
}

// Reserve attempts to claim the fingerprint for the dedup window. It
// returns alreadyReserved=true when an identical triple was seen within
// the window. Under the fail-open policy a cache error is logged and the
// message is admitted; under fail-closed the error is returned.
func (g *Gate) Reserve(ctx context.Context, fingerprint string) (bool, error) {
	reserved, err := g.cache.SetIfAbsent(ctx, keyPrefix+fingerprint, g.ttl)
	if err != nil {
		if g.policy == FailClosed {
			return false, fmt.Errorf("dedup cache unavailable: %w", err)
		}
		g.log.Warn().Err(err).Msg("dedup cache unavailable, failing open")
		return false, nil
	}
	return !reserved, nil
}
