package cache

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/rank"
	"github.com/onnwee/eloward-bot/telemetry"
)

const (
	positiveTTL = 60 * time.Second
	negativeTTL = 30 * time.Second
)

// Rank is the resolved (tier, division) pair for a user. Present and Known
// are deliberately distinct: Present answers "does this user have a rank, or
// should we treat them as if they do" (true for a confirmed record AND for
// the fail-open synthetic returned on a transient control-plane failure),
// while Known answers "can Tier/Division actually be compared against a
// minimum" (true only for a confirmed, parsed record). A confirmed absence
// (404) is Present=false, Known=false; a transient failure is Present=true,
// Known=false, so has_rank mode fails open on outage but still times out a
// user with no linked rank at all. rank.MeetsMinimum fails open whenever
// Known is false, independent of Present.
type Rank struct {
	Tier     rank.Tier
	Division rank.Division
	Present  bool
	Known    bool
}

type rankEntry struct {
	value     Rank
	expiresAt time.Time
}

// RankCache is a TTL cache over per-user rank: 60s for a resolved rank, 30s
// for a confirmed absence, and nothing cached at all on a transient failure
// (every caller sees the same fail-open Rank{Present: true} until the control
// plane recovers, rather than freezing a bad read for a full TTL).
type RankCache struct {
	client *controlplane.Client

	mu      sync.Mutex
	entries map[string]rankEntry
}

// NewRankCache constructs a RankCache backed by client for cache misses.
func NewRankCache(client *controlplane.Client) *RankCache {
	return &RankCache{client: client, entries: map[string]rankEntry{}}
}

// Get returns the rank for userLogin, consulting the control plane on a miss
// or expiry. A transient control-plane failure fails open: it returns a
// Rank with Known=false and does not cache it, so the next lookup retries.
func (c *RankCache) Get(ctx context.Context, userLogin string) Rank {
	now := time.Now()

	c.mu.Lock()
	entry, hit := c.entries[userLogin]
	if hit && now.Before(entry.expiresAt) {
		c.mu.Unlock()
		telemetry.RankCacheHits.Inc()
		return entry.value
	}
	c.mu.Unlock()

	telemetry.RankCacheMisses.Inc()
	data, err := c.client.RankGet(ctx, userLogin)
	if err == controlplane.ErrRankAbsent {
		// Confirmed absence: cacheable negative. has_rank mode must time this
		// user out, so Present stays false.
		c.store(userLogin, Rank{}, negativeTTL)
		return Rank{}
	}
	if err != nil {
		// Transient: fail-open synthetic record, not cached, so the next
		// message retries against the control plane instead of freezing this
		// guess for a full TTL. Present=true so has_rank mode does not punish
		// a legitimate viewer for an outage; Known stays false so min_rank's
		// comparator also fails open.
		return Rank{Present: true}
	}

	tier, tierOK := rank.ParseTier(data.RankTier)
	div, divOK := rank.NormalizeDivision(data.RankDivision)
	if !divOK {
		div = rank.DivisionUnknown
	}
	value := Rank{Tier: tier, Division: div, Present: true, Known: tierOK}
	c.store(userLogin, value, positiveTTL)
	return value
}

func (c *RankCache) store(userLogin string, value Rank, ttl time.Duration) {
	c.mu.Lock()
	c.entries[userLogin] = rankEntry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Sweep removes every entry that has passed its TTL. Called periodically by
// a jittered background loop so the map does not grow unbounded across a long
// process lifetime.
func (c *RankCache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, v := range c.entries {
		if now.After(v.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
