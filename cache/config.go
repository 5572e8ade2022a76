// Package cache holds the two read-through caches the dispatcher consults on
// every message: channel policy and per-user rank. Both are in-memory,
// process-local, and sized by the channel roster, not by chat volume.
package cache

import (
	"context"
	"sync"

	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/telemetry"
)

// configEntry caches either a policy or its confirmed absence (a 404), so a
// channel with no configuration row does not re-fetch on every message.
type configEntry struct {
	policy *controlplane.ChannelPolicy
	absent bool
}

// ConfigCache is a read-through, invalidate-on-write cache over channel
// policy. It never expires entries on its own: the control plane pushes
// invalidations over pub/sub (or the caller calls Invalidate directly), and a
// version compare on Put resolves the race between a concurrent refetch and
// an incoming push described in the design notes.
type ConfigCache struct {
	client *controlplane.Client

	mu      sync.RWMutex
	entries map[string]configEntry
}

// NewConfigCache constructs a ConfigCache backed by client for cache misses.
func NewConfigCache(client *controlplane.Client) *ConfigCache {
	return &ConfigCache{client: client, entries: map[string]configEntry{}}
}

// Get returns the cached policy for channel, filling the cache from the
// control plane on a miss. A confirmed-absent channel returns (nil, nil): the
// caller should treat it as disabled, not as an error.
func (c *ConfigCache) Get(ctx context.Context, channel string) (*controlplane.ChannelPolicy, error) {
	c.mu.RLock()
	entry, hit := c.entries[channel]
	c.mu.RUnlock()
	if hit {
		telemetry.ConfigCacheHits.Inc()
		if entry.absent {
			return nil, nil
		}
		return entry.policy, nil
	}

	telemetry.ConfigCacheMisses.Inc()
	policy, err := c.client.ConfigGet(ctx, channel)
	if err == controlplane.ErrPolicyAbsent {
		c.mu.Lock()
		c.entries[channel] = configEntry{absent: true}
		c.mu.Unlock()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Put(policy)
	return policy, nil
}

// Put installs policy into the cache, keeping the higher Version on a
// concurrent write (a Lamport-clock-style compare): an in-flight refetch that
// resolves after a newer pub/sub push must not clobber it.
func (c *ConfigCache) Put(policy *controlplane.ChannelPolicy) {
	if policy == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[policy.ChannelLogin]; ok && !existing.absent && existing.policy.Version > policy.Version {
		return
	}
	c.entries[policy.ChannelLogin] = configEntry{policy: policy}
}

// Invalidate drops the cached entry for channel, forcing the next Get to
// refetch. Called when a pub/sub config_update event names a channel whose
// full policy wasn't included in the push.
func (c *ConfigCache) Invalidate(channel string) {
	c.mu.Lock()
	delete(c.entries, channel)
	c.mu.Unlock()
	telemetry.PubsubInvalidations.Inc()
}
