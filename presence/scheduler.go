package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/eloward-bot/controlplane"
)

// Scheduler assigns channels across a fixed pool of shards and keeps
// membership in sync with the control plane's channel roster. Shards are not
// created dynamically; ShardCapacity controls when a channel cannot be
// placed and is logged as a capacity warning rather than silently dropped.
type Scheduler struct {
	shards []*Shard
	cp     *controlplane.Client

	mu    sync.Mutex
	owner map[string]string // channel -> shard id
}

// NewScheduler constructs a Scheduler over a fixed set of shards.
func NewScheduler(shards []*Shard, cp *controlplane.Client) *Scheduler {
	return &Scheduler{shards: shards, cp: cp, owner: map[string]string{}}
}

// Owner returns the shard ID responsible for channel, or "" if unassigned.
func (s *Scheduler) Owner(channel string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner[channel]
}

// Assign places channel on the least-loaded shard with spare capacity and
// joins it immediately. Used both by Reconcile and directly by the command
// interpreter right after a successful FollowChannel call.
func (s *Scheduler) Assign(ctx context.Context, channel string, capacity int) error {
	s.mu.Lock()
	if _, already := s.owner[channel]; already {
		s.mu.Unlock()
		return nil
	}
	target := s.leastLoadedLocked(capacity)
	if target == nil {
		s.mu.Unlock()
		return fmt.Errorf("presence: no shard with spare capacity for %q", channel)
	}
	s.owner[channel] = target.ID()
	s.mu.Unlock()

	return target.Join(ctx, channel)
}

func (s *Scheduler) leastLoadedLocked(capacity int) *Shard {
	var best *Shard
	for _, sh := range s.shards {
		if sh.Size() >= capacity {
			continue
		}
		if best == nil || sh.Size() < best.Size() {
			best = sh
		}
	}
	return best
}

// Remove departs channel from its current shard and drops the assignment.
func (s *Scheduler) Remove(channel string) {
	s.mu.Lock()
	shardID, ok := s.owner[channel]
	delete(s.owner, channel)
	s.mu.Unlock()
	if !ok {
		return
	}
	for _, sh := range s.shards {
		if sh.ID() == shardID {
			sh.Depart(channel)
			return
		}
	}
}

// Reconcile fetches the current roster from the control plane and adjusts
// shard membership to match: joining channels that were added and parting
// ones that were removed. Called on an interval (config.ChannelReconcileInterval)
// and is the catch-up path for missed pub/sub events.
func (s *Scheduler) Reconcile(ctx context.Context, capacity int) error {
	roster, err := s.cp.Channels(ctx)
	if err != nil {
		return fmt.Errorf("presence: reconcile: %w", err)
	}
	wanted := make(map[string]struct{}, len(roster))
	for _, ch := range roster {
		wanted[ch] = struct{}{}
	}

	s.mu.Lock()
	var toRemove []string
	for ch := range s.owner {
		if _, ok := wanted[ch]; !ok {
			toRemove = append(toRemove, ch)
		}
	}
	s.mu.Unlock()
	for _, ch := range toRemove {
		s.Remove(ch)
	}

	for ch := range wanted {
		if err := s.Assign(ctx, ch, capacity); err != nil {
			slog.Warn("could not assign channel during reconcile", "channel", ch, "error", err)
		}
	}
	return nil
}

// RunReconciler blocks, reconciling on every tick of interval until ctx is
// canceled.
func (s *Scheduler) RunReconciler(ctx context.Context, interval time.Duration, capacity int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Reconcile(ctx, capacity); err != nil {
				slog.Error("channel reconcile failed", "error", err)
			}
		}
	}
}
