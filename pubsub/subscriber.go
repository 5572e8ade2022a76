// Package pubsub subscribes to the control plane's push channel for instant
// policy and roster changes, falling back to presence.Scheduler's periodic
// reconciliation when no endpoint is configured or the connection is down.
package pubsub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/eloward-bot/backoff"
	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/presence"
)

const maxBackoff = 30 * time.Second

// event is the wire shape of every message the control plane pushes: a
// single event type carrying the changed fields as opaque raw data, a
// version, and an update timestamp. The subscriber never inspects Fields
// itself; a config_update always just invalidates the cached policy so the
// next lookup hot-fills it from the control plane.
type event struct {
	Type         string          `json:"type"`
	ChannelLogin string          `json:"channel_login"`
	Fields       json.RawMessage `json:"fields,omitempty"`
	Version      int64           `json:"version,omitempty"`
	UpdatedAt    string          `json:"updated_at,omitempty"`
}

const eventConfigUpdate = "config_update"

// Subscriber maintains a websocket connection to the control plane's push
// endpoint and applies incoming events to the local caches and scheduler.
type Subscriber struct {
	endpoint  string
	secret    string
	configs   *cache.ConfigCache
	scheduler *presence.Scheduler
	cp        *controlplane.Client
	capacity  int
}

// New constructs a Subscriber. An empty endpoint makes Run a no-op, since
// instant propagation is optional (config.InstantPropagationEnabled). cp is
// used to call FollowChannel as part of the lazy-join sequence for a channel
// the scheduler has never seen before.
func New(endpoint, secret string, configs *cache.ConfigCache, scheduler *presence.Scheduler, cp *controlplane.Client, capacity int) *Subscriber {
	return &Subscriber{endpoint: endpoint, secret: secret, configs: configs, scheduler: scheduler, cp: cp, capacity: capacity}
}

// Run connects and reconnects with capped exponential backoff until ctx is
// canceled. It returns immediately if no endpoint was configured.
func (s *Subscriber) Run(ctx context.Context) {
	if s.endpoint == "" {
		return
	}
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.connectAndRead(ctx); err != nil {
			slog.Warn("pubsub connection lost", "error", err)
		} else {
			attempt = 0
		}

		delay := backoff.Next(attempt, maxBackoff)
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *Subscriber) connectAndRead(ctx context.Context) error {
	header := http.Header{}
	if s.secret != "" {
		header.Set("Authorization", "Bearer "+s.secret)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.endpoint, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			return err
		}
		s.apply(ctx, ev)
	}
}

// apply handles a single pushed event. Any type other than config_update is
// ignored outright: the control plane never sends anything else, and a
// forward-compatible unknown type should not crash or warn on every message.
//
// A config_update always invalidates the cached policy regardless of what it
// contains, since Fields carries only the changed keys, not a full policy
// the cache could Put directly. If the channel is not yet in the scheduler's
// membership, this is treated as a newly-enabled channel: the lazy-join
// sequence assigns it to a shard (which joins it) and then calls
// FollowChannel; a failed Assign skips the FollowChannel call. A
// channel already owned by a shard is left alone; its next chat message
// hot-fills the freshly invalidated policy.
func (s *Subscriber) apply(ctx context.Context, ev event) {
	if ev.Type != eventConfigUpdate {
		slog.Debug("ignoring unrecognized pubsub event", "type", ev.Type)
		return
	}
	if ev.ChannelLogin == "" {
		return
	}

	s.configs.Invalidate(ev.ChannelLogin)

	if s.scheduler.Owner(ev.ChannelLogin) != "" {
		return
	}

	if err := s.scheduler.Assign(ctx, ev.ChannelLogin, s.capacity); err != nil {
		slog.Warn("could not assign newly-enabled channel from pubsub event", "channel", ev.ChannelLogin, "error", err)
		return
	}
	if err := s.cp.FollowChannel(ctx, ev.ChannelLogin); err != nil {
		slog.Warn("could not follow newly-enabled channel", "channel", ev.ChannelLogin, "error", err)
	}
}
