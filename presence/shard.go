// Package presence manages IRC connectivity: one Shard per underlying
// connection to Twitch chat, and a Scheduler that assigns channels to shards
// and keeps membership in sync with the control plane's roster.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/onnwee/eloward-bot/backoff"
	"github.com/onnwee/eloward-bot/credentials"
	"github.com/onnwee/eloward-bot/telemetry"
)

const maxBackoff = 30 * time.Second

// Shard owns a single IRC connection and the set of channels joined on it.
// Joins on this connection are paced through its own rate.Limiter: Twitch's
// join-rate cap applies per connection, so each Shard must own a distinct
// limiter rather than share one with its siblings.
type Shard struct {
	id        string
	botLogin  string
	creds     *credentials.Provider
	limiter   *rate.Limiter
	onMessage func(twitch.PrivateMessage)

	mu       sync.Mutex
	channels map[string]struct{}
	client   *twitch.Client
}

// NewShard constructs a Shard. onMessage is invoked for every PRIVMSG
// received on this connection, from the go-twitch-irc callback goroutine.
func NewShard(id, botLogin string, creds *credentials.Provider, limiter *rate.Limiter, onMessage func(twitch.PrivateMessage)) *Shard {
	return &Shard{
		id:        id,
		botLogin:  botLogin,
		creds:     creds,
		limiter:   limiter,
		onMessage: onMessage,
		channels:  map[string]struct{}{},
	}
}

// SetOnMessage replaces the PRIVMSG callback. Used at boot to wire in a
// dispatcher that needs a reference to the shard itself (for replies),
// which cannot exist before the shard does.
func (s *Shard) SetOnMessage(onMessage func(twitch.PrivateMessage)) {
	s.mu.Lock()
	s.onMessage = onMessage
	s.mu.Unlock()
}

// ID returns the shard's identifier, used for metric labels and ownership
// routing in the dispatcher.
func (s *Shard) ID() string { return s.id }

// Run connects and reconnects until ctx is canceled, rejoining every
// previously joined channel after each reconnect. It also drops the
// connection and reconnects after the first backoff step (1s) when it
// receives a token rotation signal from creds, since go-twitch-irc does not
// support swapping credentials on a live connection.
func (s *Shard) Run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connErr := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connErr == nil {
			attempt = 0
		} else {
			slog.Warn("shard disconnected", "shard", s.id, "error", connErr)
		}

		delay := backoff.Next(attempt, maxBackoff)
		attempt++
		telemetry.IRCReconnects.WithLabelValues(s.id).Inc()
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// connectOnce builds a fresh client (picking up the latest token), joins
// every channel this shard owns, and blocks until the connection drops or a
// credential rotation forces a reconnect.
func (s *Shard) connectOnce(ctx context.Context) error {
	token, _ := s.creds.Current()
	client := twitch.NewClient(s.botLogin, token)
	client.OnPrivateMessage(s.onMessage)

	s.mu.Lock()
	s.client = client
	channels := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		channels = append(channels, ch)
	}
	s.mu.Unlock()

	connectDone := make(chan error, 1)
	go func() {
		for _, ch := range channels {
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			client.Join(ch)
			telemetry.JoinCommands.WithLabelValues(s.id).Inc()
		}
	}()

	go func() { connectDone <- client.Connect() }()

	select {
	case <-ctx.Done():
		client.Disconnect()
		<-connectDone
		return nil
	case <-s.creds.Rotated():
		client.Disconnect()
		<-connectDone
		return nil
	case err := <-connectDone:
		return err
	}
}

// Join adds channel to this shard's membership, rate-limiting the join
// command itself and issuing it immediately if currently connected.
func (s *Shard) Join(ctx context.Context, channel string) error {
	s.mu.Lock()
	s.channels[channel] = struct{}{}
	client := s.client
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	client.Join(channel)
	telemetry.JoinCommands.WithLabelValues(s.id).Inc()
	return nil
}

// Depart removes channel from this shard's membership.
func (s *Shard) Depart(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channel)
	if s.client != nil {
		s.client.Depart(channel)
	}
}

// Say sends message to channel on this shard's current connection. It is a
// no-op if the shard is not currently connected.
func (s *Shard) Say(channel, message string) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client != nil {
		client.Say(channel, message)
	}
}

// Size returns the number of channels currently assigned to this shard.
func (s *Shard) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}
