// Package supervisor wires every component together and owns the process
// lifecycle: boot order, background loop startup, and graceful shutdown via
// signal.NotifyContext, sequential boot with fatal-on-error, blocking on
// ctx.Done(), then a bounded shutdown wait.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"golang.org/x/time/rate"

	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/command"
	"github.com/onnwee/eloward-bot/config"
	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/credentials"
	"github.com/onnwee/eloward-bot/dispatch"
	"github.com/onnwee/eloward-bot/httpserver"
	"github.com/onnwee/eloward-bot/moderation"
	"github.com/onnwee/eloward-bot/presence"
	"github.com/onnwee/eloward-bot/pubsub"
)

const shardCount = 2
const shardStagger = 2 * time.Second
const shutdownGrace = 10 * time.Second

// Supervisor holds every long-lived component after boot.
type Supervisor struct {
	cfg *config.Config

	cp        *controlplane.Client
	creds     *credentials.Provider
	configs   *cache.ConfigCache
	ranks     *cache.RankCache
	sweeper   *cache.Sweeper
	shards    []*presence.Shard
	scheduler *presence.Scheduler
	dispatcher *dispatch.Dispatcher
	subscriber *pubsub.Subscriber
}

// New constructs a Supervisor from configuration without performing any I/O;
// Boot does that.
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Boot performs the ordered startup sequence: validate config, fetch the
// initial control-plane token, stand up shards, and load the channel
// roster. A failure at any step is fatal: the caller should exit non-zero.
func (s *Supervisor) Boot(ctx context.Context) error {
	if err := s.cfg.ValidateReady(); err != nil {
		return fmt.Errorf("supervisor: config invalid: %w", err)
	}

	cpHTTP := &http.Client{Timeout: s.cfg.ControlPlaneTimeout}
	s.cp = controlplane.New(s.cfg.ControlPlaneBaseURL, s.cfg.MACSecret, cpHTTP)
	s.creds = credentials.New(s.cp, s.cfg.CredentialRefreshWindow)
	if err := s.creds.Boot(ctx); err != nil {
		return fmt.Errorf("supervisor: initial credential fetch: %w", err)
	}

	s.configs = cache.NewConfigCache(s.cp)
	s.ranks = cache.NewRankCache(s.cp)
	s.sweeper = cache.NewSweeper(s.ranks, s.cfg.SweepIntervalMin, s.cfg.SweepIntervalMax)

	helixHTTP := &http.Client{Timeout: s.cfg.ModerationTimeout}
	helix := moderation.NewHelixClient(s.cfg.ClientID, s.creds, helixHTTP)
	executor := moderation.NewExecutor(helix, s.ranks, s.cfg.Site)

	_, botLogin := s.creds.Current()

	s.shards = make([]*presence.Shard, 0, shardCount)
	for i := 0; i < shardCount; i++ {
		id := fmt.Sprintf("shard-%d", i)
		// Each shard gets its own limiter: Twitch's join-rate cap applies
		// per connection, not per bot identity, so sharing one limiter
		// across shards would pace joins to half the rate each connection
		// is actually allowed.
		limiter := rate.NewLimiter(rate.Every(s.cfg.JoinIntervalPerConn), 1)
		s.shards = append(s.shards, presence.NewShard(id, botLogin, s.creds, limiter, nil))
	}
	s.scheduler = presence.NewScheduler(s.shards, s.cp)

	interpreter := command.New(s.cp, s.configs, s.cfg.Site, func(ctx context.Context, channel string) error {
		return s.scheduler.Assign(ctx, channel, s.cfg.ShardCapacity)
	})

	s.dispatcher = dispatch.New(s.cfg.DispatchWorkers, s.configs, interpreter, executor, s.cfg.SuperAdmins, s.creds.UserID)

	// Wire each shard's onMessage callback now that both the shard and the
	// dispatcher exist; the closure captures the shard by reference so
	// replies are sent back out on the connection the message arrived on.
	for _, shard := range s.shards {
		sh := shard
		sh.SetOnMessage(func(msg twitch.PrivateMessage) {
			s.dispatcher.Handle(ctx, sh, msg)
		})
	}

	s.subscriber = pubsub.New(s.cfg.PubSubEndpoint, s.cfg.MACSecret, s.configs, s.scheduler, s.cp, s.cfg.ShardCapacity)

	if err := s.scheduler.Reconcile(ctx, s.cfg.ShardCapacity); err != nil {
		return fmt.Errorf("supervisor: initial roster fetch: %w", err)
	}

	return nil
}

// Run blocks until ctx is canceled, then shuts down with a bounded grace
// period. Boot must be called first.
func (s *Supervisor) Run(ctx context.Context) error {
	for i, shard := range s.shards {
		go shard.Run(ctx)
		if i < len(s.shards)-1 {
			time.Sleep(shardStagger)
		}
	}

	go s.creds.Watch(ctx, s.cfg.CredentialCheckInterval)
	go s.sweeper.Run(ctx)
	go s.subscriber.Run(ctx)
	go s.scheduler.RunReconciler(ctx, s.cfg.ChannelReconcileInterval, s.cfg.ShardCapacity)
	go func() {
		if err := httpserver.Start(ctx, s.cfg.HTTPAddr); err != nil {
			slog.Error("http server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	done := make(chan struct{})
	go func() {
		// The shard, sweeper, subscriber, and reconciler goroutines all
		// select on ctx.Done(). Run waits a fixed 200ms for them and then
		// returns; it does not wait for them to exit, so the shutdownGrace
		// branch below is not reached.
		time.Sleep(200 * time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownGrace):
		slog.Warn("shutdown grace period exceeded")
	}
	return nil
}
