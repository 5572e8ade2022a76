// Package dispatch routes incoming chat messages to the command interpreter
// or the moderation executor, bounding concurrent work with a worker-pool
// semaphore. Handle processes a message on the calling goroutine, outbound
// HTTP included.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/command"
	"github.com/onnwee/eloward-bot/moderation"
	"github.com/onnwee/eloward-bot/presence"
	"github.com/onnwee/eloward-bot/role"
	"github.com/onnwee/eloward-bot/telemetry"
)

// Dispatcher handles one PRIVMSG at a time per worker slot, up to its
// configured concurrency. A panicking handler is recovered and logged; it
// never takes down the shard's read loop.
type Dispatcher struct {
	sem chan struct{}

	configs     *cache.ConfigCache
	commands    *command.Interpreter
	executor    *moderation.Executor
	superAdmins map[string]struct{}
	botUserID   func() string
}

// New constructs a Dispatcher with workers concurrent slots.
func New(workers int, configs *cache.ConfigCache, commands *command.Interpreter, executor *moderation.Executor, superAdmins map[string]struct{}, botUserID func() string) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		sem:         make(chan struct{}, workers),
		configs:     configs,
		commands:    commands,
		executor:    executor,
		superAdmins: superAdmins,
		botUserID:   botUserID,
	}
}

// Handle is the callback wired to presence.Shard's OnPrivateMessage. It
// acquires a worker slot and then processes the message synchronously,
// returning only when the command reply or enforcement decision (including
// any control-plane and Helix calls) is done. The supervisor calls it
// directly from the go-twitch-irc message callback, so that shard's read
// loop waits for each message in turn.
func (d *Dispatcher) Handle(ctx context.Context, shard *presence.Shard, msg twitch.PrivateMessage) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-d.sem }()

	corrID := telemetry.NewCorrelationID()
	ctx = telemetry.WithCorrelation(ctx, corrID)
	logger := telemetry.LoggerWithCorr(ctx, slog.Default())

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch handler panicked, failing open", "panic", r, "channel", msg.Channel)
		}
	}()

	start := time.Now()
	d.process(ctx, shard, msg, logger)
	telemetry.DispatchProcessDuration.Observe(time.Since(start).Seconds())
}

func (d *Dispatcher) process(ctx context.Context, shard *presence.Shard, msg twitch.PrivateMessage, logger *slog.Logger) {
	meta := role.MessageMeta{
		AuthorLogin:    msg.User.Name,
		ChannelLogin:   msg.Channel,
		Badges:         msg.User.Badges,
		ModFlag:        msg.Tags["mod"] == "1",
		SubscriberFlag: msg.Tags["subscriber"] == "1",
		VIPFlag:        msg.Tags["vip"] == "1",
		UserType:       msg.Tags["user-type"],
	}
	roles := role.Resolve(meta, d.superAdmins)

	if reply, ok := d.commands.Handle(ctx, msg.Channel, roles, msg.Message); ok {
		if strings.TrimSpace(reply) != "" {
			shard.Say(msg.Channel, reply)
		}
		return
	}

	policy, err := d.configs.Get(ctx, msg.Channel)
	if err != nil {
		logger.Warn("config lookup failed, skipping enforcement", "channel", msg.Channel, "error", err)
		return
	}
	if policy == nil || !policy.Enabled {
		return
	}

	var moderatorID string
	if d.botUserID != nil {
		moderatorID = d.botUserID()
	}

	if err := d.executor.Execute(ctx, policy, roles, msg.Channel, msg.User.Name, moderatorID); err != nil {
		logger.Warn("enforcement failed", "channel", msg.Channel, "user", msg.User.Name, "error", err)
	}
}
