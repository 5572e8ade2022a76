// Package command implements the !eloward chat command surface: channel
// operators configure enforcement without leaving Twitch chat. Every
// mutating command writes through to the control plane and then puts the
// policy returned by that call into the local config cache with
// ConfigCache.Put. The cached entry is not dropped: a returned policy whose
// Version is lower than the cached one leaves the cached entry in place.
package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/rank"
	"github.com/onnwee/eloward-bot/role"
)

const (
	prefix         = "!eloward"
	commandsPrefix = "!commands"

	minTimeoutSeconds = 1
	maxTimeoutSeconds = 1209600
)

// Interpreter parses and executes !eloward commands.
type Interpreter struct {
	cp     *controlplane.Client
	config *cache.ConfigCache
	site   string
	join   JoinFunc
}

// JoinFunc is called when a super-admin issues "!eloward join <channel>"; the
// supervisor supplies a closure over presence.Scheduler.Assign with the
// configured shard capacity, injected to avoid an import
// cycle (presence does not depend on command).
type JoinFunc func(ctx context.Context, channel string) error

// New constructs an Interpreter. site is quoted in help/commands replies as
// the URL host, e.g. "eloward.gg".
func New(cp *controlplane.Client, config *cache.ConfigCache, site string, join JoinFunc) *Interpreter {
	return &Interpreter{cp: cp, config: config, site: site, join: join}
}

// Handle parses text as a potential !eloward or !commands command for
// channel, issued by an author with roles. It returns ok=false when text is
// not a command this interpreter recognizes (the dispatcher should fall
// through to enforcement in that case, since a non-command message is still
// subject to rank checks).
func (in *Interpreter) Handle(ctx context.Context, channel string, roles role.Roles, text string) (reply string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", false
	}

	if strings.EqualFold(fields[0], commandsPrefix) {
		return in.commandsReply(), true
	}
	if !strings.EqualFold(fields[0], prefix) {
		return "", false
	}

	args := fields[1:]
	if len(args) == 0 {
		return in.statusSummary(ctx, channel), true
	}

	sub := strings.ToLower(args[0])
	rest := args[1:]

	if sub == "help" {
		return in.helpReply(), true
	}

	if !roles.CommandPrivileged() {
		return "only the broadcaster or a moderator can change eloward settings", true
	}

	switch sub {
	case "on":
		return in.setEnabled(ctx, channel, true), true
	case "off":
		return in.setEnabled(ctx, channel, false), true
	case "mode":
		return in.setMode(ctx, channel, rest), true
	case "set":
		return in.set(ctx, channel, rest), true
	case "status":
		return in.statusDetailed(ctx, channel), true
	case "join":
		if !roles.SuperAdmin {
			return "only a super-admin can add a new channel", true
		}
		return in.joinChannel(ctx, rest), true
	default:
		return "unknown command", true
	}
}

func (in *Interpreter) helpReply() string {
	return fmt.Sprintf("need help? see https://%s/help", in.site)
}

func (in *Interpreter) commandsReply() string {
	return fmt.Sprintf("commands: https://%s/commands", in.site)
}

func (in *Interpreter) statusSummary(ctx context.Context, channel string) string {
	policy, err := in.config.Get(ctx, channel)
	if err != nil {
		return "could not reach the control plane to check status, try again shortly"
	}
	if policy == nil || !policy.Enabled {
		return "eloward is currently disabled in this channel"
	}
	if policy.Mode == controlplane.ModeMinRank {
		return fmt.Sprintf("eloward requires at least %s %s here", policy.MinTier, policy.MinDivision)
	}
	return "eloward requires a linked rank here"
}

func (in *Interpreter) statusDetailed(ctx context.Context, channel string) string {
	policy, err := in.config.Get(ctx, channel)
	if err != nil {
		return "could not reach the control plane to check status, try again shortly"
	}
	if policy == nil {
		return "eloward is not configured for this channel"
	}
	state := "disabled"
	if policy.Enabled {
		state = "enabled"
	}
	if policy.Mode == controlplane.ModeMinRank {
		return fmt.Sprintf("eloward is %s here: mode=min_rank min_rank=%s %s timeout=%ds", state, policy.MinTier, policy.MinDivision, policy.TimeoutSeconds)
	}
	return fmt.Sprintf("eloward is %s here: mode=%s timeout=%ds", state, policy.Mode, policy.TimeoutSeconds)
}

func (in *Interpreter) setEnabled(ctx context.Context, channel string, enabled bool) string {
	policy, err := in.cp.ConfigUpdate(ctx, channel, controlplane.ConfigUpdateFields{Enabled: &enabled})
	if err != nil {
		return "failed to update eloward settings, try again shortly"
	}
	in.config.Put(policy)
	if enabled {
		return "eloward enabled for this channel"
	}
	return "eloward disabled for this channel"
}

func (in *Interpreter) setMode(ctx context.Context, channel string, args []string) string {
	if len(args) != 1 {
		return "usage: !eloward mode <has_rank|min_rank>"
	}
	mode := strings.ToLower(args[0])
	if mode != controlplane.ModeHasRank && mode != controlplane.ModeMinRank {
		return "mode must be has_rank or min_rank"
	}
	policy, err := in.cp.ConfigUpdate(ctx, channel, controlplane.ConfigUpdateFields{Mode: &mode})
	if err != nil {
		return "failed to update eloward settings, try again shortly"
	}
	in.config.Put(policy)
	return fmt.Sprintf("eloward mode set to %s", mode)
}

// set dispatches "!eloward set <timeout|min_rank|reason> ...".
func (in *Interpreter) set(ctx context.Context, channel string, args []string) string {
	if len(args) == 0 {
		return "usage: !eloward set <timeout|min_rank|reason> ..."
	}
	kind := strings.ToLower(args[0])
	rest := args[1:]
	switch kind {
	case "timeout":
		return in.setTimeout(ctx, channel, rest)
	case "min_rank":
		return in.setMinRank(ctx, channel, rest)
	case "reason":
		return in.setReason(ctx, channel, rest)
	default:
		return "usage: !eloward set <timeout|min_rank|reason> ..."
	}
}

func (in *Interpreter) setTimeout(ctx context.Context, channel string, args []string) string {
	if len(args) != 1 {
		return "usage: !eloward set timeout <seconds>"
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil {
		return "timeout must be a whole number of seconds"
	}
	switch {
	case seconds < minTimeoutSeconds:
		seconds = minTimeoutSeconds
	case seconds > maxTimeoutSeconds:
		seconds = maxTimeoutSeconds
	}
	policy, err := in.cp.ConfigUpdate(ctx, channel, controlplane.ConfigUpdateFields{TimeoutSeconds: &seconds})
	if err != nil {
		return "failed to update eloward settings, try again shortly"
	}
	in.config.Put(policy)
	return fmt.Sprintf("timeout duration set to %ds", seconds)
}

// setMinRank validates the tier and, for MASTER and above, always persists
// division I regardless of whether the caller supplied one — those tiers
// have no divisions on the leaderboard. Below MASTER a division argument is
// required.
func (in *Interpreter) setMinRank(ctx context.Context, channel string, args []string) string {
	if len(args) == 0 {
		return "usage: !eloward set min_rank <tier> [division]"
	}
	tier, ok := rank.ParseTier(args[0])
	if !ok {
		return fmt.Sprintf("unrecognized rank tier %q", args[0])
	}

	division := rank.I.String()
	if !tier.AtLeastMaster() {
		if len(args) < 2 {
			return "a division is required below MASTER"
		}
		div, ok := rank.NormalizeDivision(args[1])
		if !ok {
			return fmt.Sprintf("unrecognized division %q", args[1])
		}
		division = div.String()
	}

	tierStr := tier.String()
	fields := controlplane.ConfigUpdateFields{MinTier: &tierStr, MinDivision: &division}
	policy, err := in.cp.ConfigUpdate(ctx, channel, fields)
	if err != nil {
		return "failed to update eloward settings, try again shortly"
	}
	in.config.Put(policy)
	if tier.AtLeastMaster() {
		return fmt.Sprintf("minimum rank set to %s", tierStr)
	}
	return fmt.Sprintf("minimum rank set to %s %s", tierStr, division)
}

// setReason targets the currently active mode's reason template; there is no
// explicit hasrank/minrank argument, unlike the legacy command surface.
func (in *Interpreter) setReason(ctx context.Context, channel string, args []string) string {
	if len(args) == 0 {
		return "usage: !eloward set reason <template>"
	}
	template := strings.Join(args, " ")

	policy, err := in.config.Get(ctx, channel)
	if err != nil {
		return "could not reach the control plane to check the active mode, try again shortly"
	}
	if policy == nil {
		return "eloward is not configured for this channel"
	}

	var fields controlplane.ConfigUpdateFields
	if policy.Mode == controlplane.ModeHasRank {
		fields.ReasonTemplateHasRank = &template
	} else {
		fields.ReasonTemplateMinRank = &template
	}
	updated, err := in.cp.ConfigUpdate(ctx, channel, fields)
	if err != nil {
		return "failed to update eloward settings, try again shortly"
	}
	in.config.Put(updated)
	return "reason template updated"
}

func (in *Interpreter) joinChannel(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "usage: !eloward join <channel>"
	}
	channel := strings.ToLower(strings.TrimPrefix(args[0], "@"))
	if err := in.cp.FollowChannel(ctx, channel); err != nil {
		return fmt.Sprintf("failed to register channel %q with the control plane", channel)
	}
	if in.join != nil {
		if err := in.join(ctx, channel); err != nil {
			return fmt.Sprintf("registered %q but could not join yet: %v", channel, err)
		}
	}
	return fmt.Sprintf("joined %s", channel)
}
