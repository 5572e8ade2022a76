package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/rank"
	"github.com/onnwee/eloward-bot/role"
	"github.com/onnwee/eloward-bot/telemetry"
)

// Executor carries out the enforcement decision for a single chat message:
// resolve IDs, double-check moderator status, render the ban reason, and
// issue the timeout. It never retries a failed ban; the next message from
// the same user gets a fresh attempt.
type Executor struct {
	helix *HelixClient
	ranks *cache.RankCache
	site  string
}

// NewExecutor constructs an Executor. site names the product surface quoted
// in a rendered ban reason via {site} (e.g. "eloward.gg").
func NewExecutor(helix *HelixClient, ranks *cache.RankCache, site string) *Executor {
	return &Executor{helix: helix, ranks: ranks, site: site}
}

// Execute evaluates policy against the message author and, if they fall
// short, times them out. It returns nil whenever no enforcement action was
// warranted (exempt author, rank sufficient) as well as when enforcement
// succeeded; only an unexpected failure to resolve, check, or act returns an
// error, and even that is logged and swallowed by the dispatcher.
//
// IDs are resolved lazily: a batched Helix users lookup for channelLogin and
// authorLogin runs only once the rank check has already determined a timeout
// is warranted, so a message from a compliant chatter never spends a Helix
// call. The bot's own numeric ID is not part of that batch since
// credentials.Provider already carries it from the control-plane token
// response.
func (e *Executor) Execute(ctx context.Context, policy *controlplane.ChannelPolicy, roles role.Roles, channelLogin, authorLogin, moderatorID string) error {
	if roles.EnforcementExempt() {
		return nil
	}
	if policy == nil || !policy.Enabled {
		return nil
	}

	userRank := e.ranks.Get(ctx, authorLogin)

	switch policy.Mode {
	case controlplane.ModeHasRank:
		if userRank.Present {
			return nil
		}
	case controlplane.ModeMinRank:
		minTier, minTierOK := rank.ParseTier(policy.MinTier)
		minDiv, minDivOK := rank.NormalizeDivision(policy.MinDivision)
		if rank.MeetsMinimum(userRank.Tier, minTier, userRank.Division, minDiv, userRank.Known, minTierOK && (minDivOK || minTier.AtLeastMaster())) {
			return nil
		}
	default:
		slog.Warn("unknown policy mode, failing open", "channel", policy.ChannelLogin, "mode", policy.Mode)
		return nil
	}

	ids, err := e.helix.GetUserIDs(ctx, []string{channelLogin, authorLogin})
	if err != nil {
		telemetry.ModerationCallsFailed.Inc()
		return fmt.Errorf("moderation: resolve user ids: %w", err)
	}
	channelID, ok := ids[strings.ToLower(channelLogin)]
	if !ok {
		return fmt.Errorf("moderation: could not resolve channel id for %q", channelLogin)
	}
	authorID, ok := ids[strings.ToLower(authorLogin)]
	if !ok {
		return fmt.Errorf("moderation: could not resolve user id for %q", authorLogin)
	}

	isMod, err := e.helix.IsModerator(ctx, channelID, authorID)
	if err != nil {
		telemetry.ModerationCallsFailed.Inc()
		return fmt.Errorf("moderation: moderator check: %w", err)
	}
	if isMod {
		return nil
	}

	reason, err := renderReason(policy, userRank, authorLogin, e.site)
	if err != nil {
		slog.Error("moderation: no reason template for active mode, aborting timeout", "channel", policy.ChannelLogin, "mode", policy.Mode)
		return err
	}

	start := time.Now()
	err = e.helix.BanUser(ctx, channelID, moderatorID, authorID, policy.TimeoutSeconds, reason)
	telemetry.ModerationCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		telemetry.ModerationCallsFailed.Inc()
		return fmt.Errorf("moderation: ban user: %w", err)
	}

	telemetry.ModerationTimeouts.Inc()
	return nil
}

// renderReason fills the active mode's configured reason template with the
// values available to it: {seconds}, {site}, {user}, {tier}, {division} and
// the bracketed [tier], [division] forms some operators prefer for a more
// scoreboard-like reason string. It returns ErrConfigInvalid, doing no
// substitution, when the active mode has no template configured — the caller
// must abort the timeout rather than send a reason nobody wrote.
func renderReason(policy *controlplane.ChannelPolicy, userRank cache.Rank, authorLogin, site string) (string, error) {
	template := policy.ReasonTemplateMinRank
	if policy.Mode == controlplane.ModeHasRank {
		template = policy.ReasonTemplateHasRank
	}
	if template == "" {
		return "", ErrConfigInvalid
	}

	tier := "UNRANKED"
	division := ""
	if userRank.Known {
		tier = userRank.Tier.String()
		division = userRank.Division.String()
	}

	replacer := strings.NewReplacer(
		"{seconds}", fmt.Sprintf("%d", policy.TimeoutSeconds),
		"{site}", site,
		"{user}", authorLogin,
		"{tier}", tier,
		"{division}", division,
		"[tier]", tier,
		"[division]", division,
	)
	return replacer.Replace(template), nil
}
