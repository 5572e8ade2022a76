// Package role classifies a chat message's author into the roles that drive both
// enforcement exemption and command privilege. Classification is pure and best-effort:
// it never performs I/O, and its output is defended downstream by the moderation
// executor's secondary moderator-list check.
package role

import "strings"

// MessageMeta carries the subset of IRC message metadata role.Resolve needs.
// Badges mirrors go-twitch-irc's PrivateMessage.User.Badges: badge name (without the
// "/version" suffix) to version. ModFlag/SubscriberFlag/VIPFlag/UserType mirror the
// message tags `mod`, `subscriber`, `vip`, and `user-type` respectively.
type MessageMeta struct {
	AuthorLogin    string
	ChannelLogin   string
	Badges         map[string]int
	ModFlag        bool
	SubscriberFlag bool
	VIPFlag        bool
	UserType       string
}

// Roles is the resolved role set for a message author.
type Roles struct {
	Broadcaster bool
	Moderator   bool
	Subscriber  bool
	VIP         bool
	SuperAdmin  bool
}

// EnforcementExempt reports whether the author is exempt from enforcement. This is
// intentionally not configurable per channel; it is part of the safety contract.
func (r Roles) EnforcementExempt() bool {
	return r.Broadcaster || r.Moderator || r.Subscriber || r.SuperAdmin
}

// CommandPrivileged reports whether the author may issue mutating !eloward commands.
func (r Roles) CommandPrivileged() bool {
	return r.Broadcaster || r.Moderator || r.SuperAdmin
}

// Resolve classifies a message author. superAdmins is a process-level, statically
// configured set of logins (already lower-cased) that are always exempt and
// always command-privileged, independent of anything the message carries.
func Resolve(msg MessageMeta, superAdmins map[string]struct{}) Roles {
	author := strings.ToLower(msg.AuthorLogin)
	channel := strings.ToLower(msg.ChannelLogin)

	var r Roles

	// Rule 1: author login equals channel login.
	if author != "" && author == channel {
		r.Broadcaster = true
	}

	// Rule 2: badge prefixes. Founder counts as subscriber.
	if _, ok := msg.Badges["broadcaster"]; ok {
		r.Broadcaster = true
	}
	if _, ok := msg.Badges["moderator"]; ok {
		r.Moderator = true
	}
	if _, ok := msg.Badges["vip"]; ok {
		r.VIP = true
	}
	if _, ok := msg.Badges["subscriber"]; ok {
		r.Subscriber = true
	}
	if _, ok := msg.Badges["founder"]; ok {
		r.Subscriber = true
	}

	// Rule 3: fall back to tag flags when badges didn't already set a role.
	if !r.Moderator && (msg.ModFlag || strings.EqualFold(msg.UserType, "mod")) {
		r.Moderator = true
	}
	if !r.Subscriber && msg.SubscriberFlag {
		r.Subscriber = true
	}
	if !r.VIP && msg.VIPFlag {
		r.VIP = true
	}

	if _, ok := superAdmins[author]; ok {
		r.SuperAdmin = true
	}

	return r
}
