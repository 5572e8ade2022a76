package role

import "testing"

func TestResolveBroadcasterByLoginMatch(t *testing.T) {
	r := Resolve(MessageMeta{AuthorLogin: "streamerx", ChannelLogin: "StreamerX"}, nil)
	if !r.Broadcaster {
		t.Errorf("expected broadcaster when author login equals channel login")
	}
	if !r.EnforcementExempt() || !r.CommandPrivileged() {
		t.Errorf("broadcaster must be both exempt and command-privileged")
	}
}

func TestResolveBadgePrefixes(t *testing.T) {
	cases := []struct {
		name   string
		badges map[string]int
		want   Roles
	}{
		{"moderator badge", map[string]int{"moderator": 1}, Roles{Moderator: true}},
		{"vip badge", map[string]int{"vip": 1}, Roles{VIP: true}},
		{"subscriber badge", map[string]int{"subscriber": 24}, Roles{Subscriber: true}},
		{"founder counts as subscriber", map[string]int{"founder": 0}, Roles{Subscriber: true}},
		{"broadcaster badge", map[string]int{"broadcaster": 1}, Roles{Broadcaster: true}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Resolve(MessageMeta{AuthorLogin: "viewer1", ChannelLogin: "somechannel", Badges: c.badges}, nil)
			if got != c.want {
				t.Errorf("Resolve() = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestResolveTagFallback(t *testing.T) {
	r := Resolve(MessageMeta{AuthorLogin: "viewer1", ChannelLogin: "somechannel", ModFlag: true}, nil)
	if !r.Moderator {
		t.Errorf("expected mod flag fallback to set Moderator")
	}
	r = Resolve(MessageMeta{AuthorLogin: "viewer1", ChannelLogin: "somechannel", UserType: "mod"}, nil)
	if !r.Moderator {
		t.Errorf("expected user-type=mod fallback to set Moderator")
	}
	r = Resolve(MessageMeta{AuthorLogin: "viewer1", ChannelLogin: "somechannel", SubscriberFlag: true}, nil)
	if !r.Subscriber {
		t.Errorf("expected subscriber flag fallback")
	}
	r = Resolve(MessageMeta{AuthorLogin: "viewer1", ChannelLogin: "somechannel", VIPFlag: true}, nil)
	if !r.VIP {
		t.Errorf("expected vip flag fallback")
	}
}

func TestResolveSuperAdminOverride(t *testing.T) {
	admins := map[string]struct{}{"opsbot": {}}
	r := Resolve(MessageMeta{AuthorLogin: "OpsBot", ChannelLogin: "somechannel"}, admins)
	if !r.SuperAdmin {
		t.Errorf("expected super-admin to be recognized case-insensitively")
	}
	if !r.EnforcementExempt() || !r.CommandPrivileged() {
		t.Errorf("super-admin must be exempt and command-privileged even with no badges")
	}
}

func TestModeratorExemptDespiteNoRank(t *testing.T) {
	// S6 scenario: badge moderator/1, no super-admin, should be exempt without any rank lookup.
	r := Resolve(MessageMeta{AuthorLogin: "modperson", ChannelLogin: "somechannel", Badges: map[string]int{"moderator": 1}}, nil)
	if !r.EnforcementExempt() {
		t.Errorf("expected moderator to be enforcement-exempt")
	}
}

func TestOrdinaryViewerNotExempt(t *testing.T) {
	r := Resolve(MessageMeta{AuthorLogin: "randomviewer", ChannelLogin: "somechannel"}, nil)
	if r.EnforcementExempt() {
		t.Errorf("expected ordinary viewer to not be exempt")
	}
	if r.CommandPrivileged() {
		t.Errorf("expected ordinary viewer to not be command-privileged")
	}
}
