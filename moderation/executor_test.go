package moderation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/credentials"
	"github.com/onnwee/eloward-bot/role"
)

func newExecutorFixture(t *testing.T, rankTier, rankDivision string, rankStatus int) (*Executor, *int) {
	t.Helper()
	banCalls := 0

	twitch := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users":
			var data []map[string]string
			ids := map[string]string{"somechannel": "100", "lowrankuser": "55", "unrankeduser": "55"}
			for _, login := range r.URL.Query()["login"] {
				if id, ok := ids[login]; ok {
					data = append(data, map[string]string{"id": id, "login": login})
				}
			}
			json.NewEncoder(w).Encode(map[string]any{"data": data})
		case "/moderation/moderators":
			json.NewEncoder(w).Encode(helixModeratorsResponse{})
		case "/moderation/bans":
			banCalls++
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(twitch.Close)

	cp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			json.NewEncoder(w).Encode(struct {
				Token       string `json:"token"`
				ExpiresAtMs int64  `json:"expires_at"`
			}{Token: "oauth:abc", ExpiresAtMs: 9999999999999})
		case "/rank:get":
			if rankStatus != http.StatusOK {
				w.WriteHeader(rankStatus)
				return
			}
			json.NewEncoder(w).Encode(struct {
				RankData struct {
					RankTier     string `json:"rank_tier"`
					RankDivision string `json:"rank_division"`
				} `json:"rank_data"`
			}{RankData: struct {
				RankTier     string `json:"rank_tier"`
				RankDivision string `json:"rank_division"`
			}{RankTier: rankTier, RankDivision: rankDivision}})
		}
	}))
	t.Cleanup(cp.Close)

	cpClient := controlplane.New(cp.URL, "secret", nil)

	creds := credentials.New(cpClient, 0)
	if err := creds.Boot(context.Background()); err != nil {
		t.Fatalf("creds.Boot: %v", err)
	}

	helix := NewHelixClient("client123", creds, nil).WithBaseURL(twitch.URL)
	ranks := cache.NewRankCache(cpClient)

	return NewExecutor(helix, ranks, "eloward.gg"), &banCalls
}

func TestExecuteSkipsExemptRoles(t *testing.T) {
	exec, banCalls := newExecutorFixture(t, "IRON", "IV", http.StatusOK)
	policy := &controlplane.ChannelPolicy{ChannelLogin: "someuser", Enabled: true, Mode: controlplane.ModeMinRank, MinTier: "GOLD", MinDivision: "I"}

	err := exec.Execute(context.Background(), policy, role.Roles{Subscriber: true}, "somechannel", "lowrankuser", "200")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if *banCalls != 0 {
		t.Errorf("expected no ban for exempt role, got %d", *banCalls)
	}
}

func TestExecuteBansBelowMinimum(t *testing.T) {
	exec, banCalls := newExecutorFixture(t, "IRON", "IV", http.StatusOK)
	policy := &controlplane.ChannelPolicy{
		ChannelLogin: "someuser", Enabled: true, Mode: controlplane.ModeMinRank,
		MinTier: "GOLD", MinDivision: "I", TimeoutSeconds: 600,
		ReasonTemplateMinRank: "{user} timed out for {seconds}s on {site}: have {tier} {division}",
	}

	err := exec.Execute(context.Background(), policy, role.Roles{}, "somechannel", "lowrankuser", "200")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if *banCalls != 1 {
		t.Errorf("expected 1 ban, got %d", *banCalls)
	}
}

func TestExecuteFailsOpenOnRankAbsent(t *testing.T) {
	exec, banCalls := newExecutorFixture(t, "", "", http.StatusNotFound)
	policy := &controlplane.ChannelPolicy{ChannelLogin: "someuser", Enabled: true, Mode: controlplane.ModeMinRank, MinTier: "GOLD", MinDivision: "I"}

	err := exec.Execute(context.Background(), policy, role.Roles{}, "somechannel", "unrankeduser", "200")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if *banCalls != 0 {
		t.Errorf("expected fail-open (no ban) when rank is absent, got %d calls", *banCalls)
	}
}

func TestExecuteDisabledPolicySkipsEnforcement(t *testing.T) {
	exec, banCalls := newExecutorFixture(t, "IRON", "IV", http.StatusOK)
	policy := &controlplane.ChannelPolicy{ChannelLogin: "someuser", Enabled: false, Mode: controlplane.ModeMinRank, MinTier: "GOLD"}

	err := exec.Execute(context.Background(), policy, role.Roles{}, "somechannel", "lowrankuser", "200")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if *banCalls != 0 {
		t.Errorf("expected no ban for disabled policy, got %d", *banCalls)
	}
}

func TestExecuteAbortsWhenReasonTemplateMissing(t *testing.T) {
	exec, banCalls := newExecutorFixture(t, "IRON", "IV", http.StatusOK)
	policy := &controlplane.ChannelPolicy{
		ChannelLogin: "someuser", Enabled: true, Mode: controlplane.ModeMinRank,
		MinTier: "GOLD", MinDivision: "I", TimeoutSeconds: 600,
	}

	err := exec.Execute(context.Background(), policy, role.Roles{}, "somechannel", "lowrankuser", "200")
	if err != ErrConfigInvalid {
		t.Fatalf("Execute: want ErrConfigInvalid, got %v", err)
	}
	if *banCalls != 0 {
		t.Errorf("expected no ban when reason template is missing, got %d", *banCalls)
	}
}
