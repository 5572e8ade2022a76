package command

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/role"
)

func newInterpreter(t *testing.T, handler http.HandlerFunc) *Interpreter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := controlplane.New(srv.URL, "secret", nil)
	return New(client, cache.NewConfigCache(client), "eloward.gg", nil)
}

func TestHandleIgnoresNonCommandText(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {})
	_, ok := in.Handle(context.Background(), "someuser", role.Roles{}, "gg well played")
	if ok {
		t.Error("expected ok=false for non-command text")
	}
}

func TestHandleBareCommandIsUnprivilegedStatus(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(controlplane.ChannelPolicy{ChannelLogin: "someuser", Enabled: true, Mode: controlplane.ModeHasRank})
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{}, "!eloward")
	if !ok || reply == "" {
		t.Fatalf("Handle(bare) = (%q, %v)", reply, ok)
	}
}

func TestHandleHelpIsUnprivileged(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{}, "!eloward help")
	if !ok || reply == "" {
		t.Fatalf("Handle(help) = (%q, %v)", reply, ok)
	}
}

func TestHandleCommandsIsUnprivilegedAndTopLevel(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach control plane")
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{}, "!commands")
	if !ok || reply == "" {
		t.Fatalf("Handle(!commands) = (%q, %v)", reply, ok)
	}
}

func TestHandleOnRequiresPrivilege(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach control plane")
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{}, "!eloward on")
	if !ok {
		t.Fatal("expected ok=true even when unprivileged (command recognized, action refused)")
	}
	if reply == "" {
		t.Error("expected a refusal message")
	}
}

func TestHandleOnPrivileged(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(controlplane.ChannelPolicy{ChannelLogin: "someuser", Enabled: true})
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Broadcaster: true}, "!eloward on")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if reply != "eloward enabled for this channel" {
		t.Errorf("reply = %q", reply)
	}
}

func TestHandleOffPrivileged(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(controlplane.ChannelPolicy{ChannelLogin: "someuser", Enabled: false})
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Broadcaster: true}, "!eloward off")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if reply != "eloward disabled for this channel" {
		t.Errorf("reply = %q", reply)
	}
}

func TestHandleSetMinRankRejectsUnknownTier(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach control plane on invalid input")
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Moderator: true}, "!eloward set min_rank NOTATIER I")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if reply == "" {
		t.Error("expected a validation error message")
	}
}

func TestHandleSetMinRankForcesDivisionIAtMasterPlus(t *testing.T) {
	var gotDivision string
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Fields controlplane.ConfigUpdateFields `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Fields.MinDivision != nil {
			gotDivision = *body.Fields.MinDivision
		}
		json.NewEncoder(w).Encode(controlplane.ChannelPolicy{ChannelLogin: "someuser", MinTier: "MASTER", MinDivision: "I"})
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Moderator: true}, "!eloward set min_rank master III")
	if !ok || reply == "" {
		t.Fatalf("Handle(set min_rank master III) = (%q, %v)", reply, ok)
	}
	if gotDivision != "I" {
		t.Errorf("expected division forced to I at MASTER+, got %q", gotDivision)
	}
}

func TestHandleSetTimeoutClampsToRange(t *testing.T) {
	var gotSeconds int
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Fields controlplane.ConfigUpdateFields `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Fields.TimeoutSeconds != nil {
			gotSeconds = *body.Fields.TimeoutSeconds
		}
		json.NewEncoder(w).Encode(controlplane.ChannelPolicy{ChannelLogin: "someuser", TimeoutSeconds: gotSeconds})
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Moderator: true}, "!eloward set timeout 999999999")
	if !ok || reply == "" {
		t.Fatalf("Handle(set timeout) = (%q, %v)", reply, ok)
	}
	if gotSeconds != maxTimeoutSeconds {
		t.Errorf("expected timeout clamped to %d, got %d", maxTimeoutSeconds, gotSeconds)
	}
}

func TestHandleSetReasonTargetsActiveMode(t *testing.T) {
	calls := 0
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot/config-get":
			json.NewEncoder(w).Encode(controlplane.ChannelPolicy{ChannelLogin: "someuser", Enabled: true, Mode: controlplane.ModeHasRank})
		case "/bot/config-update":
			calls++
			var body struct {
				Fields controlplane.ConfigUpdateFields `json:"fields"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.Fields.ReasonTemplateHasRank == nil {
				t.Error("expected has_rank template to be set since that is the active mode")
			}
			if body.Fields.ReasonTemplateMinRank != nil {
				t.Error("did not expect min_rank template to be touched")
			}
			json.NewEncoder(w).Encode(controlplane.ChannelPolicy{ChannelLogin: "someuser", Mode: controlplane.ModeHasRank})
		}
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Broadcaster: true}, "!eloward set reason link your rank with {site}")
	if !ok || reply == "" {
		t.Fatalf("Handle(set reason) = (%q, %v)", reply, ok)
	}
	if calls != 1 {
		t.Errorf("expected 1 config-update call, got %d", calls)
	}
}

func TestHandleStatusRequiresPrivilege(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach control plane")
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{}, "!eloward status")
	if !ok || reply == "" {
		t.Fatalf("Handle(status, unprivileged) = (%q, %v)", reply, ok)
	}
}

func TestHandleUnknownSubcommandRepliesUnknown(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach control plane")
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Broadcaster: true}, "!eloward frobnicate")
	if !ok || reply != "unknown command" {
		t.Fatalf("Handle(unknown) = (%q, %v)", reply, ok)
	}
}

func TestHandleJoinRequiresSuperAdmin(t *testing.T) {
	in := newInterpreter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach control plane")
	})
	reply, ok := in.Handle(context.Background(), "someuser", role.Roles{Broadcaster: true}, "!eloward join otherchannel")
	if !ok || reply == "" {
		t.Fatalf("Handle(join, non-super-admin) = (%q, %v)", reply, ok)
	}
}
