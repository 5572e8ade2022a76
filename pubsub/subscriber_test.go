package pubsub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/eloward-bot/cache"
	"github.com/onnwee/eloward-bot/controlplane"
	"github.com/onnwee/eloward-bot/presence"
)

var upgrader = websocket.Upgrader{}

func TestApplyConfigUpdateInvalidatesCache(t *testing.T) {
	cp := controlplane.New("http://unused.invalid", "secret", nil)
	configs := cache.NewConfigCache(cp)
	configs.Put(&controlplane.ChannelPolicy{ChannelLogin: "someuser", Version: 1})

	shard := presence.NewShard("shard-0", "bot", nil, nil, nil)
	sched := presence.NewScheduler([]*presence.Shard{shard}, nil)
	if err := sched.Assign(context.Background(), "someuser", 10); err != nil {
		t.Fatalf("pre-assign: %v", err)
	}

	s := New("", "", configs, sched, cp, 10)
	s.apply(context.Background(), event{Type: eventConfigUpdate, ChannelLogin: "someuser"})

	// After invalidation, Get should refetch rather than return the stale cached value.
	// unused.invalid will fail the refetch, which is the expected transient-error path.
	_, err := configs.Get(context.Background(), "someuser")
	if err == nil {
		t.Error("expected refetch against an unreachable host to fail after invalidation")
	}
}

func TestApplyConfigUpdateForNewChannelAssignsAndFollows(t *testing.T) {
	followed := make(chan string, 1)
	cpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bot/follow-channel" {
			followed <- "called"
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer cpSrv.Close()
	cp := controlplane.New(cpSrv.URL, "secret", nil)

	configs := cache.NewConfigCache(cp)
	shard := presence.NewShard("shard-0", "bot", nil, nil, nil)
	sched := presence.NewScheduler([]*presence.Shard{shard}, nil)

	s := New("", "", configs, sched, cp, 10)
	s.apply(context.Background(), event{Type: eventConfigUpdate, ChannelLogin: "newchannel"})

	if sched.Owner("newchannel") != "shard-0" {
		t.Errorf("expected newchannel assigned to shard-0, owner = %q", sched.Owner("newchannel"))
	}
	select {
	case <-followed:
	case <-time.After(time.Second):
		t.Fatal("expected follow-channel to be called for a newly-enabled channel")
	}
}

func TestApplyIgnoresUnrecognizedEventType(t *testing.T) {
	shard := presence.NewShard("shard-0", "bot", nil, nil, nil)
	sched := presence.NewScheduler([]*presence.Shard{shard}, nil)
	s := New("", "", nil, sched, nil, 10)

	s.apply(context.Background(), event{Type: "channel_removed", ChannelLogin: "somechannel"})
	if sched.Owner("somechannel") != "" {
		t.Errorf("expected unrecognized event type to be ignored, got owner %q", sched.Owner("somechannel"))
	}
}

func TestRunNoOpWithoutEndpoint(t *testing.T) {
	s := New("", "", nil, nil, nil, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	s.Run(ctx) // must return immediately, not block until ctx deadline
}

func TestConnectAndReadAppliesEvents(t *testing.T) {
	assigned := make(chan string, 1)
	cpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer cpSrv.Close()
	cp := controlplane.New(cpSrv.URL, "secret", nil)

	shard := presence.NewShard("shard-0", "bot", nil, nil, nil)
	sched := presence.NewScheduler([]*presence.Shard{shard}, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		conn.WriteJSON(event{Type: eventConfigUpdate, ChannelLogin: "pushedchannel"})
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	s := New(wsURL, "", cache.NewConfigCache(cp), sched, cp, 10)

	go func() {
		s.connectAndRead(context.Background())
	}()

	deadline := time.After(time.Second)
	for {
		if sched.Owner("pushedchannel") == "shard-0" {
			assigned <- "ok"
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for pushed event to be applied")
		case <-time.After(5 * time.Millisecond):
		}
	}
	<-assigned
}
