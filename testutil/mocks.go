// Package testutil holds fakes shared across package tests: a path-routed
// HTTP server standing in for both the Twitch Helix API and the control
// plane, since both are plain JSON-over-HTTP and tests mostly care about
// which path got hit and what was returned.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// FakeAPIServer is a test server that dispatches by request path, standing in
// for both Helix responses and control-plane responses.
type FakeAPIServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewFakeAPIServer starts a FakeAPIServer with no handlers registered;
// unmatched paths return 404.
func NewFakeAPIServer(t *testing.T) *FakeAPIServer {
	t.Helper()
	m := &FakeAPIServer{Handlers: make(map[string]http.HandlerFunc)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockHelixUser registers /users to resolve login to userID.
func (m *FakeAPIServer) MockHelixUser(userID, login string) {
	m.Handlers["/users"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"data": []map[string]string{{"id": userID, "login": login}},
		})
	}
}

// MockHelixUsers registers /users to resolve a batch of logins, reporting
// only the ones present in idsByLogin back in the response data, the way the
// real Helix endpoint omits logins it cannot find rather than erroring.
func (m *FakeAPIServer) MockHelixUsers(idsByLogin map[string]string) {
	m.Handlers["/users"] = func(w http.ResponseWriter, r *http.Request) {
		var data []map[string]string
		for _, login := range r.URL.Query()["login"] {
			if id, ok := idsByLogin[login]; ok {
				data = append(data, map[string]string{"id": id, "login": login})
			}
		}
		writeJSON(w, map[string]any{"data": data})
	}
}

// MockHelixModerators registers /moderation/moderators to report modUserIDs
// as the channel's current moderator list.
func (m *FakeAPIServer) MockHelixModerators(modUserIDs ...string) {
	m.Handlers["/moderation/moderators"] = func(w http.ResponseWriter, r *http.Request) {
		data := make([]map[string]string, len(modUserIDs))
		for i, id := range modUserIDs {
			data[i] = map[string]string{"user_id": id}
		}
		writeJSON(w, map[string]any{"data": data})
	}
}

// MockHelixBanRecorder registers /moderation/bans to always succeed and
// invoke onBan with the decoded request body for assertions.
func (m *FakeAPIServer) MockHelixBanRecorder(onBan func(body map[string]any)) {
	m.Handlers["/moderation/bans"] = func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if onBan != nil {
			onBan(body)
		}
		w.WriteHeader(http.StatusOK)
	}
}

// MockControlPlaneToken registers /token with a fixed token value.
func (m *FakeAPIServer) MockControlPlaneToken(token string, expiresAtMs int64) {
	m.Handlers["/token"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"token": token, "expires_at": expiresAtMs})
	}
}
