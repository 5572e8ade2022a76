// Package credentials manages the bot's own Twitch OAuth token, fetched from
// the control plane rather than Twitch directly. The shape mirrors the
// teacher's twitchapi.TokenSource: an RWMutex-guarded cached value refreshed
// ahead of expiry, plus a background watcher and rotation detection.
package credentials

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/eloward-bot/controlplane"
)

// Provider holds the bot's current IRC identity and OAuth token, refreshing
// it from the control plane before it expires.
type Provider struct {
	client *controlplane.Client

	refreshWindow time.Duration

	mu        sync.RWMutex
	token     string
	login     string
	userID    string
	expiresAt time.Time

	rotated chan struct{}
}

// New constructs a Provider. refreshWindow is how far ahead of expiry to
// proactively refresh (spec default: 120 minutes).
func New(client *controlplane.Client, refreshWindow time.Duration) *Provider {
	return &Provider{
		client:        client,
		refreshWindow: refreshWindow,
		rotated:       make(chan struct{}, 1),
	}
}

// Current returns the cached token and login without making a network call.
// Callers on the hot path (IRC connect) should use this; Boot and watch are
// the only paths that hit the network.
func (p *Provider) Current() (token, login string) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token, p.login
}

// UserID returns the bot account's own Twitch user ID, used as the
// moderator_id parameter on ban calls.
func (p *Provider) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID
}

// Rotated signals whenever refresh observes a token value different from the
// one it replaces, so shards can decide whether a reconnect is warranted.
func (p *Provider) Rotated() <-chan struct{} { return p.rotated }

// Boot performs the initial token fetch. A failure here is fatal: the
// supervisor has nothing to fall back to and should abort startup.
func (p *Provider) Boot(ctx context.Context) error {
	return p.refresh(ctx)
}

func (p *Provider) refresh(ctx context.Context) error {
	result, err := p.client.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("credentials: refresh token: %w", err)
	}

	p.mu.Lock()
	previous := p.token
	p.token = result.Token
	p.login = result.UserLogin
	p.userID = result.UserID
	p.expiresAt = result.ExpiresAt
	p.mu.Unlock()

	if previous != "" && !constantTimeEqual(previous, result.Token) {
		slog.Info("credential rotation detected", "login", result.UserLogin)
		select {
		case p.rotated <- struct{}{}:
		default:
		}
	}
	return nil
}

// Watch blocks, checking every interval whether the cached token is within
// refreshWindow of expiry and refreshing it if so. It runs until ctx is
// canceled.
func (p *Provider) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.needsRefresh() {
				if err := p.refresh(ctx); err != nil {
					slog.Error("credential refresh failed, keeping stale token", "error", err)
				}
			}
		}
	}
}

func (p *Provider) needsRefresh() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" {
		return true
	}
	return time.Until(p.expiresAt) < p.refreshWindow
}

// constantTimeEqual compares two tokens without leaking timing information
// about where they first differ.
func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
