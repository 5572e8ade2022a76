// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For the hard requirements (shared MAC secret, control-plane base URL), use ValidateReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Control plane
	ControlPlaneBaseURL string
	MACSecret            string

	// Pub/sub (optional; absence disables instant propagation)
	PubSubEndpoint string

	// Platform
	ClientID string
	Region   string
	Site     string

	// Super-admins: process-level logins always exempt and command-privileged.
	SuperAdmins map[string]struct{}

	// Sharding / pacing
	ShardCapacity       int
	JoinIntervalPerConn time.Duration
	DispatchWorkers     int

	// Intervals
	CredentialCheckInterval  time.Duration
	CredentialRefreshWindow  time.Duration
	ChannelReconcileInterval time.Duration
	SweepIntervalMin         time.Duration
	SweepIntervalMax         time.Duration

	// HTTP
	HTTPAddr string

	// Timeouts
	ControlPlaneTimeout time.Duration
	ModerationTimeout   time.Duration
}

// Load reads environment variables and applies defaults. It does not fail on missing
// optional variables (e.g. PUBSUB_ENDPOINT); use ValidateReady() to enforce the hard
// requirements needed before Boot.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ControlPlaneBaseURL = strings.TrimRight(os.Getenv("CONTROL_PLANE_BASE_URL"), "/")
	cfg.MACSecret = os.Getenv("MAC_SECRET")
	cfg.PubSubEndpoint = os.Getenv("PUBSUB_ENDPOINT")
	cfg.ClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.Region = os.Getenv("REGION")
	cfg.Site = os.Getenv("SITE_NAME")
	if cfg.Site == "" {
		cfg.Site = "eloward.gg"
	}

	cfg.SuperAdmins = map[string]struct{}{}
	if v := os.Getenv("SUPER_ADMIN_LOGINS"); v != "" {
		for _, login := range strings.Split(v, ",") {
			login = strings.ToLower(strings.TrimSpace(login))
			if login != "" {
				cfg.SuperAdmins[login] = struct{}{}
			}
		}
	}

	cfg.ShardCapacity = envInt("JOIN_SHARD_CAPACITY", 80)
	cfg.JoinIntervalPerConn = envDuration("JOIN_INTERVAL", 667*time.Millisecond)
	cfg.DispatchWorkers = envInt("DISPATCH_WORKERS", 64)

	cfg.CredentialCheckInterval = envDuration("CREDENTIAL_CHECK_INTERVAL", 15*time.Minute)
	cfg.CredentialRefreshWindow = envDuration("CREDENTIAL_REFRESH_WINDOW", 120*time.Minute)
	cfg.ChannelReconcileInterval = envDuration("JOIN_RECONCILE_INTERVAL", 5*time.Minute)
	cfg.SweepIntervalMin = envDuration("SWEEP_INTERVAL_MIN", 90*time.Second)
	cfg.SweepIntervalMax = envDuration("SWEEP_INTERVAL_MAX", 120*time.Second)

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	cfg.ControlPlaneTimeout = envDuration("CONTROL_PLANE_TIMEOUT", 5*time.Second)
	cfg.ModerationTimeout = envDuration("MODERATION_TIMEOUT", 10*time.Second)

	return cfg, nil
}

// ValidateReady checks the hard boot requirements: a MAC secret (used to sign every
// control-plane call except the token endpoint) and a control-plane base URL.
func (c *Config) ValidateReady() error {
	if c.MACSecret == "" {
		return fmt.Errorf("missing MAC_SECRET: cannot sign control-plane requests")
	}
	if c.ControlPlaneBaseURL == "" {
		return fmt.Errorf("missing CONTROL_PLANE_BASE_URL")
	}
	return nil
}

// InstantPropagationEnabled reports whether pub/sub-driven invalidation is configured.
// When false, the supervisor relies solely on periodic reconciliation.
func (c *Config) InstantPropagationEnabled() bool { return c.PubSubEndpoint != "" }

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
