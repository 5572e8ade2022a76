// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered at package init, the same way promauto.New* is
// normally used: as package-level var initializers, not behind a deferred
// setup call. That way any package importing telemetry can record against
// them immediately, including in tests that never call an explicit Init.
var (
	// Counters
	ModerationTimeouts    = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_moderation_timeouts_total", Help: "Number of timeout calls issued"})
	ModerationCallsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_moderation_calls_failed_total", Help: "Number of moderation API calls that failed"})
	ConfigCacheHits       = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_config_cache_hits_total", Help: "Config cache hits"})
	ConfigCacheMisses     = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_config_cache_misses_total", Help: "Config cache misses"})
	RankCacheHits         = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_rank_cache_hits_total", Help: "Rank cache hits"})
	RankCacheMisses       = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_rank_cache_misses_total", Help: "Rank cache misses"})
	PubsubInvalidations   = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_pubsub_invalidations_total", Help: "Number of config_update events consumed"})
	CredentialRotations   = promauto.NewCounter(prometheus.CounterOpts{Name: "eloward_credential_rotations_total", Help: "Number of detected bearer credential rotations"})

	// Counter vectors
	IRCReconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "eloward_irc_reconnects_total", Help: "IRC shard reconnect attempts"}, []string{"shard"})
	JoinCommands  = promauto.NewCounterVec(prometheus.CounterOpts{Name: "eloward_join_commands_total", Help: "JOIN commands issued"}, []string{"shard"})

	// Histograms (seconds)
	ModerationCallDuration  prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "eloward_moderation_call_duration_seconds", Help: "Moderation API call duration", Buckets: prometheus.DefBuckets})
	DispatchProcessDuration prometheus.Observer = promauto.NewHistogram(prometheus.HistogramOpts{Name: "eloward_dispatch_process_duration_seconds", Help: "Per-message dispatch processing duration", Buckets: prometheus.DefBuckets})
)

// Init is a no-op retained for main.go's boot sequence, which calls it
// alongside telemetry.InitTracing for symmetric startup logging; metric
// registration itself already happened at package load.
func Init() {}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// NewCorrelationID returns a fresh correlation id for a hot-path message.
func NewCorrelationID() string { return uuid.New().String() }

// WithCorrelation returns a new context embedding a correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns logger annotated with ctx's correlation id, if present.
func LoggerWithCorr(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return logger.With(slog.String("corr", id))
	}
	return logger
}
