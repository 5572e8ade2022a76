package controlplane

import "errors"

// Sentinel errors classifying control-plane responses per the error taxonomy.
var (
	// ErrPolicyAbsent is returned by ConfigGet on a 404: the channel has no
	// configuration row; callers should treat it as "bot disabled".
	ErrPolicyAbsent = errors.New("controlplane: channel policy absent")

	// ErrRankAbsent is returned by RankGet on a 404: the user has no recorded rank.
	ErrRankAbsent = errors.New("controlplane: rank absent")

	// ErrTransient wraps a network error, timeout, or 5xx: callers should fail open
	// and must not cache the result.
	ErrTransient = errors.New("controlplane: transient failure")

	// ErrMissingSecret is a FatalBoot condition: the client cannot sign requests.
	ErrMissingSecret = errors.New("controlplane: MAC secret not configured")
)

// isTransient reports whether err is or wraps ErrTransient.
func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
