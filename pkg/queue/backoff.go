package queue

import "time"

// BackoffKind selects how the retry delay grows between attempts.
type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// BackoffPolicy controls the delay before a failed job becomes claimable
// again. The zero value is normalized to DefaultBackoff by the Enqueuer.
type BackoffPolicy struct {
	Kind  BackoffKind   `json:"kind"`
	Delay time.Duration `json:"delay"`
}

// DefaultBackoff doubles the delay on every retry starting at two seconds.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{Kind: BackoffExponential, Delay: 2 * time.Second}
}

// FixedBackoff waits the same delay before every retry.
func FixedBackoff(delay time.Duration) BackoffPolicy {
	return BackoffPolicy{Kind: BackoffFixed, Delay: delay}
}

// ExponentialBackoff doubles the base delay on every retry.
func ExponentialBackoff(delay time.Duration) BackoffPolicy {
	return BackoffPolicy{Kind: BackoffExponential, Delay: delay}
}

// Valid reports whether the policy can be persisted.
func (p BackoffPolicy) Valid() bool {
	if p.Delay < 0 {
		return false
	}
	switch p.Kind {
	case BackoffFixed, BackoffExponential:
		return true
	}
	return false
}

// NextDelay returns the delay before the given retry may run. The first
// retry is 1. Exponential growth is capped at 30 doublings to avoid
// overflowing time.Duration.
func (p BackoffPolicy) NextDelay(retry int8) time.Duration {
	if retry < 1 {
		retry = 1
	}

	switch p.Kind {
	case BackoffExponential:
		shift := retry - 1
		if shift > 30 {
			shift = 30
		}
		return p.Delay * time.Duration(int64(1)<<shift)
	default:
		return p.Delay
	}
}
