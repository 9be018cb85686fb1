package entity

import "time"

// RemainingUnknown marks a remote-call budget that has not been reported yet.
const RemainingUnknown = -1

// QuotaSnapshot is the process-wide remote-call budget state.
// A zero RateLimitedUntil means "unknown / not limited".
type QuotaSnapshot struct {
	RateLimitedUntil time.Time
	Remaining        int
	UpdatedAt        time.Time
}

// UnknownQuota returns the snapshot used before anything has been observed.
func UnknownQuota() QuotaSnapshot {
	return QuotaSnapshot{Remaining: RemainingUnknown}
}

// IsRateLimited reports whether remote calls are blocked at now.
func (q QuotaSnapshot) IsRateLimited(now time.Time) bool {
	return !q.RateLimitedUntil.IsZero() && now.Before(q.RateLimitedUntil)
}

// RemainingKnown reports whether a remaining-calls figure has been observed.
func (q QuotaSnapshot) RemainingKnown() bool {
	return q.Remaining != RemainingUnknown
}
