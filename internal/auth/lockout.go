package auth

import "time"

const (
	defaultLockoutThreshold = 10
	defaultLockoutWindow    = 6 * time.Hour
)

// LockoutState is the per-principal brute-force bookkeeping persisted on
// the credential record. The zero value is the clean state.
//
// Blocked is sticky: a successful login clears the failure counter but
// never unsets the flag. Unblocking is an operator decision, not part of
// the login flow.
type LockoutState struct {
	FailedAttempts int
	FirstFailedAt  *time.Time
	Blocked        bool
}

// Clean reports whether no failures are being counted.
func (s LockoutState) Clean() bool {
	return s.FailedAttempts == 0 && s.FirstFailedAt == nil
}

// LockoutPolicy drives the transitions: Threshold consecutive failures
// inside Window flip the state to blocked.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: defaultLockoutThreshold, Window: defaultLockoutWindow}
}

// RecordFailure returns the state after one more failed password check.
// The counter always increments. The first failure stamps the window
// start; later failures flip Blocked only when the updated count lands
// exactly on the threshold while still inside the window. Counts that
// race past the threshold do not retrigger the transition.
func (p LockoutPolicy) RecordFailure(s LockoutState, now time.Time) LockoutState {
	s.FailedAttempts++

	if s.FirstFailedAt == nil {
		stamp := now.UTC()
		s.FirstFailedAt = &stamp
		return s
	}

	if s.FailedAttempts == p.Threshold && now.Sub(*s.FirstFailedAt) < p.Window {
		s.Blocked = true
	}

	return s
}

// RecordSuccess clears the failure counter and window start. Blocked is
// left untouched.
func (p LockoutPolicy) RecordSuccess(s LockoutState) LockoutState {
	s.FailedAttempts = 0
	s.FirstFailedAt = nil
	return s
}
