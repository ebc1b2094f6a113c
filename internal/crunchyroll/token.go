package crunchyroll

import "time"

// SafetyMargin is subtracted from the expiry so a token about to lapse is
// never attached to an outgoing request.
const SafetyMargin = 3 * time.Second

// TokenLifecycle tracks when the current access token expires.
//
// It holds no lock of its own; the Client serialises access to it.
type TokenLifecycle struct {
	now       func() time.Time
	lifetime  time.Duration
	expiresAt time.Time
}

// NewTokenLifecycle returns a lifecycle that reads time from now, or the wall
// clock when now is nil. A fresh lifecycle is never valid.
func NewTokenLifecycle(now func() time.Time) *TokenLifecycle {
	if now == nil {
		now = time.Now
	}
	return &TokenLifecycle{now: now}
}

// RecordIssuance stores a new expiry of now + lifetime. Negative lifetimes are
// treated as zero.
func (l *TokenLifecycle) RecordIssuance(lifetime time.Duration) {
	if lifetime < 0 {
		lifetime = 0
	}
	l.lifetime = lifetime
	l.expiresAt = l.now().Add(lifetime)
}

// IsValid reports whether now < expiresAt - SafetyMargin.
func (l *TokenLifecycle) IsValid() bool {
	if l.expiresAt.IsZero() {
		return false
	}
	return l.now().Before(l.expiresAt.Add(-SafetyMargin))
}

// ExpiresAt returns the recorded expiry, or the zero time before any issuance.
func (l *TokenLifecycle) ExpiresAt() time.Time {
	return l.expiresAt
}

// Lifetime returns the lifetime passed to the most recent issuance.
func (l *TokenLifecycle) Lifetime() time.Duration {
	return l.lifetime
}

// Remaining returns the usable time left before IsValid turns false.
func (l *TokenLifecycle) Remaining() time.Duration {
	if l.expiresAt.IsZero() {
		return 0
	}
	left := l.expiresAt.Add(-SafetyMargin).Sub(l.now())
	if left < 0 {
		return 0
	}
	return left
}
