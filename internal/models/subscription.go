package models

import "time"

// Subscription status constants. "expired" is computed at read time from
// ExpiresAt and is never written by a background transition.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusSuspended = "suspended"
	SubscriptionStatusExpired   = "expired"
)

// Subscription is the core issuance record.
//
// Credential is the UUID registered with the external panel; Token is the
// opaque UUID embedded in the user-facing fetch URL. They are never the same
// value: the panel credential must not leak through a shareable link.
type Subscription struct {
	ID           string
	UserID       string
	PlanID       string
	Credential   string
	Token        string
	Status       string
	TrafficTotal int64
	TrafficUsed  int64
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the subscription has lapsed by time.
func (s *Subscription) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsUsable reports whether the subscription can serve a fetch request.
// Re-checked at every read, not cached.
func (s *Subscription) IsUsable(now time.Time) bool {
	return s.Status == SubscriptionStatusActive && !s.IsExpired(now)
}

// EffectiveStatus maps the stored status plus the clock to what the user
// should see.
func (s *Subscription) EffectiveStatus(now time.Time) string {
	if s.Status == SubscriptionStatusActive && s.IsExpired(now) {
		return SubscriptionStatusExpired
	}
	return s.Status
}
