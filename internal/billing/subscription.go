package billing

import (
	"time"

	"github.com/google/uuid"
)

// DefaultPeriod is the billing period length applied to free subscriptions
// and to lazy rollover when no provider period is available.
const DefaultPeriod = 30 * 24 * time.Hour

// Subscription is the durable billing record, one row per user.
// A record with no ExternalSubscriptionRef is always on the free plan.
type Subscription struct {
	UserID                  uuid.UUID
	Plan                    Plan
	Status                  Status
	ExternalCustomerRef     string // provider customer id, empty until first checkout
	ExternalSubscriptionRef string // provider subscription id, empty for free plans
	CurrentPeriodEnd        time.Time
	GenerationsUsed         int64
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewDefaultSubscription returns the lazily-created free subscription for a
// user who has never checked out.
func NewDefaultSubscription(userID uuid.UUID, now time.Time) *Subscription {
	now = now.UTC()
	return &Subscription{
		UserID:           userID,
		Plan:             PlanFree,
		Status:           StatusActive,
		CurrentPeriodEnd: now.Add(DefaultPeriod),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// PeriodExpired reports whether the billing period has elapsed at the given time.
func (s *Subscription) PeriodExpired(now time.Time) bool {
	return now.After(s.CurrentPeriodEnd)
}

// IsActive reports whether the subscription is in good standing.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}
