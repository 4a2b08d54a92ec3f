package billing

// Plan identifies a subscription plan.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Valid reports whether p is a known plan.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// Paid reports whether p is purchasable through the billing provider.
func (p Plan) Paid() bool {
	return p == PlanPro || p == PlanEnterprise
}

// Status mirrors the payment provider's subscription status vocabulary.
// The provider is the source of truth for status naming.
type Status string

const (
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// BillingCycle is the checkout billing frequency.
type BillingCycle string

const (
	CycleMonthly BillingCycle = "monthly"
	CycleAnnual  BillingCycle = "annual"
)

// Valid reports whether c is a known billing cycle.
func (c BillingCycle) Valid() bool {
	return c == CycleMonthly || c == CycleAnnual
}

// Unlimited marks a plan limit with no cap (-1 for SQL compatibility).
const Unlimited int64 = -1
