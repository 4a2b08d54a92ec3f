package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provider is the payment provider integration surface. The provider hosts
// checkout and the customer portal, so no card data ever touches this service.
type Provider interface {
	// CreateCustomer registers the user with the provider and returns the
	// provider's customer id.
	CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error)

	// CreateCheckoutSession opens a hosted checkout flow. The request
	// metadata (user id, plan, cycle) is echoed back on webhook events and is
	// the primary channel for resolving them to a user.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// CreatePortalSession returns a pre-authenticated customer portal link.
	CreatePortalSession(ctx context.Context, customerRef, subscriptionRef string) (*PortalSession, error)

	// ParseWebhook verifies the event signature against the shared secret and
	// normalizes the payload. Returns ErrWebhookVerification before touching
	// the payload when the signature does not match, and ErrMalformedEvent
	// for payloads that verify but do not parse.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)

	// FetchSubscription retrieves the provider's current view of a
	// subscription, used when an event omits the billing period.
	FetchSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error)
}

// CheckoutRequest describes a hosted checkout session to open.
type CheckoutRequest struct {
	PriceRef     string // provider price id for the plan+cycle
	UserID       uuid.UUID
	CustomerRef  string
	Plan         Plan
	BillingCycle BillingCycle
	SuccessURL   string
	CancelURL    string
}

// CheckoutSession is an open hosted checkout flow.
type CheckoutSession struct {
	URL       string
	SessionID string
	ExpiresAt time.Time
}

// PortalSession is a pre-authenticated customer portal link.
type PortalSession struct {
	URL       string
	ExpiresAt time.Time
}

// ProviderSubscription is the provider's view of a subscription.
type ProviderSubscription struct {
	Ref         string
	CustomerRef string
	Status      Status
	PeriodEnd   time.Time
}

// EventType is the normalized billing event kind.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout_completed"
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventPaymentFailed       EventType = "payment_failed"
	EventIgnored             EventType = "ignored"
)

// Event is a normalized, verified billing event.
// UserID is zero when the provider metadata carried none; reconciliation then
// falls back to SubscriptionRef lookup.
type Event struct {
	Type            EventType
	ProviderEvent   string
	EventID         string
	SubscriptionRef string
	CustomerRef     string
	UserID          uuid.UUID
	Plan            Plan
	BillingCycle    BillingCycle
	Status          Status
	PeriodEnd       time.Time // zero when absent from the payload
	Raw             map[string]any
}
