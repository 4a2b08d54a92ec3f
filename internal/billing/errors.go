package billing

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")

	ErrInvalidPlan         = errors.New("billing: invalid plan id")
	ErrInvalidBillingCycle = errors.New("billing: invalid billing cycle")
	ErrNoBillingAccount    = errors.New("billing: user has no billing account")
	ErrNoPriceConfigured   = errors.New("billing: no price configured for plan and cycle")

	ErrWebhookVerification = errors.New("billing: webhook signature verification failed")
	ErrMalformedEvent      = errors.New("billing: malformed webhook event")
	ErrUnresolvableEvent   = errors.New("billing: cannot resolve event to a user")
	ErrInvalidPeriodEnd    = errors.New("billing: missing or invalid period end on event")

	ErrProviderFailure = errors.New("billing: provider request failed")
)
