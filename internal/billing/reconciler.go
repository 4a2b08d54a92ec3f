package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Reconciler applies verified billing events to the subscription store.
//
// Events are treated as full-state upserts keyed by the external subscription
// ref (or by user id metadata on first contact), so redelivery is safe:
// applying the same event twice yields the same row. Out-of-order delivery of
// semantically different events is not guarded against; a stale status can
// overwrite a fresher one. That matches the provider's non-versioned event
// stream and is a known limitation.
type Reconciler struct {
	store    Store
	provider Provider
	log      *slog.Logger
}

// NewReconciler creates a billing event reconciler.
func NewReconciler(store Store, provider Provider, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, provider: provider, log: log}
}

// ProcessWebhook verifies, parses, and reconciles a raw webhook delivery.
//
// Verification and parse failures return ErrWebhookVerification or
// ErrMalformedEvent (reject, no state touched, no retry). Any other failure
// means the event could not be applied and must be retried by the provider;
// swallowing it would desync billing state permanently.
func (r *Reconciler) ProcessWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := r.provider.ParseWebhook(ctx, payload, signature)
	if err != nil {
		return err
	}
	return r.Reconcile(ctx, event)
}

// Reconcile applies a single normalized event to the store.
func (r *Reconciler) Reconcile(ctx context.Context, event *Event) error {
	log := r.log.With(
		"event_type", string(event.Type),
		"provider_event", event.ProviderEvent,
		"event_id", event.EventID,
		"subscription_ref", event.SubscriptionRef,
	)

	var err error
	switch event.Type {
	case EventCheckoutCompleted:
		err = r.applyCheckoutCompleted(ctx, event)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		err = r.applySubscriptionChange(ctx, event)
	case EventSubscriptionDeleted:
		err = r.applySubscriptionDeleted(ctx, event)
	case EventPaymentSucceeded:
		err = r.applyPaymentOutcome(ctx, event, StatusActive, true)
	case EventPaymentFailed:
		err = r.applyPaymentOutcome(ctx, event, StatusPastDue, false)
	case EventIgnored:
		log.DebugContext(ctx, "ignoring unhandled billing event")
		return nil
	default:
		log.DebugContext(ctx, "ignoring unknown billing event type")
		return nil
	}

	if err != nil {
		log.ErrorContext(ctx, "billing event reconciliation failed", "error", err)
		return err
	}
	log.InfoContext(ctx, "billing event reconciled")
	return nil
}

// applyCheckoutCompleted binds the provider subscription to the user and
// grants the first paid period with a fresh quota.
func (r *Reconciler) applyCheckoutCompleted(ctx context.Context, event *Event) error {
	if event.SubscriptionRef == "" {
		return errors.Join(ErrMalformedEvent, errors.New("checkout event has no subscription ref"))
	}
	if !event.Plan.Valid() || !event.Plan.Paid() {
		return errors.Join(ErrMalformedEvent, fmt.Errorf("checkout event has invalid plan %q", event.Plan))
	}

	sub, err := r.resolveSubscription(ctx, event)
	if err != nil {
		return err
	}

	// Checkout payloads carry the transaction, not the subscription, so the
	// period boundary comes from the provider's full subscription object.
	ext, err := r.provider.FetchSubscription(ctx, event.SubscriptionRef)
	if err != nil {
		return err
	}

	sub.Plan = event.Plan
	sub.Status = ext.Status
	sub.ExternalSubscriptionRef = event.SubscriptionRef
	if ext.CustomerRef != "" {
		sub.ExternalCustomerRef = ext.CustomerRef
	} else if event.CustomerRef != "" {
		sub.ExternalCustomerRef = event.CustomerRef
	}
	sub.CurrentPeriodEnd = ext.PeriodEnd
	sub.GenerationsUsed = 0

	return r.store.Upsert(ctx, sub)
}

// applySubscriptionChange upserts plan/status/period from a subscription
// lifecycle event. The usage counter is deliberately untouched: only checkout
// and successful payment grant a fresh quota.
func (r *Reconciler) applySubscriptionChange(ctx context.Context, event *Event) error {
	sub, err := r.resolveSubscription(ctx, event)
	if err != nil {
		return err
	}

	periodEnd, err := r.resolvePeriodEnd(ctx, event)
	if err != nil {
		return err
	}

	if event.Plan.Valid() {
		sub.Plan = event.Plan
	}
	if event.Status != "" {
		sub.Status = event.Status
	}
	if event.SubscriptionRef != "" {
		sub.ExternalSubscriptionRef = event.SubscriptionRef
	}
	if event.CustomerRef != "" {
		sub.ExternalCustomerRef = event.CustomerRef
	}
	sub.CurrentPeriodEnd = periodEnd

	return r.store.Upsert(ctx, sub)
}

// applySubscriptionDeleted drops the user back to the free plan.
func (r *Reconciler) applySubscriptionDeleted(ctx context.Context, event *Event) error {
	sub, err := r.resolveSubscription(ctx, event)
	if err != nil {
		return err
	}

	sub.Plan = PlanFree
	sub.Status = StatusCanceled
	sub.ExternalSubscriptionRef = ""

	return r.store.Upsert(ctx, sub)
}

// applyPaymentOutcome handles invoice payment results. A successful payment
// is a renewal: it refreshes the period boundary and resets the quota.
// A failure marks the subscription past due without touching usage.
func (r *Reconciler) applyPaymentOutcome(ctx context.Context, event *Event, status Status, resetUsage bool) error {
	if event.SubscriptionRef == "" {
		return errors.Join(ErrMalformedEvent, errors.New("payment event has no subscription ref"))
	}

	sub, err := r.resolveSubscription(ctx, event)
	if err != nil {
		return err
	}

	periodEnd, err := r.resolvePeriodEnd(ctx, event)
	if err != nil {
		return err
	}

	sub.Status = status
	sub.CurrentPeriodEnd = periodEnd
	if resetUsage {
		sub.GenerationsUsed = 0
	}

	return r.store.Upsert(ctx, sub)
}

// resolveSubscription finds the record an event targets: user id metadata
// first, then the stored external subscription ref. An event that matches
// neither cannot be reconciled and fails loudly so the provider retries.
func (r *Reconciler) resolveSubscription(ctx context.Context, event *Event) (*Subscription, error) {
	if event.UserID != uuid.Nil {
		return r.store.GetOrCreate(ctx, event.UserID)
	}

	sub, err := r.store.GetByExternalSubscriptionRef(ctx, event.SubscriptionRef)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, errors.Join(ErrUnresolvableEvent,
				fmt.Errorf("no user metadata and no subscription matches ref %q", event.SubscriptionRef))
		}
		return nil, err
	}
	return sub, nil
}

// resolvePeriodEnd returns the authoritative period boundary for an event,
// falling back to a provider fetch when the payload carried none. There is no
// "default to now" path: an invalid period end corrupts usage rollover.
func (r *Reconciler) resolvePeriodEnd(ctx context.Context, event *Event) (time.Time, error) {
	if !event.PeriodEnd.IsZero() {
		return event.PeriodEnd, nil
	}
	if event.SubscriptionRef != "" {
		ext, err := r.provider.FetchSubscription(ctx, event.SubscriptionRef)
		if err != nil {
			return time.Time{}, err
		}
		if !ext.PeriodEnd.IsZero() {
			return ext.PeriodEnd, nil
		}
	}
	return time.Time{}, ErrInvalidPeriodEnd
}
