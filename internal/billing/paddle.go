package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/google/uuid"
)

// PaddleConfig holds the Paddle provider configuration.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY,required"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

// PaddleProvider implements Provider on the official Paddle SDK.
type PaddleProvider struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle billing provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("billing: paddle API key is required")
	}
	if cfg.WebhookSecret == "" {
		return nil, errors.New("billing: paddle webhook secret is required")
	}

	var client *paddle.SDK
	var err error
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey)
	case "production", "":
		client, err = paddle.New(cfg.APIKey)
	default:
		return nil, fmt.Errorf("billing: invalid paddle environment: %s", cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("billing: failed to create paddle client: %w", err)
	}

	return &PaddleProvider{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

func (p *PaddleProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	customer, err := p.client.CustomersClient.CreateCustomer(ctx, &paddle.CreateCustomerRequest{
		Email: email,
		CustomData: paddle.CustomData{
			"user_id": userID.String(),
		},
	})
	if err != nil {
		return "", errors.Join(ErrProviderFailure, err)
	}
	return customer.ID, nil
}

func (p *PaddleProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceRef == "" {
		return nil, ErrNoPriceConfigured
	}

	item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
		PriceID:  req.PriceRef,
		Quantity: 1,
	})

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{*item},
		// Echoed back on every webhook event for this subscription; this is
		// how the event processor resolves events to a user.
		CustomData: paddle.CustomData{
			"user_id":       req.UserID.String(),
			"plan_id":       string(req.Plan),
			"billing_cycle": string(req.BillingCycle),
		},
	}
	if req.CustomerRef != "" {
		txReq.CustomerID = paddle.PtrTo(req.CustomerRef)
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{
			URL: paddle.PtrTo(req.SuccessURL),
		}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, errors.Join(ErrProviderFailure, err)
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
		return nil, errors.Join(ErrProviderFailure, errors.New("no checkout URL returned"))
	}

	return &CheckoutSession{
		URL:       *tx.Checkout.URL,
		SessionID: tx.ID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *PaddleProvider) CreatePortalSession(ctx context.Context, customerRef, subscriptionRef string) (*PortalSession, error) {
	if customerRef == "" {
		return nil, ErrNoBillingAccount
	}

	req := &paddle.CreateCustomerPortalSessionRequest{
		CustomerID: customerRef,
	}
	if subscriptionRef != "" {
		req.SubscriptionIDs = []string{subscriptionRef}
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrProviderFailure, err)
	}
	if session.URLs.General.Overview == "" {
		return nil, errors.Join(ErrProviderFailure, errors.New("no portal URL returned"))
	}

	return &PortalSession{
		URL:       session.URLs.General.Overview,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

func (p *PaddleProvider) FetchSubscription(ctx context.Context, subscriptionRef string) (*ProviderSubscription, error) {
	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
		SubscriptionID: subscriptionRef,
	})
	if err != nil {
		return nil, errors.Join(ErrProviderFailure, err)
	}

	out := &ProviderSubscription{
		Ref:         sub.ID,
		CustomerRef: sub.CustomerID,
		Status:      mapPaddleStatus(string(sub.Status)),
	}
	if sub.CurrentBillingPeriod != nil {
		if endsAt, err := time.Parse(time.RFC3339, sub.CurrentBillingPeriod.EndsAt); err == nil {
			out.PeriodEnd = endsAt.UTC()
		}
	}
	if out.PeriodEnd.IsZero() {
		return nil, ErrInvalidPeriodEnd
	}
	return out, nil
}

// ParseWebhook verifies the Paddle signature and normalizes the event.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrWebhookVerification, err)
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrWebhookVerification, err)
	}
	if !valid {
		return nil, ErrWebhookVerification
	}

	var raw struct {
		EventID   string         `json:"event_id"`
		EventType string         `json:"event_type"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	if raw.EventType == "" || raw.Data == nil {
		return nil, errors.Join(ErrMalformedEvent, errors.New("missing event_type or data"))
	}

	event := &Event{
		Type:          mapPaddleEventType(raw.EventType),
		ProviderEvent: raw.EventType,
		EventID:       raw.EventID,
		Raw:           raw.Data,
	}

	if status, ok := raw.Data["status"].(string); ok {
		event.Status = mapPaddleStatus(status)
	}
	if customerRef, ok := raw.Data["customer_id"].(string); ok {
		event.CustomerRef = customerRef
	}

	// Subscription events carry their own id; transaction events reference
	// the subscription they belong to.
	if strings.HasPrefix(raw.EventType, "subscription.") {
		if id, ok := raw.Data["id"].(string); ok {
			event.SubscriptionRef = id
		}
	} else if subID, ok := raw.Data["subscription_id"].(string); ok {
		event.SubscriptionRef = subID
	}

	if custom, ok := raw.Data["custom_data"].(map[string]any); ok {
		if rawID, ok := custom["user_id"].(string); ok {
			if id, err := uuid.Parse(rawID); err == nil {
				event.UserID = id
			}
		}
		if planID, ok := custom["plan_id"].(string); ok {
			event.Plan = Plan(planID)
		}
		if cycle, ok := custom["billing_cycle"].(string); ok {
			event.BillingCycle = BillingCycle(cycle)
		}
	}

	event.PeriodEnd = periodEndFromPayload(raw.Data)

	return event, nil
}

// periodEndFromPayload probes the two locations the period end appears in
// depending on provider API version: the subscription top level, then the
// first line item. Returns zero time when neither yields a valid timestamp;
// the event processor treats that as a hard failure for events that need it
// rather than defaulting to "now", since a bad period end corrupts rollover.
func periodEndFromPayload(data map[string]any) time.Time {
	if ts := parseTimestamp(data["current_period_end"]); !ts.IsZero() {
		return ts
	}
	if period, ok := data["current_billing_period"].(map[string]any); ok {
		if ts := parseTimestamp(period["ends_at"]); !ts.IsZero() {
			return ts
		}
	}
	if items, ok := data["items"].([]any); ok && len(items) > 0 {
		if item, ok := items[0].(map[string]any); ok {
			if ts := parseTimestamp(item["current_period_end"]); !ts.IsZero() {
				return ts
			}
			if ts := parseTimestamp(item["next_billed_at"]); !ts.IsZero() {
				return ts
			}
		}
	}
	return time.Time{}
}

// parseTimestamp accepts epoch seconds (JSON numbers decode as float64) or an
// RFC3339 string.
func parseTimestamp(v any) time.Time {
	switch ts := v.(type) {
	case float64:
		if ts <= 0 {
			return time.Time{}
		}
		return time.Unix(int64(ts), 0).UTC()
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func mapPaddleEventType(providerEvent string) EventType {
	switch providerEvent {
	case "transaction.completed":
		return EventCheckoutCompleted
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.activated", "subscription.resumed":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionDeleted
	case "transaction.payment_succeeded":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventIgnored
	}
}

func mapPaddleStatus(providerStatus string) Status {
	switch strings.ToLower(providerStatus) {
	case "active", "trialing":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled", "paused", "expired":
		return StatusCanceled
	default:
		return Status(providerStatus)
	}
}
