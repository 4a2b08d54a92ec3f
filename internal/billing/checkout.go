package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// CheckoutConfig holds redirect URLs and the provider price catalog.
type CheckoutConfig struct {
	SuccessURL string `env:"CHECKOUT_SUCCESS_URL,required"`
	CancelURL  string `env:"CHECKOUT_CANCEL_URL,required"`

	PriceProMonthly        string `env:"PADDLE_PRICE_PRO_MONTHLY,required"`
	PriceProAnnual         string `env:"PADDLE_PRICE_PRO_ANNUAL,required"`
	PriceEnterpriseMonthly string `env:"PADDLE_PRICE_ENTERPRISE_MONTHLY,required"`
	PriceEnterpriseAnnual  string `env:"PADDLE_PRICE_ENTERPRISE_ANNUAL,required"`
}

// PriceRef resolves the provider price id for a plan and billing cycle.
func (c CheckoutConfig) PriceRef(plan Plan, cycle BillingCycle) (string, error) {
	var ref string
	switch {
	case plan == PlanPro && cycle == CycleMonthly:
		ref = c.PriceProMonthly
	case plan == PlanPro && cycle == CycleAnnual:
		ref = c.PriceProAnnual
	case plan == PlanEnterprise && cycle == CycleMonthly:
		ref = c.PriceEnterpriseMonthly
	case plan == PlanEnterprise && cycle == CycleAnnual:
		ref = c.PriceEnterpriseAnnual
	}
	if ref == "" {
		return "", ErrNoPriceConfigured
	}
	return ref, nil
}

// CheckoutService opens provider-hosted payment flows, tagging them with
// enough metadata for the event reconciler to resolve them back to a user.
type CheckoutService struct {
	store    Store
	provider Provider
	cfg      CheckoutConfig
	log      *slog.Logger
}

// NewCheckoutService creates a checkout/portal session issuer.
func NewCheckoutService(store Store, provider Provider, cfg CheckoutConfig, log *slog.Logger) *CheckoutService {
	if log == nil {
		log = slog.Default()
	}
	return &CheckoutService{store: store, provider: provider, cfg: cfg, log: log}
}

// StartCheckout opens a hosted checkout session for a paid plan.
// A subscription row and a provider customer are created on first contact.
func (s *CheckoutService) StartCheckout(ctx context.Context, userID uuid.UUID, plan Plan, cycle BillingCycle, email string) (*CheckoutSession, error) {
	if !plan.Valid() || !plan.Paid() {
		return nil, ErrInvalidPlan
	}
	if !cycle.Valid() {
		return nil, ErrInvalidBillingCycle
	}

	priceRef, err := s.cfg.PriceRef(plan, cycle)
	if err != nil {
		return nil, err
	}

	sub, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	if sub.ExternalCustomerRef == "" {
		ref, err := s.provider.CreateCustomer(ctx, userID, email)
		if err != nil {
			return nil, err
		}
		if err := s.store.SetExternalCustomerRef(ctx, userID, ref); err != nil {
			return nil, err
		}
		sub.ExternalCustomerRef = ref
		s.log.InfoContext(ctx, "created billing customer", "user_id", userID, "customer_ref", ref)
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		PriceRef:     priceRef,
		UserID:       userID,
		CustomerRef:  sub.ExternalCustomerRef,
		Plan:         plan,
		BillingCycle: cycle,
		SuccessURL:   s.cfg.SuccessURL,
		CancelURL:    s.cfg.CancelURL,
	})
}

// OpenPortal returns a customer portal session for a user who has completed
// checkout before. Users without a provider customer get ErrNoBillingAccount.
func (s *CheckoutService) OpenPortal(ctx context.Context, userID uuid.UUID) (*PortalSession, error) {
	sub, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.ExternalCustomerRef == "" {
		return nil, ErrNoBillingAccount
	}

	return s.provider.CreatePortalSession(ctx, sub.ExternalCustomerRef, sub.ExternalSubscriptionRef)
}
