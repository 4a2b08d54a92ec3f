package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/captionly/captionly/internal/billing"
	"github.com/captionly/captionly/internal/generation"
	"github.com/captionly/captionly/internal/httpapi"
	"github.com/captionly/captionly/internal/usage"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCustomer(ctx context.Context, userID uuid.UUID, email string) (string, error) {
	args := m.Called(ctx, userID, email)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.CheckoutSession), args.Error(1)
}

func (m *mockProvider) CreatePortalSession(ctx context.Context, customerRef, subscriptionRef string) (*billing.PortalSession, error) {
	args := m.Called(ctx, customerRef, subscriptionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PortalSession), args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Event), args.Error(1)
}

func (m *mockProvider) FetchSubscription(ctx context.Context, subscriptionRef string) (*billing.ProviderSubscription, error) {
	args := m.Called(ctx, subscriptionRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ProviderSubscription), args.Error(1)
}

type fixedGenerator struct {
	captions []string
	err      error
}

func (g *fixedGenerator) Generate(context.Context, generation.Request) ([]string, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.captions, nil
}

type testAPI struct {
	handler  http.Handler
	subs     *billing.MemoryStore
	provider *mockProvider
	userID   uuid.UUID
}

func newTestAPI(t *testing.T, gen generation.Generator) *testAPI {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	subs := billing.NewMemoryStore()
	captions := generation.NewMemoryCaptionStore()
	ledger := usage.NewLedger(subs, captions.CountDistinctVariationBatches)
	coordinator := generation.NewCoordinator(ledger, gen, captions, log)

	provider := new(mockProvider)
	checkoutCfg := billing.CheckoutConfig{
		SuccessURL:             "https://app.example.com/billing/success",
		CancelURL:              "https://app.example.com/billing",
		PriceProMonthly:        "pri_pro_m",
		PriceProAnnual:         "pri_pro_a",
		PriceEnterpriseMonthly: "pri_ent_m",
		PriceEnterpriseAnnual:  "pri_ent_a",
	}
	checkout := billing.NewCheckoutService(subs, provider, checkoutCfg, log)
	reconciler := billing.NewReconciler(subs, provider, log)

	h := httpapi.NewHandler(coordinator, ledger, subs, checkout, reconciler, log)
	return &testAPI{
		handler:  httpapi.Router(h, log, httpapi.RouterOptions{}),
		subs:     subs,
		provider: provider,
		userID:   uuid.New(),
	}
}

func (a *testAPI) request(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("X-User-ID", a.userID.String())
		req.Header.Set("X-User-Email", "user@example.com")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestGenerate_Success(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"first", "second"}})

	rec := api.request(t, http.MethodPost, "/api/generate",
		map[string]any{"contentInput": "coffee shop interior"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["generationBatchId"])
	assert.Len(t, body["captions"], 2)
	assert.Len(t, body["captionIds"], 2)
}

func TestGenerate_RequiresAuth(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	rec := api.request(t, http.MethodPost, "/api/generate",
		map[string]any{"contentInput": "anything"}, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, rec)["error"])
}

func TestGenerate_InvalidUserIDHeader(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	req := httptest.NewRequest(http.MethodPost, "/api/usage", nil)
	req.Header.Set("X-User-ID", "not-a-uuid")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerate_MissingContentInput(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	rec := api.request(t, http.MethodPost, "/api/generate", map[string]any{}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
}

func TestGenerate_LimitReachedPayload(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	require.NoError(t, api.subs.Upsert(context.Background(), &billing.Subscription{
		UserID:           api.userID,
		Plan:             billing.PlanFree,
		Status:           billing.StatusActive,
		CurrentPeriodEnd: time.Now().Add(24 * time.Hour),
		GenerationsUsed:  10,
	}))

	rec := api.request(t, http.MethodPost, "/api/generate",
		map[string]any{"contentInput": "anything"}, true)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "limit_reached", body["error"])
	assert.Equal(t, true, body["limitReached"])
	assert.Equal(t, "pro", body["requiredPlan"])

	u, ok := body["usage"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 10, u["used"])
	assert.EqualValues(t, 10, u["limit"])
}

func TestGenerate_VariationLimitPayload(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	require.NoError(t, api.subs.Upsert(context.Background(), &billing.Subscription{
		UserID:           api.userID,
		Plan:             billing.PlanFree,
		Status:           billing.StatusActive,
		CurrentPeriodEnd: time.Now().Add(24 * time.Hour),
	}))

	root := api.request(t, http.MethodPost, "/api/generate",
		map[string]any{"contentInput": "hiking trail"}, true)
	require.Equal(t, http.StatusOK, root.Code)
	batchID := decodeBody(t, root)["generationBatchId"].(string)

	for range 2 {
		rec := api.request(t, http.MethodPost, "/api/generate",
			map[string]any{"contentInput": "hiking trail", "parentGenerationBatchId": batchID}, true)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := api.request(t, http.MethodPost, "/api/generate",
		map[string]any{"contentInput": "hiking trail", "parentGenerationBatchId": batchID}, true)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "variation_limit_reached", body["error"])
	assert.Equal(t, true, body["variationLimitReached"])
	assert.Nil(t, body["limitReached"])
}

func TestGenerate_UnknownParentBatch(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	rec := api.request(t, http.MethodPost, "/api/generate",
		map[string]any{"contentInput": "anything", "parentGenerationBatchId": "nope"}, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "batch_not_found", decodeBody(t, rec)["error"])
}

func TestGenerate_BackendFailure(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{err: errors.New("upstream timeout")})

	rec := api.request(t, http.MethodPost, "/api/generate",
		map[string]any{"contentInput": "anything"}, true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "generation_failed", decodeBody(t, rec)["error"])
}

func TestUsage_Payload(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	periodEnd := time.Now().Add(20 * 24 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, api.subs.Upsert(context.Background(), &billing.Subscription{
		UserID:           api.userID,
		Plan:             billing.PlanPro,
		Status:           billing.StatusActive,
		CurrentPeriodEnd: periodEnd,
		GenerationsUsed:  37,
	}))

	rec := api.request(t, http.MethodGet, "/api/usage", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	u, ok := body["usage"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 37, u["captionsUsed"])
	assert.EqualValues(t, 100, u["captionsLimit"])
	assert.Equal(t, periodEnd.Format(time.RFC3339), u["resetDate"])
}

func TestUsage_FirstContactCreatesFreeRecord(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	rec := api.request(t, http.MethodGet, "/api/usage", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	u := decodeBody(t, rec)["usage"].(map[string]any)
	assert.EqualValues(t, 0, u["captionsUsed"])
	assert.EqualValues(t, 10, u["captionsLimit"])
}

func TestSubscription_Payload(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	require.NoError(t, api.subs.Upsert(context.Background(), &billing.Subscription{
		UserID:           api.userID,
		Plan:             billing.PlanPro,
		Status:           billing.StatusPastDue,
		CurrentPeriodEnd: time.Now().Add(24 * time.Hour),
	}))

	rec := api.request(t, http.MethodGet, "/billing/subscription", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "pro", body["plan"])
	assert.Equal(t, "past_due", body["status"])
	assert.NotEmpty(t, body["currentPeriodEnd"])
}

func TestCheckout_InvalidPlan(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	rec := api.request(t, http.MethodPost, "/billing/checkout",
		map[string]any{"planId": "free", "billingCycle": "monthly"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_plan", decodeBody(t, rec)["error"])
}

func TestCheckout_InvalidCycle(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	rec := api.request(t, http.MethodPost, "/billing/checkout",
		map[string]any{"planId": "pro", "billingCycle": "weekly"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_billing_cycle", decodeBody(t, rec)["error"])
}

func TestCheckout_ReturnsSessionURL(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	api.provider.On("CreateCustomer", mock.Anything, api.userID, "user@example.com").
		Return("ctm_123", nil)
	api.provider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req billing.CheckoutRequest) bool {
		return req.PriceRef == "pri_pro_m" && req.Plan == billing.PlanPro
	})).Return(&billing.CheckoutSession{URL: "https://pay.example.com/txn_1", SessionID: "txn_1"}, nil)

	rec := api.request(t, http.MethodPost, "/billing/checkout",
		map[string]any{"planId": "pro", "billingCycle": "monthly"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "https://pay.example.com/txn_1", body["url"])
	assert.Equal(t, "txn_1", body["sessionId"])
	api.provider.AssertExpectations(t)
}

func TestPortal_NoBillingAccount(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	rec := api.request(t, http.MethodPost, "/billing/portal", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_billing_account", decodeBody(t, rec)["error"])
}

func TestWebhook_MissingSignature(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle",
		bytes.NewBufferString(`{"event_type":"subscription.updated"}`))
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_signature", decodeBody(t, rec)["error"])
}

func TestWebhook_BadSignature(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	api.provider.On("ParseWebhook", mock.Anything, mock.Anything, "ts=1;h1=bad").
		Return(nil, billing.ErrWebhookVerification)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle",
		bytes.NewBufferString(`{"event_type":"subscription.updated"}`))
	req.Header.Set("Paddle-Signature", "ts=1;h1=bad")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decodeBody(t, rec)["error"])
}

func TestWebhook_ReconcileFailureTriggersRedelivery(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	api.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
		Return(&billing.Event{
			Type:            billing.EventSubscriptionUpdated,
			SubscriptionRef: "sub_unknown",
			Status:          billing.StatusActive,
			PeriodEnd:       time.Now().Add(30 * 24 * time.Hour),
		}, nil)

	// No subscription carries sub_unknown, so reconciliation cannot resolve
	// the event to a user and must fail loudly.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle",
		bytes.NewBufferString(`{"event_type":"subscription.updated"}`))
	req.Header.Set("Paddle-Signature", "ts=1;h1=ok")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "reconciliation_failed", decodeBody(t, rec)["error"])
}

func TestWebhook_Acknowledged(t *testing.T) {
	api := newTestAPI(t, &fixedGenerator{captions: []string{"x"}})
	api.provider.On("ParseWebhook", mock.Anything, mock.Anything, mock.Anything).
		Return(&billing.Event{Type: billing.EventIgnored, ProviderEvent: "customer.updated"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paddle",
		bytes.NewBufferString(`{"event_type":"customer.updated"}`))
	req.Header.Set("Paddle-Signature", "ts=1;h1=ok")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["received"])
}

func TestHealth_ReportsChecks(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	subs := billing.NewMemoryStore()
	captions := generation.NewMemoryCaptionStore()
	ledger := usage.NewLedger(subs, captions.CountDistinctVariationBatches)
	coordinator := generation.NewCoordinator(ledger, &fixedGenerator{captions: []string{"x"}}, captions, log)
	h := httpapi.NewHandler(coordinator, ledger, subs, nil, nil, log)

	router := httpapi.Router(h, log, httpapi.RouterOptions{
		HealthChecks: map[string]httpapi.HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	checks := decodeBody(t, rec)["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])
}
