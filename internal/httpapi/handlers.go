package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/captionly/captionly/internal/billing"
	"github.com/captionly/captionly/internal/generation"
	"github.com/captionly/captionly/internal/usage"
)

// maxWebhookBody bounds webhook payload reads; provider events are small.
const maxWebhookBody = 1 << 20

// Handler holds the API endpoints over the core services.
type Handler struct {
	coordinator *generation.Coordinator
	ledger      *usage.Ledger
	subs        billing.Store
	checkout    *billing.CheckoutService
	reconciler  *billing.Reconciler
	log         *slog.Logger
}

// NewHandler creates the API handler set.
func NewHandler(
	coordinator *generation.Coordinator,
	ledger *usage.Ledger,
	subs billing.Store,
	checkout *billing.CheckoutService,
	reconciler *billing.Reconciler,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		coordinator: coordinator,
		ledger:      ledger,
		subs:        subs,
		checkout:    checkout,
		reconciler:  reconciler,
		log:         log,
	}
}

type generateRequest struct {
	ContentInput            string         `json:"contentInput"`
	ContextData             map[string]any `json:"contextData,omitempty"`
	SelectedContextItems    []string       `json:"selectedContextItems,omitempty"`
	Options                 map[string]any `json:"options,omitempty"`
	ParentGenerationBatchID string         `json:"parentGenerationBatchId,omitempty"`
}

type usagePayload struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	result, err := h.coordinator.Submit(r.Context(), id.UserID, generation.Request{
		ContentInput:            req.ContentInput,
		ContextData:             req.ContextData,
		SelectedContextItems:    req.SelectedContextItems,
		Options:                 req.Options,
		ParentGenerationBatchID: req.ParentGenerationBatchID,
	})
	if err != nil {
		switch {
		case errors.Is(err, generation.ErrEmptyInput):
			writeError(w, http.StatusBadRequest, "invalid_request", "contentInput is required")
		case errors.Is(err, generation.ErrBatchNotFound):
			writeError(w, http.StatusNotFound, "batch_not_found", "parent generation batch not found")
		case errors.Is(err, generation.ErrVariationDepth):
			writeError(w, http.StatusBadRequest, "invalid_request", "cannot create a variation of a variation")
		default:
			h.log.ErrorContext(r.Context(), "generation failed", "user_id", id.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "generation_failed", "caption generation failed")
		}
		return
	}

	if result.Denial != nil {
		h.writeLimitDenial(w, result.Denial)
		return
	}

	captions := make([]string, 0, len(result.Captions))
	captionIDs := make([]uuid.UUID, 0, len(result.Captions))
	for _, c := range result.Captions {
		captions = append(captions, c.Text)
		captionIDs = append(captionIDs, c.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"captions":          captions,
		"captionIds":        captionIDs,
		"generationBatchId": result.BatchID,
	})
}

// writeLimitDenial renders the structured 429. The field names are consumed
// by the client upsell UI and must stay stable.
func (h *Handler) writeLimitDenial(w http.ResponseWriter, d *usage.Decision) {
	body := map[string]any{
		"usage": usagePayload{Used: d.Used, Limit: d.Limit},
	}
	if d.RequiredPlan != "" {
		body["requiredPlan"] = d.RequiredPlan
	}

	if d.Kind == usage.KindVariation {
		body["error"] = "variation_limit_reached"
		body["message"] = "variation limit reached for this batch, upgrade your plan to continue"
		body["variationLimitReached"] = true
	} else {
		body["error"] = "limit_reached"
		body["message"] = "caption generation limit reached for this period, upgrade your plan to continue"
		body["limitReached"] = true
	}

	writeJSON(w, http.StatusTooManyRequests, body)
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	snapshot, err := h.ledger.Snapshot(r.Context(), id.UserID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "usage snapshot failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load usage")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"usage": map[string]any{
			"captionsUsed":  snapshot.Used,
			"captionsLimit": snapshot.Limit,
			"resetDate":     snapshot.ResetAt.UTC().Format(time.RFC3339),
		},
	})
}

func (h *Handler) handleSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	sub, err := h.subs.GetOrCreate(r.Context(), id.UserID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "subscription read failed", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load subscription")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan":             sub.Plan,
		"status":           sub.Status,
		"currentPeriodEnd": sub.CurrentPeriodEnd.UTC().Format(time.RFC3339),
	})
}

type checkoutRequest struct {
	PlanID       string `json:"planId"`
	BillingCycle string `json:"billingCycle"`
}

func (h *Handler) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}

	session, err := h.checkout.StartCheckout(r.Context(), id.UserID,
		billing.Plan(req.PlanID), billing.BillingCycle(req.BillingCycle), id.Email)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidPlan):
			writeError(w, http.StatusBadRequest, "invalid_plan", "planId must be pro or enterprise")
		case errors.Is(err, billing.ErrInvalidBillingCycle):
			writeError(w, http.StatusBadRequest, "invalid_billing_cycle", "billingCycle must be monthly or annual")
		default:
			h.log.ErrorContext(r.Context(), "checkout failed", "user_id", id.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to start checkout")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"url":       session.URL,
		"sessionId": session.SessionID,
	})
}

func (h *Handler) handlePortal(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	session, err := h.checkout.OpenPortal(r.Context(), id.UserID)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrNoBillingAccount), errors.Is(err, billing.ErrSubscriptionNotFound):
			writeError(w, http.StatusNotFound, "no_billing_account", "no billing account, complete checkout first")
		default:
			h.log.ErrorContext(r.Context(), "portal session failed", "user_id", id.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to open billing portal")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"url": session.URL})
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "failed to read request body")
		return
	}

	signature := r.Header.Get("Paddle-Signature")
	if signature == "" {
		writeError(w, http.StatusBadRequest, "missing_signature", "signature header is required")
		return
	}

	if err := h.reconciler.ProcessWebhook(r.Context(), payload, signature); err != nil {
		switch {
		case errors.Is(err, billing.ErrWebhookVerification):
			writeError(w, http.StatusBadRequest, "invalid_signature", "webhook signature verification failed")
		case errors.Is(err, billing.ErrMalformedEvent):
			writeError(w, http.StatusBadRequest, "malformed_event", "webhook payload is malformed")
		default:
			// Non-2xx makes the provider redeliver; reconciliation failures
			// must never be acknowledged silently.
			h.log.ErrorContext(r.Context(), "webhook reconciliation failed", "error", err)
			writeError(w, http.StatusInternalServerError, "reconciliation_failed", "event could not be processed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}

// HealthCheck verifies one dependency.
type HealthCheck func(ctx context.Context) error

func (h *Handler) handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = err.Error()
			} else {
				results[name] = "ok"
			}
		}
		writeJSON(w, status, map[string]any{"checks": results})
	}
}
