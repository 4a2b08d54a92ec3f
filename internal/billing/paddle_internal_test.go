package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodEndFromPayload(t *testing.T) {
	epoch := float64(1767225600) // 2026-01-01T00:00:00Z
	want := time.Unix(int64(epoch), 0).UTC()

	tests := []struct {
		name string
		data map[string]any
		want time.Time
	}{
		{
			name: "epoch seconds at top level",
			data: map[string]any{"current_period_end": epoch},
			want: want,
		},
		{
			name: "rfc3339 in billing period",
			data: map[string]any{
				"current_billing_period": map[string]any{"ends_at": "2026-01-01T00:00:00Z"},
			},
			want: want,
		},
		{
			name: "epoch under first line item",
			data: map[string]any{
				"items": []any{map[string]any{"current_period_end": epoch}},
			},
			want: want,
		},
		{
			name: "next billed at under first line item",
			data: map[string]any{
				"items": []any{map[string]any{"next_billed_at": "2026-01-01T00:00:00Z"}},
			},
			want: want,
		},
		{
			name: "top level wins over item",
			data: map[string]any{
				"current_period_end": epoch,
				"items":              []any{map[string]any{"current_period_end": float64(1)}},
			},
			want: want,
		},
		{
			name: "missing everywhere",
			data: map[string]any{"id": "sub_1"},
			want: time.Time{},
		},
		{
			name: "garbage values",
			data: map[string]any{
				"current_period_end": "soon",
				"items":              []any{map[string]any{"next_billed_at": float64(-5)}},
			},
			want: time.Time{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, periodEndFromPayload(tt.data))
		})
	}
}

func TestMapPaddleEventType(t *testing.T) {
	tests := []struct {
		provider string
		want     EventType
	}{
		{"transaction.completed", EventCheckoutCompleted},
		{"subscription.created", EventSubscriptionCreated},
		{"subscription.updated", EventSubscriptionUpdated},
		{"subscription.activated", EventSubscriptionUpdated},
		{"subscription.resumed", EventSubscriptionUpdated},
		{"subscription.canceled", EventSubscriptionDeleted},
		{"transaction.payment_succeeded", EventPaymentSucceeded},
		{"transaction.payment_failed", EventPaymentFailed},
		{"transaction.ready", EventIgnored},
		{"address.created", EventIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			assert.Equal(t, tt.want, mapPaddleEventType(tt.provider))
		})
	}
}

func TestMapPaddleStatus(t *testing.T) {
	assert.Equal(t, StatusActive, mapPaddleStatus("active"))
	assert.Equal(t, StatusActive, mapPaddleStatus("trialing"))
	assert.Equal(t, StatusPastDue, mapPaddleStatus("past_due"))
	assert.Equal(t, StatusCanceled, mapPaddleStatus("canceled"))
	assert.Equal(t, StatusCanceled, mapPaddleStatus("paused"))
	assert.Equal(t, StatusCanceled, mapPaddleStatus("expired"))
}
