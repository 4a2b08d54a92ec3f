package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence interface for subscription records.
// One logical record per user; UserID is the primary key. All mutation paths
// must be atomic at the storage layer since handlers are stateless and run
// concurrently across processes.
type Store interface {
	// Get retrieves the subscription for a user.
	// Returns ErrSubscriptionNotFound if none exists.
	Get(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// GetByExternalSubscriptionRef resolves a subscription by the provider's
	// subscription id. Returns ErrSubscriptionNotFound if no match.
	GetByExternalSubscriptionRef(ctx context.Context, ref string) (*Subscription, error)

	// GetOrCreate returns the user's subscription, lazily creating the
	// default free record on first contact.
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// Upsert writes the full subscription state keyed by user id.
	// Redelivered billing events are safe because the same state applied
	// twice yields the same row.
	Upsert(ctx context.Context, sub *Subscription) error

	// RolloverIfExpired resets the usage counter and advances the period end
	// to now+DefaultPeriod in a single conditional update, so two concurrent
	// readers cannot double-apply the rollover. Returns the current row
	// either way.
	RolloverIfExpired(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error)

	// IncrementGenerationsUsed adds one to the usage counter with a
	// storage-level atomic increment, never read-modify-write.
	IncrementGenerationsUsed(ctx context.Context, userID uuid.UUID) error

	// SetExternalCustomerRef binds the provider customer id to the user.
	SetExternalCustomerRef(ctx context.Context, userID uuid.UUID, ref string) error
}
