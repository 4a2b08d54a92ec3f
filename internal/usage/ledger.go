package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/captionly/captionly/internal/billing"
)

// Kind is the metered resource kind.
type Kind string

const (
	KindGeneration Kind = "generation"
	KindVariation  Kind = "variation"
)

// Decision is the outcome of a limit check. Denials are not errors: they
// carry the usage snapshot and an upgrade hint for upsell messaging.
type Decision struct {
	Allowed      bool
	Kind         Kind
	Plan         billing.Plan
	Used         int64
	Limit        int64
	ResetAt      time.Time
	RequiredPlan billing.Plan // set only on denial
}

// VariationCounterFunc counts the distinct variation batches already recorded
// under a parent batch. Must count distinct batch ids, not caption rows: one
// variation request can yield multiple captions.
type VariationCounterFunc func(ctx context.Context, parentBatchID string) (int64, error)

// ErrNoVariationCounter is returned when a variation check runs without a
// registered counter.
var ErrNoVariationCounter = errors.New("usage: no variation counter registered")

// Ledger answers "may this user consume N more units" and performs the
// consumption. Period rollover is lazy, triggered by the next read, and is
// applied even on a path that ultimately denies: the rollover is a
// correctness fix, not a grant.
type Ledger struct {
	subs       billing.Store
	variations VariationCounterFunc
	now        func() time.Time
}

// LedgerOption configures optional ledger behavior.
type LedgerOption func(*Ledger)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger creates a usage ledger over the subscription store.
func NewLedger(subs billing.Store, variations VariationCounterFunc, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		subs:       subs,
		variations: variations,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// loadCurrent fetches the subscription, lazily creating the default free
// record and rolling the period over if it has elapsed. The rollover is a
// single conditional update at the storage layer, so concurrent readers
// cannot double-apply it.
func (l *Ledger) loadCurrent(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	sub, err := l.subs.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := l.now().UTC()
	if sub.PeriodExpired(now) {
		sub, err = l.subs.RolloverIfExpired(ctx, userID, now)
		if err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// CheckGeneration decides whether the user may start a new generation batch.
// The counter is not reserved here; it increments only after the downstream
// generation and persistence succeed, so a failed generation consumes no quota.
func (l *Ledger) CheckGeneration(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	sub, err := l.loadCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := billing.LimitsFor(sub.Plan).GenerationsPerPeriod
	decision := &Decision{
		Kind:    KindGeneration,
		Plan:    sub.Plan,
		Used:    sub.GenerationsUsed,
		Limit:   limit,
		ResetAt: sub.CurrentPeriodEnd,
	}

	if limit == billing.Unlimited || sub.GenerationsUsed < limit {
		decision.Allowed = true
		return decision, nil
	}

	decision.RequiredPlan = billing.UpgradeTarget(sub.Plan)
	return decision, nil
}

// CheckVariation decides whether the user may add another variation batch
// under the given parent. Variations are bounded per batch by a distinct
// batch-id count, independent of the per-period generation quota.
func (l *Ledger) CheckVariation(ctx context.Context, userID uuid.UUID, parentBatchID string) (*Decision, error) {
	if l.variations == nil {
		return nil, ErrNoVariationCounter
	}

	sub, err := l.loadCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}

	used, err := l.variations(ctx, parentBatchID)
	if err != nil {
		return nil, fmt.Errorf("usage: count variation batches: %w", err)
	}

	limit := billing.LimitsFor(sub.Plan).VariationsPerBatch
	decision := &Decision{
		Kind:    KindVariation,
		Plan:    sub.Plan,
		Used:    used,
		Limit:   limit,
		ResetAt: sub.CurrentPeriodEnd,
	}

	if limit == billing.Unlimited || used < limit {
		decision.Allowed = true
		return decision, nil
	}

	decision.RequiredPlan = billing.UpgradeTarget(sub.Plan)
	return decision, nil
}

// Commit consumes one generation from the user's quota. Called once per
// batch after the captions are durable, via a storage-level atomic increment.
func (l *Ledger) Commit(ctx context.Context, userID uuid.UUID) error {
	return l.subs.IncrementGenerationsUsed(ctx, userID)
}

// Snapshot returns the current usage for display, applying lazy rollover
// like any other read.
func (l *Ledger) Snapshot(ctx context.Context, userID uuid.UUID) (*Decision, error) {
	sub, err := l.loadCurrent(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Decision{
		Allowed: true,
		Kind:    KindGeneration,
		Plan:    sub.Plan,
		Used:    sub.GenerationsUsed,
		Limit:   billing.LimitsFor(sub.Plan).GenerationsPerPeriod,
		ResetAt: sub.CurrentPeriodEnd,
	}, nil
}
