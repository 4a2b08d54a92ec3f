package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/captionly/captionly/pkg/pg"
)

// PGStore implements Store on a pgx connection pool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a PostgreSQL-backed subscription store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const subscriptionColumns = `user_id, plan, status, external_customer_ref, external_subscription_ref,
	current_period_end, generations_used, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var s Subscription
	err := row.Scan(
		&s.UserID, &s.Plan, &s.Status, &s.ExternalCustomerRef, &s.ExternalSubscriptionRef,
		&s.CurrentPeriodEnd, &s.GenerationsUsed, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFound(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return &s, nil
}

func (s *PGStore) Get(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID)
	return scanSubscription(row)
}

func (s *PGStore) GetByExternalSubscriptionRef(ctx context.Context, ref string) (*Subscription, error) {
	if ref == "" {
		return nil, ErrSubscriptionNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_ref = $1`, ref)
	return scanSubscription(row)
}

func (s *PGStore) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	def := NewDefaultSubscription(userID, time.Now())

	// ON CONFLICT DO NOTHING keeps the insert race-free between two
	// first-contact requests for the same user.
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, plan, status, current_period_end, generations_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		def.UserID, def.Plan, def.Status, def.CurrentPeriodEnd, def.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create default subscription: %w", err)
	}

	return s.Get(ctx, userID)
}

func (s *PGStore) Upsert(ctx context.Context, sub *Subscription) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, plan, status, external_customer_ref, external_subscription_ref,
			current_period_end, generations_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			external_customer_ref = EXCLUDED.external_customer_ref,
			external_subscription_ref = EXCLUDED.external_subscription_ref,
			current_period_end = EXCLUDED.current_period_end,
			generations_used = EXCLUDED.generations_used,
			updated_at = EXCLUDED.updated_at`,
		sub.UserID, sub.Plan, sub.Status, sub.ExternalCustomerRef, sub.ExternalSubscriptionRef,
		sub.CurrentPeriodEnd, sub.GenerationsUsed, now,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *PGStore) RolloverIfExpired(ctx context.Context, userID uuid.UUID, now time.Time) (*Subscription, error) {
	now = now.UTC()
	row := s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET generations_used = 0, current_period_end = $2, updated_at = $3
		WHERE user_id = $1 AND current_period_end < $3
		RETURNING `+subscriptionColumns,
		userID, now.Add(DefaultPeriod), now,
	)

	sub, err := scanSubscription(row)
	if errors.Is(err, ErrSubscriptionNotFound) {
		// Nothing expired; either the period is still running or another
		// request already rolled it over. Read the current row.
		return s.Get(ctx, userID)
	}
	return sub, err
}

func (s *PGStore) IncrementGenerationsUsed(ctx context.Context, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions
		SET generations_used = generations_used + 1, updated_at = $2
		WHERE user_id = $1`,
		userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("increment generations used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PGStore) SetExternalCustomerRef(ctx context.Context, userID uuid.UUID, ref string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET external_customer_ref = $2, updated_at = $3 WHERE user_id = $1`,
		userID, ref, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set external customer ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
