package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStoreRequired  = errors.New("ratelimit: store is required")
	ErrInvalidLimit   = errors.New("ratelimit: limit must be positive")
	ErrInvalidWindow  = errors.New("ratelimit: window must be positive")
	ErrKeyRequired    = errors.New("ratelimit: key is required")
	ErrStoreOperation = errors.New("ratelimit: store operation failed")
)

// Store performs the atomic count-and-increment for a fixed window.
// Implementations must be safe for concurrent use across processes.
type Store interface {
	// Increment adds one hit to the window containing now and returns the
	// resulting count together with the window's expiry.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)
}

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// FixedWindow is a fixed-window rate limiter. Cheaper than a sliding window
// at the cost of allowing up to 2x the limit across a window boundary, which
// is acceptable for abuse protection in front of quota enforcement.
type FixedWindow struct {
	store  Store
	limit  int
	window time.Duration
}

// NewFixedWindow creates a fixed-window limiter.
func NewFixedWindow(store Store, limit int, window time.Duration) (*FixedWindow, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	return &FixedWindow{store: store, limit: limit, window: window}, nil
}

// Allow records a hit for key and reports whether it is within the limit.
func (fw *FixedWindow) Allow(ctx context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	count, resetAt, err := fw.store.Increment(ctx, key, fw.window)
	if err != nil {
		return nil, errors.Join(ErrStoreOperation, err)
	}

	remaining := fw.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return &Result{
		Allowed:   count <= int64(fw.limit),
		Limit:     fw.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}
