package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Caption is a single generated caption candidate. All captions produced by
// one request share a generation batch id; variation batches additionally
// carry the parent batch id, which is the sole linkage for variation counting.
type Caption struct {
	ID                      uuid.UUID
	UserID                  uuid.UUID
	Text                    string
	GenerationBatchID       string
	ParentGenerationBatchID string // empty for root batches
	CreatedAt               time.Time
}

// CaptionStore persists caption rows and answers batch-level queries.
type CaptionStore interface {
	// InsertBatch persists all captions of one batch.
	InsertBatch(ctx context.Context, captions []*Caption) error

	// CountDistinctVariationBatches counts the distinct batch ids recorded
	// under a parent batch. Distinct batch ids, not rows: one variation
	// request yields several caption rows but counts once.
	CountDistinctVariationBatches(ctx context.Context, parentBatchID string) (int64, error)

	// BatchParent reports whether the user owns a batch with the given id
	// and returns that batch's own parent id (empty for root batches).
	BatchParent(ctx context.Context, userID uuid.UUID, batchID string) (parentBatchID string, err error)
}
