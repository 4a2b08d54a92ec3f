package generation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/captionly/captionly/pkg/pg"
)

// PGCaptionStore implements CaptionStore on a pgx connection pool.
type PGCaptionStore struct {
	pool *pgxpool.Pool
}

// NewPGCaptionStore creates a PostgreSQL-backed caption store.
func NewPGCaptionStore(pool *pgxpool.Pool) *PGCaptionStore {
	return &PGCaptionStore{pool: pool}
}

func (s *PGCaptionStore) InsertBatch(ctx context.Context, captions []*Caption) error {
	if len(captions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range captions {
		batch.Queue(`
			INSERT INTO captions (id, user_id, text, generation_batch_id, parent_generation_batch_id, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`,
			c.ID, c.UserID, c.Text, c.GenerationBatchID, c.ParentGenerationBatchID, c.CreatedAt,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert caption batch: %w", err)
	}
	return nil
}

func (s *PGCaptionStore) CountDistinctVariationBatches(ctx context.Context, parentBatchID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT generation_batch_id)
		FROM captions
		WHERE parent_generation_batch_id = $1`,
		parentBatchID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count variation batches: %w", err)
	}
	return count, nil
}

func (s *PGCaptionStore) BatchParent(ctx context.Context, userID uuid.UUID, batchID string) (string, error) {
	var parent *string
	err := s.pool.QueryRow(ctx, `
		SELECT parent_generation_batch_id
		FROM captions
		WHERE user_id = $1 AND generation_batch_id = $2
		LIMIT 1`,
		userID, batchID,
	).Scan(&parent)
	if err != nil {
		if pg.IsNotFound(err) {
			return "", ErrBatchNotFound
		}
		return "", fmt.Errorf("look up batch parent: %w", err)
	}
	if parent == nil {
		return "", nil
	}
	return *parent, nil
}
