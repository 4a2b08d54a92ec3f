package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/captionly/captionly/internal/usage"
)

// Result is the outcome of a generation submission. Denial is set when the
// request was refused by a plan limit; that is not an error, it drives the
// structured 429 response and client-side upsell messaging.
type Result struct {
	BatchID  string
	Captions []*Caption
	Denial   *usage.Decision
}

// Coordinator issues batch identifiers, distinguishes new generations from
// variations of an existing batch, and enforces the two limit types through
// the usage ledger.
type Coordinator struct {
	ledger   *usage.Ledger
	gen      Generator
	captions CaptionStore
	log      *slog.Logger
}

// NewCoordinator creates a generation batch coordinator.
func NewCoordinator(ledger *usage.Ledger, gen Generator, captions CaptionStore, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{ledger: ledger, gen: gen, captions: captions, log: log}
}

// Submit runs one generation request end to end: limit check, LLM call,
// caption persistence, then quota consumption. Quota is consumed only after
// the batch is durable, so a failed generation never costs the user anything.
func (c *Coordinator) Submit(ctx context.Context, userID uuid.UUID, req Request) (*Result, error) {
	if req.ContentInput == "" {
		return nil, ErrEmptyInput
	}

	isVariation := req.ParentGenerationBatchID != ""

	if isVariation {
		// Variations are depth 1 only: the parent must itself be a root batch.
		parentOfParent, err := c.captions.BatchParent(ctx, userID, req.ParentGenerationBatchID)
		if err != nil {
			return nil, err
		}
		if parentOfParent != "" {
			return nil, ErrVariationDepth
		}
	}

	var decision *usage.Decision
	var err error
	if isVariation {
		decision, err = c.ledger.CheckVariation(ctx, userID, req.ParentGenerationBatchID)
	} else {
		decision, err = c.ledger.CheckGeneration(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return &Result{Denial: decision}, nil
	}

	texts, err := c.gen.Generate(ctx, req)
	if err != nil {
		return nil, errors.Join(ErrGenerationFailed, err)
	}
	if len(texts) == 0 {
		return nil, ErrNoCaptionsGenerated
	}

	batchID := NewBatchID()
	now := time.Now().UTC()
	captions := make([]*Caption, 0, len(texts))
	for _, text := range texts {
		captions = append(captions, &Caption{
			ID:                      uuid.New(),
			UserID:                  userID,
			Text:                    text,
			GenerationBatchID:       batchID,
			ParentGenerationBatchID: req.ParentGenerationBatchID,
			CreatedAt:               now,
		})
	}

	if err := c.captions.InsertBatch(ctx, captions); err != nil {
		return nil, fmt.Errorf("persist caption batch: %w", err)
	}

	// One increment per batch regardless of how many captions came back.
	// Variations do not consume the generation quota; they are bounded by
	// the per-batch variation count alone.
	if !isVariation {
		if err := c.ledger.Commit(ctx, userID); err != nil {
			// The batch is already durable; losing the increment is
			// retryable-but-logged, not a request failure.
			c.log.ErrorContext(ctx, "failed to consume generation quota after persist",
				"user_id", userID, "batch_id", batchID, "error", err)
		}
	}

	return &Result{BatchID: batchID, Captions: captions}, nil
}
