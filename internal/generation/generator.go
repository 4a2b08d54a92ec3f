package generation

import "context"

// Request is a caption generation request as submitted by a user.
// A non-empty ParentGenerationBatchID makes it a variation request.
type Request struct {
	ContentInput            string
	ContextData             map[string]any
	SelectedContextItems    []string
	Options                 map[string]any
	ParentGenerationBatchID string
}

// Generator produces caption candidates for a request. The production
// implementation calls the LLM backend; it is an external collaborator and
// subject to caller-imposed timeouts via ctx.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}
