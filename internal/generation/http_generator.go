package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// GeneratorConfig points at the caption generation backend.
type GeneratorConfig struct {
	URL     string        `env:"GENERATOR_URL,required"`
	APIKey  string        `env:"GENERATOR_API_KEY,required"`
	Timeout time.Duration `env:"GENERATOR_TIMEOUT" envDefault:"60s"`
}

// HTTPGenerator calls the external caption generation service. The LLM
// prompt assembly lives behind that service; this client only ships the
// request context over and collects candidate texts.
type HTTPGenerator struct {
	cfg    GeneratorConfig
	client *http.Client
}

// NewHTTPGenerator creates a client for the generation backend.
func NewHTTPGenerator(cfg GeneratorConfig) *HTTPGenerator {
	return &HTTPGenerator{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) ([]string, error) {
	body, err := json.Marshal(map[string]any{
		"contentInput":         req.ContentInput,
		"contextData":          req.ContextData,
		"selectedContextItems": req.SelectedContextItems,
		"options":              req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("encode generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call generation backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation backend returned status %d", resp.StatusCode)
	}

	var out struct {
		Captions []string `json:"captions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	if len(out.Captions) == 0 {
		return nil, errors.New("generation backend returned no captions")
	}
	return out.Captions, nil
}
