package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dvolos/tometran/internal/postprocess"
)

// OllamaGenerator drives a local Ollama instance through its native
// /api/generate endpoint.
type OllamaGenerator struct {
	baseURL string
	model   string
	client  *http.Client
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaGenerator creates a generator backed by a local Ollama model.
func NewOllamaGenerator(baseURL, model string) *OllamaGenerator {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaGenerator{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	raw, err := g.invoke(ctx, prompt, "")
	if err != nil {
		return "", err
	}
	return postprocess.Clean(raw), nil
}

func (g *OllamaGenerator) GenerateSchema(ctx context.Context, prompt string, out any) error {
	raw, err := g.invoke(ctx, prompt, "json")
	if err != nil {
		return err
	}
	doc := postprocess.ExtractJSON(raw)
	if doc == "" {
		return &Error{Kind: KindSchemaInvalid, Op: "generate_schema", Err: fmt.Errorf("response contains no JSON object")}
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return &Error{Kind: KindSchemaInvalid, Op: "generate_schema", Err: fmt.Errorf("decode structured output: %w", err)}
	}
	return nil
}

func (g *OllamaGenerator) invoke(ctx context.Context, prompt, format string) (string, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
		Format: format,
	})
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Op: "generate", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/api/generate", g.baseURL), bytes.NewBuffer(body))
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Op: "generate", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Op: "generate", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &Error{Kind: KindRateLimited, Op: "generate", Err: fmt.Errorf("ollama returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Kind: KindUnavailable, Op: "generate", Err: fmt.Errorf("ollama returned status %d", resp.StatusCode)}
	}

	var decoded ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &Error{Kind: KindUnavailable, Op: "generate", Err: fmt.Errorf("decode response: %w", err)}
	}
	return decoded.Response, nil
}

// IsAvailable probes the Ollama instance.
func (g *OllamaGenerator) IsAvailable(ctx context.Context) error {
	req, _ := http.NewRequestWithContext(ctx, "GET", fmt.Sprintf("%s/api/tags", g.baseURL), nil)
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama not available: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}
	return nil
}
