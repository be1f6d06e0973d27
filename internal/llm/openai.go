package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dvolos/tometran/internal/postprocess"
)

// OpenAIGenerator talks to the OpenAI API or any compatible endpoint
// (DeepSeek, Moonshot, Ollama's /v1 shim) through the go-openai client.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIGenerator creates a generator for the given endpoint. baseURL may
// be empty to use the official API.
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: 0.7,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classify("generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Kind: KindUnavailable, Op: "generate", Err: errors.New("no choices returned")}
	}
	return postprocess.Clean(resp.Choices[0].Message.Content), nil
}

func (g *OpenAIGenerator) GenerateSchema(ctx context.Context, prompt string, out any) error {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return classify("generate_schema", err)
	}
	if len(resp.Choices) == 0 {
		return &Error{Kind: KindUnavailable, Op: "generate_schema", Err: errors.New("no choices returned")}
	}

	raw := postprocess.ExtractJSON(resp.Choices[0].Message.Content)
	if raw == "" {
		return &Error{Kind: KindSchemaInvalid, Op: "generate_schema", Err: errors.New("response contains no JSON object")}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &Error{Kind: KindSchemaInvalid, Op: "generate_schema", Err: fmt.Errorf("decode structured output: %w", err)}
	}
	return nil
}

// classify maps go-openai transport errors onto the package taxonomy.
func classify(op string, err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &Error{Kind: KindRateLimited, Op: op, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &Error{Kind: KindRateLimited, Op: op, Err: err}
	}
	if isRateLimitText(err) {
		return &Error{Kind: KindRateLimited, Op: op, Err: err}
	}
	return &Error{Kind: KindUnavailable, Op: op, Err: err}
}
