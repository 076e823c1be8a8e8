// Package googleai implements the embed and complete backends on the Google Gen AI SDK (Gemini API).
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrEmptyInput is returned when a call is made with empty input.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrNoCompletionInResponse is returned when the API response contains no text.
	ErrNoCompletionInResponse = errors.New("googleai: no completion in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const (
	defaultDimension       = 1536
	defaultModel           = "gemini-embedding-001"
	defaultCompletionModel = "gemini-2.5-flash"
	defaultMaxTokens       = 800
)

// Client calls the Gemini embedding and generation APIs.
type Client struct {
	client          *genai.Client
	model           string
	completionModel string
	dimensions      int
	maxTokens       int32
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match the chunk vector column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty uses default.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		c.model = model
	}
}

// WithCompletionModel sets the generation model. Empty uses default.
func WithCompletionModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.completionModel = model
		}
	}
}

// WithMaxTokens caps completion length.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		if n > 0 && n <= math.MaxInt32 {
			c.maxTokens = int32(n)
		}
	}
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client := &Client{
		client:          genaiClient,
		model:           defaultModel,
		completionModel: defaultCompletionModel,
		dimensions:      defaultDimension,
		maxTokens:       defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// CreateEmbedding returns the embedding vector for input using the configured model.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 || c.dimensions > math.MaxInt32 {
		return nil, ErrInvalidDims
	}

	model := c.model
	if model == "" {
		model = defaultModel
	}

	contents := []*genai.Content{genai.NewContentFromText(input, genai.RoleUser)}
	//nolint:gosec // G115: c.dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(c.dimensions)

	resp, err := c.client.Models.EmbedContent(ctx, model, contents, &genai.EmbedContentConfig{
		TaskType:             "RETRIEVAL_DOCUMENT",
		OutputDimensionality: &dimInt32,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}

	if len(resp.Embeddings) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	emb := resp.Embeddings[0].Values
	if len(emb) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions)
	}

	out := make([]float32, len(emb))
	copy(out, emb)

	return out, nil
}

// Complete generates text for prompt with system as the system instruction.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyInput
	}

	cfg := &genai.GenerateContentConfig{MaxOutputTokens: c.maxTokens}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.completionModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrNoCompletionInResponse
	}

	return text, nil
}
