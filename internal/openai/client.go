// Package openai implements the embed and complete backends on the official OpenAI Go SDK.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

var (
	// ErrEmptyInput is returned when a call is made with empty input.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("openai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrNoCompletionInResponse is returned when the API response contains no choices.
	ErrNoCompletionInResponse = errors.New("openai: no completion in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
)

const (
	defaultDimension       = 1536
	defaultEmbeddingModel  = openaisdk.EmbeddingModelTextEmbedding3Small
	defaultCompletionModel = openaisdk.ChatModelGPT4oMini
	defaultMaxTokens       = 800
)

// Client calls the OpenAI embeddings and chat completion APIs.
type Client struct {
	sdk             openaisdk.Client
	dimensions      int
	embeddingModel  string
	completionModel string
	maxTokens       int64
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match the chunk vector column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithEmbeddingModel overrides the embedding model. Empty keeps the default.
func WithEmbeddingModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.embeddingModel = model
		}
	}
}

// WithCompletionModel overrides the chat model used by Complete. Empty keeps the default.
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
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

// NewClient creates an OpenAI client. The SDK's own retries are disabled; retry policy lives in the
// backend gateway.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		sdk:             openaisdk.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)),
		dimensions:      defaultDimension,
		embeddingModel:  defaultEmbeddingModel,
		completionModel: defaultCompletionModel,
		maxTokens:       defaultMaxTokens,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// CreateEmbedding returns the embedding vector for input. The slice length equals the configured dimensions.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}

	if c.dimensions <= 0 {
		return nil, ErrInvalidDims
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(input),
		},
		Model:      openaisdk.EmbeddingModel(c.embeddingModel),
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	emb := resp.Data[0].Embedding
	if len(emb) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions)
	}

	out := make([]float32, len(emb))
	for i := range emb {
		out[i] = float32(emb[i])
	}

	return out, nil
}

// Complete sends system and prompt as a two-message chat and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyInput
	}

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openaisdk.SystemMessage(system))
	}

	messages = append(messages, openaisdk.UserMessage(prompt))

	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:               openaisdk.ChatModel(c.completionModel),
		Messages:            messages,
		MaxCompletionTokens: param.NewOpt(c.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoCompletionInResponse
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
