package service

import "context"

// Backend is the embed and complete surface the services need. Implemented by backend.Gateway,
// which bounds concurrency and retries for the provider-specific clients (OpenAI, Google Gemini).
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, errs []error)
	Complete(ctx context.Context, system, prompt string) (string, error)
}
