// Package backend routes every call to the external embed and complete functions through one
// gateway: a bounded worker pool, a shared rate limit, a circuit breaker per operation, and
// per-attempt timeouts with exponential-backoff retries.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/observability"
)

// Defaults.
const (
	DefaultMaxConcurrent   = 4
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultRateLimit       = 10
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
	defaultInitialBackoff  = 500 * time.Millisecond
	defaultMaxBackoff      = 10 * time.Second
	defaultRetryAfter      = 5 * time.Second
)

const (
	opEmbed    = "embed"
	opComplete = "complete"
)

// Embedder produces an embedding vector for one text.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// Completer produces a completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config tunes the gateway. Zero values take the defaults above.
type Config struct {
	MaxConcurrent int
	Timeout       time.Duration
	// MaxRetries counts retries after the first attempt. Zero disables retries; negative takes the default.
	MaxRetries      int
	RateLimit       float64
	BreakerFailures int
	BreakerCooldown time.Duration
	InitialBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}

	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}

	if c.BreakerFailures <= 0 {
		c.BreakerFailures = DefaultBreakerFailures
	}

	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = DefaultBreakerCooldown
	}

	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}

	return c
}

// Params holds dependencies for NewGateway.
type Params struct {
	Embedder  Embedder
	Completer Completer
	Config    Config
	// Permanent reports errors that retrying cannot fix (empty input, dimension mismatch).
	// They are returned as-is and do not trip the breaker.
	Permanent func(error) bool
	Metrics   observability.BackendMetrics
	Logger    *slog.Logger
}

// Gateway is safe for concurrent use.
type Gateway struct {
	embedder  Embedder
	completer Completer
	cfg       Config
	permanent func(error) bool
	pool      *ants.Pool
	limiter   *rate.Limiter
	breakers  map[string]*gobreaker.CircuitBreaker
	metrics   observability.BackendMetrics
	logger    *slog.Logger
}

// ErrUnavailable is returned when no backend is configured for an operation.
var ErrUnavailable = errors.New("backend: not configured")

// NewGateway creates a Gateway. Either backend may be nil; calls to it return ErrUnavailable.
func NewGateway(params Params) (*Gateway, error) {
	cfg := params.Config.withDefaults()

	pool, err := ants.NewPool(cfg.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("create backend worker pool: %w", err)
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	permanent := params.Permanent
	if permanent == nil {
		permanent = func(error) bool { return false }
	}

	g := &Gateway{
		embedder:  params.Embedder,
		completer: params.Completer,
		cfg:       cfg,
		permanent: permanent,
		pool:      pool,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.MaxConcurrent),
		metrics:   params.Metrics,
		logger:    logger,
	}

	g.breakers = map[string]*gobreaker.CircuitBreaker{
		opEmbed:    g.newBreaker(opEmbed),
		opComplete: g.newBreaker(opComplete),
	}

	return g, nil
}

func (g *Gateway) newBreaker(op string) *gobreaker.CircuitBreaker {
	threshold := uint32(g.cfg.BreakerFailures) //nolint:gosec // G115: positive, from config

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        op,
		MaxRequests: 1,
		Timeout:     g.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || g.permanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("backend: circuit breaker state change", "operation", name, "from", from.String(), "to", to.String())

			if g.metrics != nil {
				g.metrics.RecordBreakerStateChange(context.Background(), name, to.String())
			}
		},
	})
}

// Close releases the worker pool. In-flight calls finish first.
func (g *Gateway) Close() {
	g.pool.Release()
}

// Embed returns the embedding for text. Exhausted retries and an open breaker return a TransientError.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.embedder == nil {
		return nil, ErrUnavailable
	}

	return run(ctx, g, opEmbed, func(ctx context.Context) ([]float32, error) {
		return g.embedder.CreateEmbedding(ctx, text)
	})
}

// EmbedBatch embeds texts concurrently, bounded by the worker pool. errs[i] is non-nil when
// vectors[i] could not be produced; one failure never affects another text.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) (vectors [][]float32, errs []error) {
	vectors = make([][]float32, len(texts))
	errs = make([]error, len(texts))

	var wg sync.WaitGroup

	for i, text := range texts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			vectors[i], errs[i] = g.Embed(ctx, text)
		}()
	}

	wg.Wait()

	return vectors, errs
}

// Complete returns the completion for prompt under system.
func (g *Gateway) Complete(ctx context.Context, system, prompt string) (string, error) {
	if g.completer == nil {
		return "", ErrUnavailable
	}

	return run(ctx, g, opComplete, func(ctx context.Context) (string, error) {
		return g.completer.Complete(ctx, system, prompt)
	})
}

type outcome[T any] struct {
	value T
	err   error
}

// run executes call on the worker pool with retries and maps the final failure.
func run[T any](ctx context.Context, g *Gateway, op string, call func(context.Context) (T, error)) (T, error) {
	var zero T

	done := make(chan outcome[T], 1)

	submitErr := g.pool.Submit(func() {
		v, err := retry(ctx, g, op, call)
		done <- outcome[T]{value: v, err: err}
	})
	if submitErr != nil {
		return zero, apperrors.NewTransientError(op+" unavailable", defaultRetryAfter, submitErr)
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

func retry[T any](ctx context.Context, g *Gateway, op string, call func(context.Context) (T, error)) (T, error) {
	var (
		value    T
		attempts int
	)

	breaker := g.breakers[op]

	attempt := func() error {
		attempts++

		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()

		start := time.Now()

		res, err := breaker.Execute(func() (any, error) {
			return call(attemptCtx)
		})

		switch {
		case err == nil:
			value, _ = res.(T)
			g.record(ctx, op, "success", start)

			return nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			g.record(ctx, op, "breaker_open", start)

			return backoff.Permanent(err)
		case ctx.Err() != nil:
			g.record(ctx, op, "canceled", start)

			return backoff.Permanent(ctx.Err())
		case g.permanent(err):
			g.record(ctx, op, "failed", start)

			return backoff.Permanent(err)
		default:
			g.record(ctx, op, "retry", start)
			g.logger.Debug("backend: attempt failed", "operation", op, "attempt", attempts, "error", err)

			return err
		}
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = g.cfg.InitialBackoff
	exp.MaxInterval = defaultMaxBackoff
	exp.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(g.cfg.MaxRetries)), ctx) //nolint:gosec // G115: non-negative

	err := backoff.Retry(attempt, policy)
	if err == nil {
		return value, nil
	}

	var zero T

	switch {
	case ctx.Err() != nil:
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return zero, apperrors.NewTransientError(op+" backend unavailable, try again", g.cfg.BreakerCooldown, err)
	case g.permanent(err):
		return zero, fmt.Errorf("%s: %w", op, err)
	default:
		g.logger.Warn("backend: retries exhausted", "operation", op, "attempts", attempts, "error", err)

		return zero, apperrors.NewTransientError(
			fmt.Sprintf("%s failed after %d attempts, try again", op, attempts), defaultRetryAfter, err)
	}
}

func (g *Gateway) record(ctx context.Context, op, status string, start time.Time) {
	if g.metrics != nil {
		g.metrics.RecordCall(ctx, op, status, time.Since(start))
	}
}
