package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/apperrors"
)

type funcEmbedder func(ctx context.Context, input string) ([]float32, error)

func (f funcEmbedder) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	return f(ctx, input)
}

type funcCompleter func(ctx context.Context, system, prompt string) (string, error)

func (f funcCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

var (
	errFlaky   = errors.New("flaky backend")
	errBadText = errors.New("bad input")
)

func testConfig() Config {
	return Config{
		MaxConcurrent:   4,
		Timeout:         time.Second,
		MaxRetries:      3,
		RateLimit:       10000,
		BreakerFailures: 100,
		BreakerCooldown: time.Minute,
		InitialBackoff:  time.Millisecond,
	}
}

func newGateway(t *testing.T, e Embedder, c Completer, cfg Config) *Gateway {
	t.Helper()

	g, err := NewGateway(Params{
		Embedder:  e,
		Completer: c,
		Config:    cfg,
		Permanent: func(err error) bool { return errors.Is(err, errBadText) },
	})
	require.NoError(t, err)
	t.Cleanup(g.Close)

	return g
}

func TestEmbedSucceeds(t *testing.T) {
	g := newGateway(t, funcEmbedder(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0}, nil
	}), nil, testConfig())

	vec, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32

	g := newGateway(t, funcEmbedder(func(context.Context, string) ([]float32, error) {
		if calls.Add(1) < 3 {
			return nil, errFlaky
		}

		return []float32{1}, nil
	}), nil, testConfig())

	vec, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedRetriesExhausted(t *testing.T) {
	var calls atomic.Int32

	g := newGateway(t, funcEmbedder(func(context.Context, string) ([]float32, error) {
		calls.Add(1)

		return nil, errFlaky
	}), nil, testConfig())

	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTransient)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, int32(4), calls.Load(), "first attempt plus three retries")

	var transient *apperrors.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Positive(t, transient.RetryAfter)
}

func TestEmbedPermanentErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32

	g := newGateway(t, funcEmbedder(func(context.Context, string) ([]float32, error) {
		calls.Add(1)

		return nil, errBadText
	}), nil, testConfig())

	_, err := g.Embed(context.Background(), "")
	require.ErrorIs(t, err, errBadText)
	assert.NotErrorIs(t, err, apperrors.ErrTransient)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAttemptTimeoutIsRetried(t *testing.T) {
	var calls atomic.Int32

	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 1

	g := newGateway(t, funcEmbedder(func(ctx context.Context, _ string) ([]float32, error) {
		calls.Add(1)
		<-ctx.Done()

		return nil, ctx.Err()
	}), nil, cfg)

	_, err := g.Embed(context.Background(), "slow")
	require.ErrorIs(t, err, apperrors.ErrTransient)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls atomic.Int32

	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.BreakerFailures = 2

	g := newGateway(t, funcEmbedder(func(context.Context, string) ([]float32, error) {
		calls.Add(1)

		return nil, errFlaky
	}), funcCompleter(func(context.Context, string, string) (string, error) {
		return "ok", nil
	}), cfg)

	ctx := context.Background()

	for range 2 {
		_, err := g.Embed(ctx, "x")
		require.ErrorIs(t, err, apperrors.ErrTransient)
	}

	_, err := g.Embed(ctx, "x")
	require.ErrorIs(t, err, apperrors.ErrTransient)
	assert.Equal(t, int32(2), calls.Load(), "open breaker rejects without calling the backend")

	var transient *apperrors.TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, time.Minute, transient.RetryAfter)

	// Breakers are per operation.
	out, err := g.Complete(ctx, "", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestCallerCancellation(t *testing.T) {
	started := make(chan struct{})

	g := newGateway(t, funcEmbedder(func(ctx context.Context, _ string) ([]float32, error) {
		close(started)
		<-ctx.Done()

		return nil, ctx.Err()
	}), nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-started
		cancel()
	}()

	_, err := g.Embed(ctx, "x")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrTransient)
}

func TestEmbedBatchBoundsConcurrency(t *testing.T) {
	var (
		inFlight atomic.Int32
		peak     atomic.Int32
		mu       sync.Mutex
		seen     []string
	)

	cfg := testConfig()
	cfg.MaxConcurrent = 2

	g := newGateway(t, funcEmbedder(func(_ context.Context, input string) ([]float32, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)

		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		seen = append(seen, input)
		mu.Unlock()

		if input == "bad" {
			return nil, errBadText
		}

		return []float32{float32(len(input))}, nil
	}), nil, cfg)

	texts := []string{"a", "bb", "bad", "dddd", "eeeee", "ffffff", "g", "hh"}
	vectors, errs := g.EmbedBatch(context.Background(), texts)

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, seen, len(texts))

	for i, text := range texts {
		if text == "bad" {
			require.ErrorIs(t, errs[i], errBadText)
			assert.Nil(t, vectors[i])

			continue
		}

		require.NoError(t, errs[i])
		assert.Equal(t, []float32{float32(len(text))}, vectors[i])
	}
}

func TestUnconfiguredBackend(t *testing.T) {
	g := newGateway(t, nil, nil, testConfig())

	_, err := g.Embed(context.Background(), "x")
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = g.Complete(context.Background(), "", "x")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{MaxRetries: -1}.withDefaults()

	assert.Equal(t, DefaultMaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, DefaultBreakerFailures, cfg.BreakerFailures)
}
