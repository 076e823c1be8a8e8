package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheMetrics records lookups on the search caches (query_embedding, research). A miss is followed
// by exactly one load per key at a time; failed loads are counted separately because they are not
// cached and the next lookup misses again.
type CacheMetrics interface {
	RecordHit(ctx context.Context, cacheName string)
	RecordMiss(ctx context.Context, cacheName string)
	RecordLoadFailure(ctx context.Context, cacheName string)
}

type cacheMetrics struct {
	hits     metric.Int64Counter
	misses   metric.Int64Counter
	failures metric.Int64Counter
}

// NewCacheMetrics creates CacheMetrics. Returns (nil, nil) when meter is nil (metrics disabled).
func NewCacheMetrics(meter metric.Meter) (CacheMetrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	m := &cacheMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.hits, MetricNameCacheHits, "Search cache lookups answered from the cache. " +
			"Hit ratio = rate(hits) / (rate(hits) + rate(misses)) per cache."},
		{&m.misses, MetricNameCacheMisses, "Search cache lookups that waited on a load: a backend embedding " +
			"call for query_embedding, a full research run for research."},
		{&m.failures, MetricNameCacheLoadFailures, "Search cache loads that failed and were not cached."},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name,
			metric.WithDescription(c.desc+" Label cache: query_embedding, research."),
			metric.WithUnit("1"),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}

		*c.dst = counter
	}

	return m, nil
}

func cacheAttrs(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("cache", NormalizeCacheName(name)))
}

func (c *cacheMetrics) RecordHit(ctx context.Context, cacheName string) {
	c.hits.Add(ctx, 1, cacheAttrs(cacheName))
}

func (c *cacheMetrics) RecordMiss(ctx context.Context, cacheName string) {
	c.misses.Add(ctx, 1, cacheAttrs(cacheName))
}

func (c *cacheMetrics) RecordLoadFailure(ctx context.Context, cacheName string) {
	c.failures.Add(ctx, 1, cacheAttrs(cacheName))
}
