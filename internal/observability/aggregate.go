package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric groups. When metrics are disabled the struct is nil; components that
// accept a group interface already handle nil.
type Metrics struct {
	Search    SearchMetrics
	Backend   BackendMetrics
	Ingestion IngestionMetrics
	Cache     CacheMetrics
	API       APIMetrics
}

// NewMetrics creates every metric group from meter. Returns (nil, nil) when meter is nil (metrics disabled).
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		//nolint:nilnil // intentional: callers use "if metrics != nil" when metrics disabled
		return nil, nil
	}

	search, err := NewSearchMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("search metrics: %w", err)
	}

	backend, err := NewBackendMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("backend metrics: %w", err)
	}

	ingestion, err := NewIngestionMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("ingestion metrics: %w", err)
	}

	cache, err := NewCacheMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("cache metrics: %w", err)
	}

	api, err := NewAPIMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("api metrics: %w", err)
	}

	return &Metrics{
		Search:    search,
		Backend:   backend,
		Ingestion: ingestion,
		Cache:     cache,
		API:       api,
	}, nil
}
