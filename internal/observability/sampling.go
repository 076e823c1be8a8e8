package observability

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Standard OTel sampler variables, plus a ratio for the root spans of background jobs
// (ingest, reembed, narrative, pending sweep).
const (
	envTracesSampler    = "OTEL_TRACES_SAMPLER"
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
	envJobTracesRatio   = "PP_JOB_TRACES_RATIO"
)

// defaultTraceIDRatio is used when a ratio variable is missing or invalid.
const defaultTraceIDRatio = 1.0

// newSampler returns the request sampler from OTEL_TRACES_SAMPLER and OTEL_TRACES_SAMPLER_ARG,
// and samples root job spans at PP_JOB_TRACES_RATIO when it is set.
func newSampler() sdktrace.Sampler {
	base := samplerFromEnv(os.Getenv(envTracesSampler), os.Getenv(envTracesSamplerArg))

	ratio, ok := os.LookupEnv(envJobTracesRatio)
	if !ok {
		return base
	}

	return jobSampler{base: base, jobs: sdktrace.TraceIDRatioBased(parseTraceIDRatio(ratio))}
}

// samplerFromEnv supports always_on, always_off, traceidratio, parentbased_traceidratio,
// parentbased_always_on and parentbased_always_off. Empty or unknown => parentbased_always_on.
func samplerFromEnv(name, arg string) sdktrace.Sampler {
	switch name {
	case "always_on":
		return sdktrace.AlwaysSample()
	case "always_off":
		return sdktrace.NeverSample()
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(parseTraceIDRatio(arg))
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(parseTraceIDRatio(arg)))
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

func parseTraceIDRatio(s string) float64 {
	if s == "" {
		return defaultTraceIDRatio
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return defaultTraceIDRatio
	}

	return f
}

// jobSampler routes root spans named job.* to the job sampler; everything else, including the
// children of a sampled job, goes to base.
type jobSampler struct {
	base sdktrace.Sampler
	jobs sdktrace.Sampler
}

func (s jobSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if strings.HasPrefix(p.Name, JobSpanPrefix) && !trace.SpanContextFromContext(p.ParentContext).IsValid() {
		return s.jobs.ShouldSample(p)
	}

	return s.base.ShouldSample(p)
}

func (s jobSampler) Description() string {
	return fmt.Sprintf("JobSampler{base:%s,jobs:%s}", s.base.Description(), s.jobs.Description())
}
