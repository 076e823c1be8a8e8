package ranking

import (
	"math"

	"github.com/google/uuid"

	"github.com/jzebell/gov-proposal-ai-sub006/internal/catalog"
	"github.com/jzebell/gov-proposal-ai-sub006/internal/taxonomy"
)

// Per-technology match credit.
const (
	fullMatch = 1.0
	// versionGapMatch is a same-family match below the required version.
	versionGapMatch = 0.5
	// unversionedMatch is a record that demonstrates the technology without stating a version
	// against a versioned requirement.
	unversionedMatch = 0.75

	customerTypeMatch    = 1.0
	customerTypeMismatch = 0.3
)

// requirement is a query technology resolved against the taxonomy.
type requirement struct {
	parsed       taxonomy.Requirement
	technologyID uuid.UUID
	resolved     bool
	name         string
}

// techEvidence records how one requirement was met by a record.
type techEvidence struct {
	req     requirement
	credit  float64
	version string
	gap     bool
}

// techOverlap returns the version-aware share of requirements the record meets. Every requirement
// counts in the denominator, unresolvable ones included.
func techOverlap(reqs []requirement, entry *catalog.RecordEntry) (float64, []techEvidence) {
	if len(reqs) == 0 {
		return 0, nil
	}

	var (
		total    float64
		evidence []techEvidence
	)

	for _, req := range reqs {
		if !req.resolved {
			continue
		}

		assoc, ok := entry.Association(req.technologyID)
		if !ok {
			continue
		}

		ev := techEvidence{req: req, version: assoc.Version}

		switch {
		case req.parsed.Version == "":
			ev.credit = fullMatch
		case assoc.Version == "":
			ev.credit = unversionedMatch
		case req.parsed.Satisfies(assoc.Version):
			ev.credit = fullMatch
		default:
			ev.credit = versionGapMatch
			ev.gap = true
		}

		total += ev.credit
		evidence = append(evidence, ev)
	}

	return total / float64(len(reqs)), evidence
}

// sizeProximity is 1 - min(1, |ln(mid) - ln(value)| / ln(10)): 1.0 for an exact match, 0 at an
// order of magnitude apart.
func sizeProximity(mid, value float64) float64 {
	if mid <= 0 || value <= 0 {
		return 0
	}

	d := math.Abs(math.Log(mid)-math.Log(value)) / math.Log(10)

	return 1 - math.Min(1, d)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
