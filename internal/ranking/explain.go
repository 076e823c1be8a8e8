package ranking

import (
	"fmt"
	"sort"
	"strings"
)

// bulletShare is the minimum share of the total score a facet needs to earn a bullet.
const bulletShare = 0.15

type facet int

const (
	facetTechnology facet = iota
	facetDomain
	facetContractSize
	facetCustomerType
)

// explain builds one bullet per facet contributing at least bulletShare of the score, largest
// contribution first. The output depends only on the scored inputs.
func explain(s *Scored) []string {
	type contribution struct {
		facet facet
		value float64
	}

	total := s.Components.Sum()
	if total <= 0 {
		return []string{}
	}

	all := []contribution{
		{facetTechnology, s.Components.Technology},
		{facetDomain, s.Components.Domain},
		{facetContractSize, s.Components.ContractSize},
		{facetCustomerType, s.Components.CustomerType},
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].value > all[j].value })

	bullets := []string{}
	techExplained := false

	for _, c := range all {
		if c.value <= 0 || c.value < bulletShare*total {
			continue
		}

		switch c.facet {
		case facetTechnology:
			bullets = append(bullets, technologyBullet(s))
			techExplained = true
		case facetDomain:
			bullets = append(bullets, domainBullet(s))
		case facetContractSize:
			bullets = append(bullets, sizeBullet(s))
		case facetCustomerType:
			bullets = append(bullets, customerBullet(s))
		}
	}

	if gap := versionGaps(s.evidence); !techExplained && gap != "" {
		bullets = append(bullets, "Version gap: "+gap)
	}

	return bullets
}

func technologyBullet(s *Scored) string {
	names := make([]string, 0, len(s.evidence))
	for _, ev := range s.evidence {
		name := ev.req.name
		if ev.version != "" {
			name += " " + ev.version
		}

		names = append(names, name)
	}

	bullet := fmt.Sprintf("Technology match: %s (%d of %d required technologies)",
		strings.Join(names, ", "), len(s.evidence), len(s.requirements))

	if gap := versionGaps(s.evidence); gap != "" {
		bullet += "; version gap: " + gap
	}

	return bullet
}

// versionGaps describes requirements met only by an older version, e.g. "Java 8 on record, Java 17+ required".
func versionGaps(evidence []techEvidence) string {
	var gaps []string

	for _, ev := range evidence {
		if !ev.gap {
			continue
		}

		required := ev.req.parsed
		required.Term = ev.req.name
		gaps = append(gaps, fmt.Sprintf("%s %s on record, %s required", ev.req.name, ev.version, required))
	}

	return strings.Join(gaps, "; ")
}

func domainBullet(s *Scored) string {
	bullet := fmt.Sprintf("Domain similarity %.2f to the solicitation", s.domainSimilarity)

	if year := periodYear(s.Entry.Record.PeriodEndOrZero()); year > 0 {
		bullet += fmt.Sprintf(", with performance through %d", year)
	}

	return bullet
}

func sizeBullet(s *Scored) string {
	return fmt.Sprintf("Contract value %s is close to the expected size (proximity %.2f)",
		formatMoney(s.Entry.Record.ContractValue), s.sizeFacet)
}

func customerBullet(s *Scored) string {
	if s.customerMatch {
		return "Customer type match: " + s.Entry.Record.CustomerType
	}

	return "Customer type differs: " + s.Entry.Record.CustomerType
}

// formatMoney renders dollar amounts compactly: $2.5M, $850K, $1.2B.
func formatMoney(v float64) string {
	switch {
	case v >= 1e9:
		return "$" + trimZero(fmt.Sprintf("%.1f", v/1e9)) + "B"
	case v >= 1e6:
		return "$" + trimZero(fmt.Sprintf("%.1f", v/1e6)) + "M"
	case v >= 1e3:
		return "$" + trimZero(fmt.Sprintf("%.0f", v/1e3)) + "K"
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}
