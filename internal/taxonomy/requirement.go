package taxonomy

import (
	"strconv"
	"strings"
)

// Requirement is a parsed technology requirement such as "Java 17+" or "PostgreSQL 15".
type Requirement struct {
	Term    string
	Version string
	AtLeast bool
}

// atLeastPhrases mark a minimum version when they follow it ("PostgreSQL 14 or later").
var atLeastPhrases = []string{"or later", "or higher", "or newer", "or above", "and above", "and later"}

// ParseRequirement splits a requirement string into its term and optional trailing version.
// "Java 17+" yields {Java, 17, true}; "PostgreSQL 14 or later" yields {PostgreSQL, 14, true};
// "Spring Boot" yields {Spring Boot, "", false}.
func ParseRequirement(s string) Requirement {
	s = strings.TrimSpace(s)
	body, orLater := trimAtLeastPhrase(s)
	tokens := tokenize(body)

	if len(tokens) < 2 {
		return Requirement{Term: s}
	}

	last := tokens[len(tokens)-1]
	if !isVersionToken(last.raw) {
		return Requirement{Term: s}
	}

	version := strings.TrimPrefix(strings.ToLower(last.raw), "v")

	return Requirement{
		Term:    strings.TrimSpace(body[:last.start]),
		Version: strings.TrimSuffix(version, "+"),
		AtLeast: orLater || strings.HasSuffix(version, "+"),
	}
}

// trimAtLeastPhrase removes a trailing minimum-version phrase and reports whether one was found.
func trimAtLeastPhrase(s string) (string, bool) {
	for _, phrase := range atLeastPhrases {
		n := len(phrase) + 1
		if len(s) > n && strings.EqualFold(s[len(s)-n:], " "+phrase) {
			return strings.TrimSpace(s[:len(s)-n]), true
		}
	}

	return s, false
}

// String renders the requirement back in its canonical form.
func (r Requirement) String() string {
	if r.Version == "" {
		return r.Term
	}

	if r.AtLeast {
		return r.Term + " " + r.Version + "+"
	}

	return r.Term + " " + r.Version
}

// Satisfies reports whether a record's version meets the requirement. An exact requirement compares
// only as many segments as it specifies, so "17" is satisfied by "17.0.2".
func (r Requirement) Satisfies(have string) bool {
	if r.Version == "" {
		return true
	}

	if have == "" {
		return false
	}

	if r.AtLeast {
		return compareVersions(have, r.Version) >= 0
	}

	want := versionSegments(r.Version)
	got := versionSegments(have)

	for i, w := range want {
		if i >= len(got) || got[i] != w {
			return false
		}
	}

	return true
}

func versionSegments(v string) []int {
	v = strings.TrimSuffix(strings.TrimPrefix(strings.ToLower(v), "v"), "+")
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))

	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}

		out = append(out, n)
	}

	return out
}

// compareVersions orders dotted versions numerically. The empty version sorts first.
func compareVersions(a, b string) int {
	sa, sb := versionSegments(a), versionSegments(b)

	for i := 0; i < len(sa) || i < len(sb); i++ {
		var x, y int
		if i < len(sa) {
			x = sa[i]
		} else if i < len(sb) && len(sa) == 0 {
			return -1
		}

		if i < len(sb) {
			y = sb[i]
		} else if len(sb) == 0 {
			return 1
		}

		if x != y {
			if x < y {
				return -1
			}

			return 1
		}
	}

	return 0
}

// CompareVersions orders dotted versions numerically.
func CompareVersions(a, b string) int {
	return compareVersions(a, b)
}
