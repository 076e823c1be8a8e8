package taxonomy

import (
	"regexp"
	"strings"
	"unicode"
)

// versionPattern matches version-like tokens such as 17, v2.7, 3.11.4 and 17+.
var versionPattern = regexp.MustCompile(`^v?\d+(\.\d+)*\+?$`)

// token is one word of a scanned text with its byte span.
type token struct {
	raw   string
	norm  string
	start int
	end   int
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("+#._-", r)
}

// tokenize splits text into tokens. Separators are whitespace and punctuation other than + # . _ -,
// and "/" so that "CI/CD" yields two tokens.
func tokenize(text string) []token {
	var (
		tokens []token
		start  = -1
	)

	flush := func(end int) {
		if start < 0 {
			return
		}

		if t, ok := makeToken(text, start, end); ok {
			tokens = append(tokens, t)
		}

		start = -1
	}

	for i, r := range text {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}

			continue
		}

		flush(i)
	}

	flush(len(text))

	return tokens
}

func makeToken(text string, start, end int) (token, bool) {
	raw := text[start:end]

	// Leading '.' survives only in front of a letter (".NET").
	for len(raw) > 0 && (raw[0] == '-' || raw[0] == '_' || (raw[0] == '.' && (len(raw) < 2 || !isASCIILetter(raw[1])))) {
		raw = raw[1:]
		start++
	}

	for len(raw) > 0 && strings.ContainsRune(".-_", rune(raw[len(raw)-1])) {
		raw = raw[:len(raw)-1]
		end--
	}

	if raw == "" {
		return token{}, false
	}

	return token{raw: raw, norm: normalizeToken(raw), start: start, end: end}, true
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// normalizeToken lowercases a token and removes inner '.', '-' and '_'. A leading '.' becomes "dot".
func normalizeToken(raw string) string {
	s := strings.ToLower(raw)
	if strings.HasPrefix(s, ".") {
		s = "dot" + s[1:]
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '_':
			return -1
		default:
			return r
		}
	}, s)
}

// NormalizeTerm returns the case- and punctuation-insensitive lookup key for a term.
// "Node.js", "NodeJS" and "node-js" all normalize to "nodejs"; "CI/CD" becomes "ci cd".
func NormalizeTerm(term string) string {
	tokens := tokenize(term)
	parts := make([]string, 0, len(tokens))

	for _, t := range tokens {
		if t.norm != "" {
			parts = append(parts, t.norm)
		}
	}

	return strings.Join(parts, " ")
}

// Slug returns a stable key for a technology name ("Spring Boot" -> "spring-boot").
func Slug(name string) string {
	return strings.ReplaceAll(NormalizeTerm(name), " ", "-")
}

// isVersionToken reports whether raw looks like a version string.
func isVersionToken(raw string) bool {
	return versionPattern.MatchString(raw)
}
