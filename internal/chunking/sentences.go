package chunking

import (
	"regexp"
	"strings"
)

var (
	blankLine   = regexp.MustCompile(`\n\s*\n`)
	bulletLine  = regexp.MustCompile(`\n[ \t]*[-*•][ \t]`)
	sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+`)
)

// abbreviations never end a sentence.
var abbreviations = []string{
	"e.g.", "i.e.", "etc.", "vs.", "inc.", "corp.", "u.s.", "no.", "dr.", "mr.", "ms.", "st.", "approx.",
}

// splitParagraphs splits text at blank lines and before bullet lines. Bullet markers stay in
// the text, so the fields of all paragraphs are exactly the fields of text.
func splitParagraphs(text string) []string {
	var out []string

	for _, block := range blankLine.Split(text, -1) {
		start := 0
		for _, loc := range bulletLine.FindAllStringIndex(block, -1) {
			out = append(out, block[start:loc[0]])
			start = loc[0] + 1
		}

		out = append(out, block[start:])
	}

	return out
}

// splitSentences splits text into trimmed sentences in order.
func splitSentences(text string) []string {
	var out []string

	for _, para := range splitParagraphs(text) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		start := 0
		for _, loc := range sentenceEnd.FindAllStringIndex(para, -1) {
			if endsWithAbbreviation(para[start:loc[0]+1]) {
				continue
			}

			if s := strings.TrimSpace(para[start:loc[1]]); s != "" {
				out = append(out, s)
			}

			start = loc[1]
		}

		if s := strings.TrimSpace(para[start:]); s != "" {
			out = append(out, s)
		}
	}

	return out
}

func endsWithAbbreviation(s string) bool {
	lower := strings.ToLower(s)

	for _, abbr := range abbreviations {
		if !strings.HasSuffix(lower, abbr) {
			continue
		}

		// Require a word boundary before the abbreviation.
		head := lower[:len(lower)-len(abbr)]
		if head == "" || strings.HasSuffix(head, " ") || strings.HasSuffix(head, "(") {
			return true
		}
	}

	return false
}
