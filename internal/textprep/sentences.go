package textprep

import (
	"strings"
	"unicode"
)

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sr": true, "jr": true,
	"st": true, "vs": true, "etc": true, "e.g": true, "i.e": true, "a.m": true, "p.m": true,
	"no": true, "approx": true, "inc": true, "ltd": true,
}

// Sentences splits plain text at sentence-ending punctuation followed by
// whitespace. Common abbreviations and decimal numbers do not end a
// sentence. Text without terminal punctuation is returned as one sentence.
func Sentences(s string) []string {
	runes := []rune(strings.TrimSpace(s))

	var out []string
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && isAbbreviation(runes[start:i]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

// isAbbreviation reports whether the word ending the text is a known
// abbreviation.
func isAbbreviation(before []rune) bool {
	fields := strings.Fields(string(before))
	if len(fields) == 0 {
		return false
	}
	word := strings.ToLower(strings.TrimLeft(fields[len(fields)-1], "(\"'"))
	return abbreviations[word]
}
