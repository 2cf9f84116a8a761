package textprep

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical form of text used in cache keys: NFC
// composed, case folded, with runs of whitespace collapsed to one space.
// Texts that differ only in these respects synthesize to the same audio.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
