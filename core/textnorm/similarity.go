package textnorm

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Similarity returns 1 - lev(a, b) / max(len(a), len(b)), with lengths and
// edits counted in runes. Two empty strings have similarity 1.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
