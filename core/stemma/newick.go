package stemma

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/linkage"
)

// SanitizeLabel replaces characters that are structural in Newick, along with
// whitespace, quotes and brackets, by '_'.
func SanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '(', ')', ',', ':', ';', '\'', '"', '[', ']':
			return '_'
		}
		if unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, label)
}

// LeafNames returns the Newick leaf token for each label. Labels are
// sanitized before being made unique, so "MS A" and "MS_A" stay distinct.
func LeafNames(labels []string) []string {
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = SanitizeLabel(l)
	}
	return distance.UniqueLabels(names)
}

// Newick serializes the tree rooted at 2N-2. Both children of a merge get
// half the merge distance as branch length.
func Newick(tree linkage.Tree, labels []string) string {
	var b strings.Builder
	writeNewick(&b, tree, LeafNames(labels), tree.Root())
	b.WriteByte(';')
	return b.String()
}

func writeNewick(b *strings.Builder, tree linkage.Tree, labels []string, id int) {
	left, right, ok := tree.Children(id)
	if !ok {
		b.WriteString(labels[id])
		return
	}
	h := strconv.FormatFloat(tree.Height(id)/2, 'g', -1, 64)
	b.WriteByte('(')
	writeNewick(b, tree, labels, left)
	b.WriteByte(':')
	b.WriteString(h)
	b.WriteByte(',')
	writeNewick(b, tree, labels, right)
	b.WriteByte(':')
	b.WriteString(h)
	b.WriteByte(')')
}
