package stemma

import (
	"github.com/FocuswithJustin/JuniperStemma/core/linkage"
)

// Leaf spacing follows the usual dendrogram convention: leaf k sits at 5+10k.
const (
	leafSpacing = 10.0
	leafOffset  = 5.0
)

// ColorThresholdRatio colors subtrees merged below this share of the largest
// merge distance.
const ColorThresholdRatio = 0.7

// Link is the U-shaped connector drawn for one merge. Points run from the
// first child up to the merge height and back down to the second child.
type Link struct {
	Cluster  int
	Distance [4]float64
	Position [4]float64
	// Color is 0 for links above the threshold, or a 1-based subtree color.
	Color int
}

// DendrogramLayout holds everything a renderer needs, in data coordinates:
// distance grows away from the leaves, position runs along the leaf axis.
type DendrogramLayout struct {
	N           int
	Leaves      []int
	Labels      []string
	Positions   []float64
	Links       []Link
	MaxDistance float64
	Threshold   float64
}

// Span returns the extent of the leaf axis.
func (l *DendrogramLayout) Span() float64 { return float64(l.N) * leafSpacing }

// Layout positions the tree. At every merge the child that merged higher is
// placed first; leaves are spaced evenly and internal nodes sit at the midpoint
// of their children.
func Layout(tree linkage.Tree, labels []string) *DendrogramLayout {
	l := &DendrogramLayout{N: tree.N}
	for _, s := range tree.Steps {
		l.MaxDistance = max(l.MaxDistance, s.Distance)
	}
	l.Threshold = ColorThresholdRatio * l.MaxDistance

	color := 0
	var walk func(id, inherited int) float64
	walk = func(id, inherited int) float64 {
		first, second, ok := tree.Children(id)
		if !ok {
			pos := leafOffset + leafSpacing*float64(len(l.Leaves))
			l.Leaves = append(l.Leaves, id)
			l.Labels = append(l.Labels, labels[id])
			l.Positions = append(l.Positions, pos)
			return pos
		}
		if tree.Height(second) > tree.Height(first) {
			first, second = second, first
		}

		c := inherited
		if c == 0 && tree.Height(id) < l.Threshold {
			color++
			c = color
		}
		p1 := walk(first, c)
		p2 := walk(second, c)
		h := tree.Height(id)
		l.Links = append(l.Links, Link{
			Cluster:  id,
			Distance: [4]float64{tree.Height(first), h, h, tree.Height(second)},
			Position: [4]float64{p1, p1, p2, p2},
			Color:    c,
		})
		return (p1 + p2) / 2
	}
	walk(tree.Root(), 0)
	return l
}
