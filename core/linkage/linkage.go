// Package linkage performs agglomerative hierarchical clustering over a
// condensed distance matrix and reports merges in the SciPy linkage layout:
// leaves are 0..n-1, the cluster formed by step i is n+i, and the root is 2n-2.
package linkage

import (
	"errors"
	"fmt"
	"math"
	"strings"

	stemmaerrors "github.com/FocuswithJustin/JuniperStemma/core/errors"
)

// ErrUnknownMethod is returned for a method name Linkage does not implement.
var ErrUnknownMethod = errors.New("unknown linkage method")

// Methods lists the supported linkage methods.
var Methods = []string{"single", "complete", "average", "weighted", "centroid", "median", "ward"}

// Step is one merge.
type Step struct {
	Left     int     `json:"left"`
	Right    int     `json:"right"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// Tree is a complete merge history for N leaves.
type Tree struct {
	N     int    `json:"n"`
	Steps []Step `json:"steps"`
}

// Root returns the id of the final cluster.
func (t Tree) Root() int { return 2*t.N - 2 }

// Children returns the two children of cluster id, or ok=false for a leaf.
func (t Tree) Children(id int) (left, right int, ok bool) {
	if id < t.N || id > t.Root() {
		return 0, 0, false
	}
	s := t.Steps[id-t.N]
	return s.Left, s.Right, true
}

// Height returns the merge distance of cluster id; leaves have height 0.
func (t Tree) Height(id int) float64 {
	if id < t.N {
		return 0
	}
	return t.Steps[id-t.N].Distance
}

// Size returns the number of leaves under cluster id.
func (t Tree) Size(id int) int {
	if id < t.N {
		return 1
	}
	return t.Steps[id-t.N].Size
}

// Oracle implements the clustering oracle consumed by the tree builder.
type Oracle struct{}

// Linkage calls the package-level Linkage.
func (Oracle) Linkage(condensed []float64, method string) (Tree, error) {
	return Linkage(condensed, method)
}

// update is a Lance-Williams recurrence: the distance from k to the union of
// i and j, given the sizes and pairwise distances involved.
type update func(dki, dkj, dij float64, ni, nj, nk int) float64

var updates = map[string]update{
	"single": func(dki, dkj, _ float64, _, _, _ int) float64 {
		return math.Min(dki, dkj)
	},
	"complete": func(dki, dkj, _ float64, _, _, _ int) float64 {
		return math.Max(dki, dkj)
	},
	"average": func(dki, dkj, _ float64, ni, nj, _ int) float64 {
		return (float64(ni)*dki + float64(nj)*dkj) / float64(ni+nj)
	},
	"weighted": func(dki, dkj, _ float64, _, _, _ int) float64 {
		return (dki + dkj) / 2
	},
	"centroid": func(dki, dkj, dij float64, ni, nj, _ int) float64 {
		fi, fj := float64(ni), float64(nj)
		s := fi + fj
		return sqrt0((fi*dki*dki+fj*dkj*dkj)/s - fi*fj*dij*dij/(s*s))
	},
	"median": func(dki, dkj, dij float64, _, _, _ int) float64 {
		return sqrt0(dki*dki/2 + dkj*dkj/2 - dij*dij/4)
	},
	"ward": func(dki, dkj, dij float64, ni, nj, nk int) float64 {
		fi, fj, fk := float64(ni), float64(nj), float64(nk)
		return sqrt0(((fk+fi)*dki*dki + (fk+fj)*dkj*dkj - fk*dij*dij) / (fi + fj + fk))
	},
}

func sqrt0(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

// Linkage clusters the observations described by a condensed distance matrix.
// Ties are broken towards the pair with the lowest cluster ids.
func Linkage(condensed []float64, method string) (Tree, error) {
	upd, ok := updates[strings.ToLower(method)]
	if !ok {
		return Tree{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	n, err := observations(len(condensed))
	if err != nil {
		return Tree{}, err
	}
	for i, v := range condensed {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Tree{}, stemmaerrors.NewValidation("condensed", fmt.Sprintf("entry %d is %v", i, v))
		}
	}

	d := Squareform(condensed)
	ids := make([]int, n)
	sizes := make([]int, n)
	active := make([]bool, n)
	for i := range ids {
		ids[i], sizes[i], active[i] = i, 1, true
	}

	tree := Tree{N: n, Steps: make([]Step, 0, n-1)}
	for step := 0; step < n-1; step++ {
		a, b := -1, -1
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if a < 0 || d[i][j] < d[a][b] || (d[i][j] == d[a][b] && lowerPair(ids[i], ids[j], ids[a], ids[b])) {
					a, b = i, j
				}
			}
		}

		left, right := min(ids[a], ids[b]), max(ids[a], ids[b])
		dij := d[a][b]
		tree.Steps = append(tree.Steps, Step{Left: left, Right: right, Distance: dij, Size: sizes[a] + sizes[b]})

		for k := 0; k < n; k++ {
			if !active[k] || k == a || k == b {
				continue
			}
			v := upd(d[k][a], d[k][b], dij, sizes[a], sizes[b], sizes[k])
			d[k][a], d[a][k] = v, v
		}
		ids[a] = n + step
		sizes[a] += sizes[b]
		active[b] = false
	}
	return tree, nil
}

func lowerPair(i, j, a, b int) bool {
	pi, qi := min(i, j), max(i, j)
	pa, qa := min(a, b), max(a, b)
	if pi != pa {
		return pi < pa
	}
	return qi < qa
}

// observations recovers n from a condensed length n(n-1)/2.
func observations(length int) (int, error) {
	n := int(math.Round((1 + math.Sqrt(1+8*float64(length))) / 2))
	if n < 2 || n*(n-1)/2 != length {
		return 0, stemmaerrors.NewValidation("condensed",
			fmt.Sprintf("length %d is not n(n-1)/2 for any n >= 2", length))
	}
	return n, nil
}

// CondensedIndex returns the position of (i, j), i != j, in a condensed
// matrix of n observations.
func CondensedIndex(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + (j - i - 1)
}

// Squareform expands a condensed matrix into a symmetric square matrix.
// It panics if the length is not triangular.
func Squareform(condensed []float64) [][]float64 {
	n, err := observations(len(condensed))
	if err != nil {
		panic(err)
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := condensed[CondensedIndex(n, i, j)]
			out[i][j], out[j][i] = v, v
		}
	}
	return out
}
