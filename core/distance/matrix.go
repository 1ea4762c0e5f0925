// Package distance builds pairwise textual-distance matrices between
// manuscripts, either from alignment tables or from reconstructed verse text.
package distance

import (
	"fmt"
	"math"
	"strconv"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
)

// Strategy selects how pairwise distances are measured.
type Strategy string

const (
	// StrategyAlignment is the token disagreement ratio over aligned columns.
	StrategyAlignment Strategy = "alignment"
	// StrategyText is the mean normalized edit distance of reconstructed verses.
	StrategyText Strategy = "text"
)

// ParseStrategy accepts the strategy names used by the CLI and API.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "alignment", "a", "A":
		return StrategyAlignment, nil
	case "text", "b", "B", "levenshtein":
		return StrategyText, nil
	default:
		return "", errors.NewUnsupported("distance strategy", s)
	}
}

// Matrix is a symmetric N×N distance matrix with zero diagonal.
type Matrix struct {
	IDs      []string    `json:"ids"`
	Labels   []string    `json:"labels"`
	Values   [][]float64 `json:"values"`
	Counts   [][]int     `json:"counts"`
	Imputed  [][]bool    `json:"imputed"`
	Strategy Strategy    `json:"strategy"`
	// Anomalies counts non-finite entries replaced during sanitization.
	Anomalies int `json:"anomalies"`
}

// Len returns the number of manuscripts.
func (m *Matrix) Len() int { return len(m.Labels) }

// Condensed returns the upper triangle in row-major order.
func (m *Matrix) Condensed() []float64 {
	n := m.Len()
	out := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out = append(out, m.Values[i][j])
		}
	}
	return out
}

// ImputedPairs returns the number of unordered pairs whose distance was imputed.
func (m *Matrix) ImputedPairs() int {
	count := 0
	for i := range m.Imputed {
		for j := i + 1; j < len(m.Imputed[i]); j++ {
			if m.Imputed[i][j] {
				count++
			}
		}
	}
	return count
}

// Validate checks shape, symmetry, the zero diagonal and the [0,1] range.
func (m *Matrix) Validate() error {
	n := m.Len()
	if len(m.IDs) != n || len(m.Values) != n {
		return errors.NewValidation("matrix", fmt.Sprintf("have %d labels, %d ids, %d rows", n, len(m.IDs), len(m.Values)))
	}
	for i := 0; i < n; i++ {
		if len(m.Values[i]) != n {
			return errors.NewValidation("matrix", fmt.Sprintf("row %d has %d values, want %d", i, len(m.Values[i]), n))
		}
		if m.Values[i][i] != 0 {
			return errors.NewValidation("matrix", fmt.Sprintf("diagonal entry %d is %v", i, m.Values[i][i]))
		}
		for j := 0; j < n; j++ {
			v := m.Values[i][j]
			if math.IsNaN(v) || v < 0 || v > 1 {
				return errors.NewValidation("matrix", fmt.Sprintf("entry (%d,%d) = %v out of range", i, j, v))
			}
			if v != m.Values[j][i] {
				return errors.NewValidation("matrix", fmt.Sprintf("entry (%d,%d) is not symmetric", i, j))
			}
		}
	}
	return nil
}

// UniqueLabels returns labels with repeats disambiguated as label_1, label_2, ...
// The first occurrence keeps its name. Generated names never collide with
// labels already in use.
func UniqueLabels(labels []string) []string {
	used := make(map[string]bool, len(labels))
	for _, l := range labels {
		used[l] = false
	}
	next := make(map[string]int)
	out := make([]string, len(labels))
	for i, l := range labels {
		if !used[l] {
			used[l] = true
			out[i] = l
			continue
		}
		for {
			next[l]++
			candidate := l + "_" + strconv.Itoa(next[l])
			if _, taken := used[candidate]; !taken {
				used[candidate] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}

func newSquare[T any](n int) [][]T {
	out := make([][]T, n)
	for i := range out {
		out[i] = make([]T, n)
	}
	return out
}
