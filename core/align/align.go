// Package align is the built-in alignment oracle: a progressive
// Needleman-Wunsch aligner over whitespace tokens.
//
// The first witness seeds the column list. Every later witness is aligned
// against the columns built so far; tokens placed opposite a gap open a new
// column in which all earlier witnesses are omitted.
package align

import (
	"context"
	"strings"

	"github.com/FocuswithJustin/JuniperStemma/core/collation"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/textnorm"
)

// Scoring used by the dynamic program.
const (
	MatchScore    = 2
	NearScore     = 1
	MismatchScore = -1
	GapScore      = -1
)

// NearThreshold is the minimum normalized similarity for a near match.
const NearThreshold = 0.5

// Aligner implements collation.Aligner.
type Aligner struct{}

// New returns the built-in aligner.
func New() *Aligner { return &Aligner{} }

// Align aligns the witnesses in order. It never calls out and only fails on
// empty input or a cancelled context.
func (a *Aligner) Align(ctx context.Context, witnesses []collation.Witness, opts collation.Options) (*collation.Table, error) {
	if len(witnesses) == 0 {
		return nil, errors.NewValidation("witnesses", "nothing to align")
	}

	b := &builder{opts: opts}
	for _, w := range witnesses {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.add(w)
	}

	table := &collation.Table{Columns: b.columns}
	for _, w := range witnesses {
		table.Witnesses = append(table.Witnesses, w.ID)
	}
	if opts.Segmentation {
		table.Columns = mergeAgreeing(table.Columns)
	}
	return table, nil
}

type builder struct {
	opts    collation.Options
	columns []collation.Column
	count   int
}

func (b *builder) score(col collation.Column, token string) int {
	best := MismatchScore
	for _, cell := range col {
		for _, tok := range cell {
			n := tok.Norm()
			if n == token {
				return MatchScore
			}
			if b.opts.NearMatch && textnorm.Similarity(n, token) >= NearThreshold {
				best = NearScore
			}
		}
	}
	return best
}

func (b *builder) add(w collation.Witness) {
	tokens := strings.Fields(w.Content)
	k := b.count
	b.count++

	if k == 0 {
		for _, tok := range tokens {
			b.columns = append(b.columns, collation.Column{cellFor(w.ID, tok)})
		}
		return
	}

	m, n := len(b.columns), len(tokens)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
		dp[i][0] = i * GapScore
	}
	for j := 0; j <= n; j++ {
		dp[0][j] = j * GapScore
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			diag := dp[i-1][j-1] + b.score(b.columns[i-1], tokens[j-1])
			up := dp[i-1][j] + GapScore
			left := dp[i][j-1] + GapScore
			dp[i][j] = max(diag, up, left)
		}
	}

	// Trace back, preferring diagonal, then column-without-token, then new column.
	var out []collation.Column
	i, j := m, n
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && dp[i][j] == dp[i-1][j-1]+b.score(b.columns[i-1], tokens[j-1]):
			out = append(out, append(b.columns[i-1], cellFor(w.ID, tokens[j-1])))
			i--
			j--
		case i > 0 && dp[i][j] == dp[i-1][j]+GapScore:
			out = append(out, append(b.columns[i-1], nil))
			i--
		default:
			col := make(collation.Column, k, k+1)
			out = append(out, append(col, cellFor(w.ID, tokens[j-1])))
			j--
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	b.columns = out
}

func cellFor(sigil, token string) collation.Cell {
	return collation.Cell{{Sigil: sigil, T: token, N: token}}
}

// mergeAgreeing joins runs of columns in which every witness is present and
// agrees, the way segmented collation output groups unchanged text.
func mergeAgreeing(cols []collation.Column) []collation.Column {
	var out []collation.Column
	for _, col := range cols {
		if len(out) > 0 && agrees(col) && agrees(out[len(out)-1]) {
			last := out[len(out)-1]
			for w := range last {
				last[w] = append(last[w], col[w]...)
			}
			continue
		}
		cp := make(collation.Column, len(col))
		for w, cell := range col {
			cp[w] = append(collation.Cell(nil), cell...)
		}
		out = append(out, cp)
	}
	return out
}

func agrees(col collation.Column) bool {
	if len(col) == 0 {
		return false
	}
	for _, cell := range col {
		if cell.Empty() || !cell.Equal(col[0]) {
			return false
		}
	}
	return true
}
