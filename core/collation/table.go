// Package collation defines the alignment table produced by an alignment oracle
// and the adapter and batch collator that obtain one table per verse.
package collation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/textnorm"
)

// Token is a single aligned word as returned by CollateX.
type Token struct {
	Sigil string `json:"_sigil,omitempty"`
	T     string `json:"t"`
	N     string `json:"n,omitempty"`
}

// Norm returns the normalized form, deriving it from the surface form when the
// oracle did not supply one.
func (t Token) Norm() string {
	if t.N != "" {
		return t.N
	}
	return textnorm.Normalize(t.T)
}

// Cell holds the tokens one witness contributes to a column.
// A nil or empty cell is an omission.
type Cell []Token

// Empty reports whether the cell is an omission.
func (c Cell) Empty() bool { return len(c) == 0 }

// Normalized returns the normalized token sequence of the cell.
func (c Cell) Normalized() []string {
	out := make([]string, len(c))
	for i, tok := range c {
		out[i] = tok.Norm()
	}
	return out
}

// Equal compares two cells by their normalized token sequences.
func (c Cell) Equal(other Cell) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i].Norm() != other[i].Norm() {
			return false
		}
	}
	return true
}

// Column is one aligned position; cell index equals witness index.
type Column []Cell

// Populated returns the number of non-empty cells.
func (c Column) Populated() int {
	n := 0
	for _, cell := range c {
		if !cell.Empty() {
			n++
		}
	}
	return n
}

// Table is a column-major alignment table for one verse.
type Table struct {
	Witnesses []string `json:"witnesses"`
	Columns   []Column `json:"table"`
}

// Validate checks that every column has exactly one cell per witness.
func (t *Table) Validate() error {
	if t == nil {
		return errors.NewValidation("table", "nil alignment table")
	}
	if len(t.Witnesses) == 0 {
		return errors.NewValidation("witnesses", "alignment table has no witnesses")
	}
	for i, col := range t.Columns {
		if len(col) != len(t.Witnesses) {
			return errors.NewValidation("table",
				fmt.Sprintf("column %d has %d cells, want %d", i, len(col), len(t.Witnesses)))
		}
	}
	return nil
}

// WitnessIndex returns the position of sigil in the witness list, or -1.
func (t *Table) WitnessIndex(sigil string) int {
	for i, w := range t.Witnesses {
		if w == sigil {
			return i
		}
	}
	return -1
}

// Tokens returns the normalized tokens of witness w in column order.
func (t *Table) Tokens(w int) []string {
	var out []string
	if w < 0 || w >= len(t.Witnesses) {
		return out
	}
	for _, col := range t.Columns {
		if w < len(col) {
			out = append(out, col[w].Normalized()...)
		}
	}
	return out
}

// Text returns the reconstructed normalized text of witness w.
func (t *Table) Text(w int) string {
	return strings.Join(t.Tokens(w), " ")
}

// ParseTable decodes the CollateX JSON form and validates its shape.
func ParseTable(data []byte) (*Table, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.WrapParse("alignment table", "", err)
	}
	if err := t.Validate(); err != nil {
		return nil, errors.WrapParse("alignment table", "", err)
	}
	return &t, nil
}

// TableFromValue accepts the representations a table may arrive in: a table
// value or pointer, raw JSON bytes or string, or a generic decoded JSON map.
func TableFromValue(v any) (*Table, error) {
	switch x := v.(type) {
	case *Table:
		if err := x.Validate(); err != nil {
			return nil, err
		}
		return x, nil
	case Table:
		if err := x.Validate(); err != nil {
			return nil, err
		}
		return &x, nil
	case []byte:
		return ParseTable(x)
	case string:
		return ParseTable([]byte(x))
	case json.RawMessage:
		return ParseTable(x)
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, errors.WrapParse("alignment table", "", err)
		}
		return ParseTable(data)
	default:
		return nil, errors.NewParse("alignment table", "", fmt.Sprintf("unsupported value of type %T", v))
	}
}
