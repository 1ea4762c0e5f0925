package collation

import (
	"context"
	"strings"
	"sync/atomic"
)

// positionalAligner lines tokens up by index. Shorter witnesses get omissions.
type positionalAligner struct {
	calls atomic.Int64
	fail  map[string]error // keyed by first witness content
}

func (p *positionalAligner) Align(_ context.Context, witnesses []Witness, _ Options) (*Table, error) {
	p.calls.Add(1)
	if err, ok := p.fail[witnesses[0].Content]; ok {
		return nil, err
	}
	t := &Table{}
	width := 0
	tokens := make([][]string, len(witnesses))
	for i, w := range witnesses {
		t.Witnesses = append(t.Witnesses, w.ID)
		tokens[i] = strings.Fields(w.Content)
		width = max(width, len(tokens[i]))
	}
	for c := 0; c < width; c++ {
		col := make(Column, len(witnesses))
		for i, w := range witnesses {
			if c < len(tokens[i]) {
				col[i] = Cell{{Sigil: w.ID, T: tokens[i][c], N: tokens[i][c]}}
			}
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}
