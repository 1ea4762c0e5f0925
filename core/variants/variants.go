// Package variants extracts position-level disagreements from alignment tables.
package variants

import (
	"encoding/json"
	"sort"

	"github.com/FocuswithJustin/JuniperStemma/core/collation"
)

// Difference is one disagreeing token slot of one column.
//
// Forms maps witness sigil to normalized token for every witness that has a
// token at the slot. When some witness has none, Partial is set and Cells
// carries the raw column.
type Difference struct {
	Position int
	Slot     int
	Forms    map[string]string
	Partial  bool
	Cells    []collation.Cell
}

type differenceJSON struct {
	Position    int               `json:"position"`
	Slot        int               `json:"slot"`
	Partial     bool              `json:"partial,omitempty"`
	Differences any               `json:"differences"`
	Forms       map[string]string `json:"forms,omitempty"`
}

// MarshalJSON writes {"position", "differences"}, where differences is the
// sigil-to-form mapping, or the raw cell list for partial coverage.
func (d Difference) MarshalJSON() ([]byte, error) {
	out := differenceJSON{Position: d.Position, Slot: d.Slot, Partial: d.Partial}
	if d.Partial {
		out.Differences = d.Cells
		out.Forms = d.Forms
	} else {
		out.Differences = d.Forms
	}
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON.
func (d *Difference) UnmarshalJSON(data []byte) error {
	var raw struct {
		Position    int               `json:"position"`
		Slot        int               `json:"slot"`
		Partial     bool              `json:"partial"`
		Differences json.RawMessage   `json:"differences"`
		Forms       map[string]string `json:"forms"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Difference{Position: raw.Position, Slot: raw.Slot, Partial: raw.Partial}
	if raw.Partial {
		d.Forms = raw.Forms
		return json.Unmarshal(raw.Differences, &d.Cells)
	}
	return json.Unmarshal(raw.Differences, &d.Forms)
}

// Record is the ordered list of differences for one verse.
type Record []Difference

// ExtractTable returns the differences of a single alignment table.
// Columns with fewer than two populated cells are skipped.
func ExtractTable(t *collation.Table) Record {
	record := Record{}
	if t == nil {
		return record
	}
	total := len(t.Witnesses)

	for pos, col := range t.Columns {
		if col.Populated() < 2 {
			continue
		}

		var slots []map[string]string
		for w, cell := range col {
			for i, tok := range cell {
				for len(slots) <= i {
					slots = append(slots, make(map[string]string))
				}
				sigil := tok.Sigil
				if sigil == "" && w < len(t.Witnesses) {
					sigil = t.Witnesses[w]
				}
				slots[i][sigil] = tok.Norm()
			}
		}

		for i, forms := range slots {
			switch {
			case len(forms) < total:
				record = append(record, Difference{
					Position: pos,
					Slot:     i,
					Forms:    forms,
					Partial:  true,
					Cells:    col,
				})
			case distinct(forms) > 1:
				record = append(record, Difference{Position: pos, Slot: i, Forms: forms})
			}
		}
	}
	return record
}

func distinct(forms map[string]string) int {
	seen := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		seen[f] = struct{}{}
	}
	return len(seen)
}

// Extract computes a Record for every verse. Values may be anything
// collation.TableFromValue accepts. Verses that fail to parse are reported in
// the error map and omitted from the records.
func Extract(tables map[string]any) (map[string]Record, map[string]error) {
	records := make(map[string]Record, len(tables))
	failures := make(map[string]error)
	for verse, v := range tables {
		table, err := collation.TableFromValue(v)
		if err != nil {
			failures[verse] = err
			continue
		}
		records[verse] = ExtractTable(table)
	}
	return records, failures
}

// FromResults extracts differences from collated verses. Failed verses land in
// the error map; skipped verses are omitted.
func FromResults(results []collation.VerseResult) (map[string]Record, map[string]error) {
	records := make(map[string]Record, len(results))
	failures := make(map[string]error)
	for _, r := range results {
		switch {
		case r.Err != nil:
			failures[r.Verse] = r.Err
		case r.Skipped || r.Table == nil:
		default:
			records[r.Verse] = ExtractTable(r.Table)
		}
	}
	return records, failures
}

// Stats summarizes a set of records.
type Stats struct {
	Verses        int            `json:"verses"`
	VaryingVerses int            `json:"varying_verses"`
	Positions     int            `json:"positions"`
	Omissions     int            `json:"omissions"`
	Divergence    map[string]int `json:"divergence"`
}

// Summary counts varying verses and positions, partial-coverage positions and,
// per sigil, how often a witness departs from the most common reading.
func Summary(records map[string]Record) Stats {
	s := Stats{Verses: len(records), Divergence: make(map[string]int)}
	for _, rec := range records {
		if len(rec) > 0 {
			s.VaryingVerses++
		}
		for _, d := range rec {
			s.Positions++
			if d.Partial {
				s.Omissions++
				continue
			}
			modal := modalForm(d.Forms)
			for sigil, form := range d.Forms {
				if form != modal {
					s.Divergence[sigil]++
				}
			}
		}
	}
	return s
}

// modalForm returns the most frequent form, breaking ties lexically.
func modalForm(forms map[string]string) string {
	counts := make(map[string]int)
	for _, f := range forms {
		counts[f]++
	}
	keys := make([]string, 0, len(counts))
	for f := range counts {
		keys = append(keys, f)
	}
	sort.Strings(keys)
	best, bestCount := "", 0
	for _, f := range keys {
		if counts[f] > bestCount {
			best, bestCount = f, counts[f]
		}
	}
	return best
}
