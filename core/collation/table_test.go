package collation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	stemmaerrors "github.com/FocuswithJustin/JuniperStemma/core/errors"
)

const sampleTable = `{
  "witnesses": ["w1", "w2"],
  "table": [
    [[{"_sigil":"w1","t":"The ","n":"the"}], [{"_sigil":"w2","t":"The ","n":"the"}]],
    [[{"_sigil":"w1","t":"grey","n":"grey"}], [{"_sigil":"w2","t":"gray","n":"gray"}]],
    [[{"_sigil":"w1","t":"cat","n":"cat"}], null]
  ]
}`

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(sampleTable))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}

	if diff := cmp.Diff([]string{"w1", "w2"}, table.Witnesses); diff != "" {
		t.Errorf("Witnesses mismatch (-want +got):\n%s", diff)
	}
	if len(table.Columns) != 3 {
		t.Fatalf("len(Columns) = %d, want 3", len(table.Columns))
	}
	if !table.Columns[2][1].Empty() {
		t.Error("null cell should decode as omission")
	}
	if got := table.Columns[1].Populated(); got != 2 {
		t.Errorf("Populated() = %d, want 2", got)
	}
	if diff := cmp.Diff([]string{"the", "grey", "cat"}, table.Tokens(0)); diff != "" {
		t.Errorf("Tokens(0) mismatch (-want +got):\n%s", diff)
	}
	if got := table.Text(1); got != "the gray" {
		t.Errorf("Text(1) = %q", got)
	}
}

func TestParseTableErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{"},
		{"no witnesses", `{"witnesses":[],"table":[]}`},
		{"ragged column", `{"witnesses":["w1","w2"],"table":[[[{"t":"a"}]]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.data))
			var pe *stemmaerrors.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("ParseTable() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestTableRoundTripKeepsOmissions(t *testing.T) {
	table, err := ParseTable([]byte(sampleTable))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(table)
	if err != nil {
		t.Fatal(err)
	}
	again, err := ParseTable(data)
	if err != nil {
		t.Fatalf("ParseTable(marshalled) error = %v", err)
	}
	if diff := cmp.Diff(table, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTableFromValue(t *testing.T) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(sampleTable), &generic); err != nil {
		t.Fatal(err)
	}
	parsed, _ := ParseTable([]byte(sampleTable))

	inputs := map[string]any{
		"pointer": parsed,
		"value":   *parsed,
		"bytes":   []byte(sampleTable),
		"string":  sampleTable,
		"map":     generic,
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			got, err := TableFromValue(in)
			if err != nil {
				t.Fatalf("TableFromValue() error = %v", err)
			}
			if len(got.Columns) != 3 {
				t.Errorf("len(Columns) = %d", len(got.Columns))
			}
		})
	}

	if _, err := TableFromValue(42); err == nil {
		t.Error("TableFromValue(int) should fail")
	}
}

func TestTokenNormFallsBackToSurface(t *testing.T) {
	tok := Token{T: "Grey, "}
	if got := tok.Norm(); got != "grey" {
		t.Errorf("Norm() = %q, want grey", got)
	}
	a := Cell{{T: "Grey"}}
	b := Cell{{T: "grey", N: "grey"}}
	if !a.Equal(b) {
		t.Error("cells with the same normalized form should be equal")
	}
	if a.Equal(Cell{}) {
		t.Error("populated cell should not equal omission")
	}
}

func TestWitnessIndex(t *testing.T) {
	table := &Table{Witnesses: []string{"w1", "w2", "w3"}}
	if got := table.WitnessIndex("w3"); got != 2 {
		t.Errorf("WitnessIndex(w3) = %d", got)
	}
	if got := table.WitnessIndex("w9"); got != -1 {
		t.Errorf("WitnessIndex(w9) = %d", got)
	}
}
