package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

const sampleTEI = `<?xml version="1.0" encoding="UTF-8"?>
<TEI xmlns="http://www.tei-c.org/ns/1.0">
  <teiHeader>
    <fileDesc>
      <titleStmt><title>Codex Sample</title></titleStmt>
      <sourceDesc>
        <msDesc>
          <msIdentifier>
            <repository>Library</repository>
            <idno>GA 1234</idno>
            <altIdentifier><idno>Codex B</idno></altIdentifier>
            <msName>B</msName>
          </msIdentifier>
        </msDesc>
      </sourceDesc>
    </fileDesc>
  </teiHeader>
  <text>
    <body>
      <ab n="1">In the   beginning
        was the word</ab>
      <ab n="2">(omitted)</ab>
      <l n="3">and the word was</l>
      <p>no verse number here</p>
    </body>
  </text>
</TEI>`

func TestLoadTEI(t *testing.T) {
	m, err := LoadTEI(strings.NewReader(sampleTEI), "codex-b.xml")
	if err != nil {
		t.Fatalf("LoadTEI() error = %v", err)
	}

	wantMeta := map[string]string{
		"MS ID:":       "GA 1234",
		"Other Names:": "Codex B",
		"Sigla:":       "B",
		"Repository:":  "Library",
		"Title:":       "Codex Sample",
	}
	if diff := cmp.Diff(wantMeta, m.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	wantVerses := []store.Verse{
		{ID: "1", Text: "In the beginning was the word"},
		{ID: "3", Text: "and the word was"},
	}
	if diff := cmp.Diff(wantVerses, m.Verses); diff != "" {
		t.Errorf("verses mismatch (-want +got):\n%s", diff)
	}
	if m.Filename != "codex-b.xml" {
		t.Errorf("Filename = %q", m.Filename)
	}
	if got := m.Sigla(); got != "B" {
		t.Errorf("Sigla() = %q, want B", got)
	}
}

func TestLoadTEIWithoutNamespace(t *testing.T) {
	doc := `<TEI><text><body><ab n="5">plain text</ab></body></text></TEI>`
	m, err := LoadTEI(strings.NewReader(doc), "plain.xml")
	if err != nil {
		t.Fatalf("LoadTEI() error = %v", err)
	}
	if len(m.Verses) != 1 || m.Verses[0].ID != "5" {
		t.Errorf("Verses = %+v", m.Verses)
	}
	if m.Metadata != nil {
		t.Errorf("Metadata = %v, want nil", m.Metadata)
	}
	if got := m.Sigla(); got != "plain" {
		t.Errorf("Sigla() = %q, want filename stem", got)
	}
}

func TestLoadTEIErrors(t *testing.T) {
	if _, err := LoadTEI(strings.NewReader("<TEI><body></TEI>"), "broken.xml"); err == nil {
		t.Error("expected parse error for truncated document")
	}

	_, err := LoadTEI(strings.NewReader(`<TEI><text><body><p>x</p></body></text></TEI>`), "empty.xml")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("expected validation error for verse-less document, got %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []store.Verse
	}{
		{
			name: "pairs",
			doc:  `{"filename":"a.json","metadata":{"Sigla:":"A"},"verses":[["1","alpha  beta"],[2,"gamma"],["3","(omitted)"]]}`,
			want: []store.Verse{{ID: "1", Text: "alpha beta"}, {ID: "2", Text: "gamma"}},
		},
		{
			name: "objects",
			doc:  `{"verses":[{"verse_number":"1","verse_text":"alpha"},{"verse_number":"2","verse_text":""}]}`,
			want: []store.Verse{{ID: "1", Text: "alpha"}},
		},
		{
			name: "matched",
			doc: `{"reference":[["1","in the beginning"],["2","and the word was god"]],
			       "texts":["and the word was good","in the begining","(omitted)"]}`,
			want: []store.Verse{{ID: "2", Text: "and the word was good"}, {ID: "1", Text: "in the begining"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LoadJSON(strings.NewReader(tt.doc), "upload.json")
			if err != nil {
				t.Fatalf("LoadJSON() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, m.Verses); diff != "" {
				t.Errorf("verses mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadJSONFilename(t *testing.T) {
	m, err := LoadJSON(strings.NewReader(`{"filename":"orig.json","verses":[["1","x"]]}`), "upload.json")
	if err != nil {
		t.Fatal(err)
	}
	if m.Filename != "orig.json" {
		t.Errorf("Filename = %q, want the document's own filename", m.Filename)
	}

	m, err = LoadJSON(strings.NewReader(`{"verses":[["1","x"]]}`), "upload.json")
	if err != nil {
		t.Fatal(err)
	}
	if m.Filename != "upload.json" {
		t.Errorf("Filename = %q, want upload.json", m.Filename)
	}
}

func TestLoadJSONErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":    `{`,
		"short pair":  `{"verses":[["1"]]}`,
		"bad verses":  `{"verses":"nope"}`,
		"no verses":   `{"filename":"x.json"}`,
		"all omitted": `{"verses":[["1","(Omitted)"]]}`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadJSON(strings.NewReader(doc), "x.json"); !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestMatchVerses(t *testing.T) {
	ref := []store.Verse{{ID: "1", Text: "abc"}, {ID: "2", Text: "abd"}}
	got := MatchVerses(ref, []string{"abx", "abd"})
	want := []store.Verse{{ID: "1", Text: "abx"}, {ID: "2", Text: "abd"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("MatchVerses mismatch (-want +got):\n%s", diff)
	}

	if got := MatchVerses(nil, []string{"x"}); len(got) != 0 {
		t.Errorf("MatchVerses without reference = %v, want empty", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	tei := filepath.Join(dir, "codex.xml")
	js := filepath.Join(dir, "codex.json")
	txt := filepath.Join(dir, "codex.txt")
	for path, body := range map[string]string{tei: sampleTEI, js: `{"verses":[["1","x"]]}`, txt: "x"} {
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if m, err := LoadFile(tei); err != nil || len(m.Verses) != 2 {
		t.Errorf("LoadFile(tei) = %v, %v", m, err)
	}
	if m, err := LoadFile(js); err != nil || m.Filename != "codex.json" {
		t.Errorf("LoadFile(json) = %v, %v", m, err)
	}
	if _, err := LoadFile(txt); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("LoadFile(txt) error = %v, want unsupported", err)
	}
	if _, err := Load(strings.NewReader("{}"), "csv", "x.csv"); !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("Load(csv) error = %v, want unsupported", err)
	}
}
