package ingest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

type jsonDocument struct {
	Filename  string            `json:"filename"`
	Metadata  map[string]string `json:"metadata"`
	Verses    json.RawMessage   `json:"verses"`
	Reference json.RawMessage   `json:"reference"`
	Texts     []string          `json:"texts"`
}

// LoadJSON reads a manuscript document. Verses may be given as
// [["1", "text"], ...] pairs or as [{"verse_number": "1", "verse_text": "text"}].
// Alternatively, "reference" verses plus unnumbered "texts" are matched with
// MatchVerses.
func LoadJSON(r io.Reader, filename string) (*store.Manuscript, error) {
	var doc jsonDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.WrapParse("manuscript JSON", filename, err)
	}

	m := &store.Manuscript{Filename: doc.Filename, Metadata: doc.Metadata}
	if m.Filename == "" {
		m.Filename = filename
	}

	switch {
	case len(doc.Verses) > 0:
		verses, err := decodeVerses(doc.Verses)
		if err != nil {
			return nil, errors.WrapParse("manuscript JSON", filename, err)
		}
		m.Verses = verses
	case len(doc.Reference) > 0:
		ref, err := decodeVerses(doc.Reference)
		if err != nil {
			return nil, errors.WrapParse("manuscript JSON", filename, err)
		}
		m.Verses = MatchVerses(ref, doc.Texts)
	}
	return requireVerses(m)
}

func decodeVerses(raw json.RawMessage) ([]store.Verse, error) {
	var pairs [][]any
	if err := json.Unmarshal(raw, &pairs); err == nil {
		out := make([]store.Verse, 0, len(pairs))
		for i, p := range pairs {
			if len(p) < 2 {
				return nil, fmt.Errorf("verse %d: want [number, text]", i)
			}
			out = append(out, store.Verse{ID: scalar(p[0]), Text: scalar(p[1])})
		}
		return out, nil
	}

	var objects []store.Verse
	if err := json.Unmarshal(raw, &objects); err != nil {
		return nil, fmt.Errorf("verses must be [number, text] pairs or verse objects: %w", err)
	}
	return objects, nil
}

// scalar renders JSON numbers without a trailing ".0" so verse 3 stays "3".
func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return fmt.Sprintf("%g", x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
