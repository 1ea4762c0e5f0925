// Package ingest turns transcription files into manuscripts for the store.
package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

// OmittedMarker is the transcribers' placeholder for a verse the manuscript lacks.
const OmittedMarker = "(omitted)"

// LoadFile reads a TEI (.xml, .tei) or JSON (.json) transcription.
func LoadFile(path string) (*store.Manuscript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xml", ".tei":
		return LoadTEI(f, name)
	case ".json":
		return LoadJSON(f, name)
	default:
		return nil, errors.NewUnsupported("transcription format", filepath.Ext(path))
	}
}

// Load dispatches on an explicit format name ("tei" or "json").
func Load(r io.Reader, format, filename string) (*store.Manuscript, error) {
	switch strings.ToLower(format) {
	case "tei", "xml":
		return LoadTEI(r, filename)
	case "json":
		return LoadJSON(r, filename)
	default:
		return nil, errors.NewUnsupported("transcription format", format)
	}
}

// cleanVerses collapses whitespace and drops empty and omitted verses.
func cleanVerses(in []store.Verse) []store.Verse {
	out := make([]store.Verse, 0, len(in))
	for _, v := range in {
		text := strings.Join(strings.Fields(v.Text), " ")
		id := strings.TrimSpace(v.ID)
		if id == "" || text == "" || isOmitted(text) {
			continue
		}
		out = append(out, store.Verse{ID: id, Text: text})
	}
	return out
}

func isOmitted(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), OmittedMarker)
}

func requireVerses(m *store.Manuscript) (*store.Manuscript, error) {
	m.Verses = cleanVerses(m.Verses)
	if len(m.Verses) == 0 {
		return nil, errors.NewValidation("verses", fmt.Sprintf("%s contains no verses", m.Filename))
	}
	return m, nil
}

// MatchVerses assigns each unnumbered text the number of the reference verse
// closest to it by edit distance. Omitted placeholders are skipped; ties go to
// the earlier reference verse.
func MatchVerses(reference []store.Verse, texts []string) []store.Verse {
	var out []store.Verse
	for _, text := range texts {
		if isOmitted(text) || len(reference) == 0 {
			continue
		}
		best, bestDist := "", -1
		for _, ref := range reference {
			d := levenshtein.ComputeDistance(text, ref.Text)
			if bestDist < 0 || d < bestDist {
				best, bestDist = ref.ID, d
			}
		}
		out = append(out, store.Verse{ID: best, Text: text})
	}
	return out
}
