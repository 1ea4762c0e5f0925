// Package store keeps manuscripts and their verse transcriptions.
package store

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/collation"
)

// Metadata keys consulted, in order, when choosing a manuscript's siglum.
var SiglaKeys = []string{"Sigla:", "Other Names:", "MS ID:"}

// Verse is one numbered verse of a manuscript.
type Verse struct {
	ID   string `json:"verse_number" validate:"required"`
	Text string `json:"verse_text"`
}

// Manuscript is a transcribed witness.
type Manuscript struct {
	ID        string            `json:"id"`
	Filename  string            `json:"filename,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Verses    []Verse           `json:"verses,omitempty" validate:"dive"`
	CreatedAt time.Time         `json:"created_at"`
}

// Sigla returns the human-readable label of the manuscript: the first of the
// Sigla, Other Names and MS ID metadata entries that is set, then the filename
// without its extension, then "MS-" and the last six characters of the ID.
func (m *Manuscript) Sigla() string {
	for _, key := range SiglaKeys {
		if v := strings.TrimSpace(m.Metadata[key]); v != "" {
			return v
		}
	}
	if m.Filename != "" {
		base := filepath.Base(m.Filename)
		return strings.TrimSuffix(base, filepath.Ext(base))
	}
	id := m.ID
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return "MS-" + id
}

// Verse looks up a verse by its identifier.
func (m *Manuscript) Verse(id string) (Verse, bool) {
	for _, v := range m.Verses {
		if v.ID == id {
			return v, true
		}
	}
	return Verse{}, false
}

// Source converts the manuscript for collation.
func (m *Manuscript) Source() collation.Source {
	src := collation.Source{ID: m.ID, Verses: make([]collation.VerseText, len(m.Verses))}
	for i, v := range m.Verses {
		src.Verses[i] = collation.VerseText{ID: v.ID, Text: v.Text}
	}
	return src
}

// Summary is a manuscript without its verses.
type Summary struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename,omitempty"`
	Sigla      string    `json:"sigla"`
	VerseCount int       `json:"verse_count"`
	CreatedAt  time.Time `json:"created_at"`
}

func summarize(m *Manuscript) Summary {
	return Summary{
		ID:         m.ID,
		Filename:   m.Filename,
		Sigla:      m.Sigla(),
		VerseCount: len(m.Verses),
		CreatedAt:  m.CreatedAt,
	}
}

// Store persists manuscripts. Get and Delete of an unknown id return a
// *errors.NotFoundError.
type Store interface {
	Get(ctx context.Context, id string) (*Manuscript, error)
	List(ctx context.Context) ([]Summary, error)
	// Put inserts or replaces a manuscript, assigning an ID and creation time
	// when missing, and returns the ID.
	Put(ctx context.Context, m *Manuscript) (string, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
