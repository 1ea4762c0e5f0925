package ingest

import (
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

// Queries use local-name() so documents with and without the TEI namespace
// both match.
var (
	verseExpr = xpath.MustCompile(`//*[local-name()='body']//*[(local-name()='ab' or local-name()='l' or local-name()='seg') and @n]`)

	teiMetadata = []struct {
		key  string
		expr *xpath.Expr
	}{
		{"MS ID:", xpath.MustCompile(`//*[local-name()='msIdentifier']/*[local-name()='idno']`)},
		{"Other Names:", xpath.MustCompile(`//*[local-name()='msIdentifier']/*[local-name()='altIdentifier']/*[local-name()='idno']`)},
		{"Sigla:", xpath.MustCompile(`//*[local-name()='msIdentifier']/*[local-name()='msName']`)},
		{"Repository:", xpath.MustCompile(`//*[local-name()='msIdentifier']/*[local-name()='repository']`)},
		{"Title:", xpath.MustCompile(`//*[local-name()='titleStmt']/*[local-name()='title']`)},
	}
)

// LoadTEI reads a TEI transcription. Metadata comes from the manuscript
// description in the header; every ab, l or seg element in the body that
// carries an n attribute becomes a verse.
func LoadTEI(r io.Reader, filename string) (*store.Manuscript, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.WrapParse("TEI", filename, err)
	}

	m := &store.Manuscript{Filename: filename, Metadata: make(map[string]string)}
	for _, field := range teiMetadata {
		if node := xmlquery.QuerySelector(doc, field.expr); node != nil {
			if text := collapse(node.InnerText()); text != "" {
				m.Metadata[field.key] = text
			}
		}
	}
	if len(m.Metadata) == 0 {
		m.Metadata = nil
	}

	for _, node := range xmlquery.QuerySelectorAll(doc, verseExpr) {
		m.Verses = append(m.Verses, store.Verse{
			ID:   node.SelectAttr("n"),
			Text: node.InnerText(),
		})
	}
	return requireVerses(m)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
