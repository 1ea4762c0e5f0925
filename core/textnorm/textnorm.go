// Package textnorm cleans raw verse transcriptions into the form handed to the aligner.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ScriptRange is an inclusive code-point range that survives cleaning even when
// its runes are not classified as word characters.
type ScriptRange struct {
	Name   string
	Lo, Hi rune
}

// ExtendedScripts lists the non-Latin scripts found in the transcribed manuscripts.
var ExtendedScripts = []ScriptRange{
	{Name: "Armenian", Lo: 0x0530, Hi: 0x058F},
	{Name: "Syriac", Lo: 0x0700, Hi: 0x074F},
	{Name: "Georgian", Lo: 0x10A0, Hi: 0x10FF},
	{Name: "Ethiopic", Lo: 0x1200, Hi: 0x139F},
	{Name: "Runic", Lo: 0x16A0, Hi: 0x16FF},
	{Name: "Coptic", Lo: 0x2C80, Hi: 0x2CFF},
	{Name: "Gothic", Lo: 0x10330, Hi: 0x1034F},
}

// Normalize returns the alignment-ready form of a verse:
// parentheses marking expanded abbreviations are dropped (their content kept),
// punctuation and symbols outside ExtendedScripts are removed, the text is
// lowercased and whitespace runs collapse to single spaces.
//
// Normalize is idempotent.
func Normalize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := norm.NFC.String(raw)
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '(' || r == ')':
			return -1
		case isWordRune(r), unicode.IsSpace(r), inExtendedScript(r):
			return r
		default:
			return -1
		}
	}, s)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")

	// Removing a symbol can leave a base letter next to a combining mark.
	return norm.NFC.String(s)
}

// NormalizeAll normalizes every text, preserving order.
func NormalizeAll(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = Normalize(t)
	}
	return out
}

// Tokens splits normalized text into whitespace tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r)
}

func inExtendedScript(r rune) bool {
	for _, sr := range ExtendedScripts {
		if r >= sr.Lo && r <= sr.Hi {
			return true
		}
	}
	return false
}
