package textnorm

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"punctuation and case", "The cat is grey.", "the cat is grey"},
		{"expanded abbreviation", "D(omi)n(u)s noster", "dominus noster"},
		{"collapse whitespace", "  in   principio\terat \n verbum ", "in principio erat verbum"},
		{"symbols removed", "et·dixit: «fiat lux»!", "etdixit fiat lux"},
		{"diacritics kept", "Ἐν ἀρχῇ ἦν ὁ λόγος", "ἐν ἀρχῇ ἦν ὁ λόγος"},
		{"decomposed input composes", "café", "café"},
		{"digits and underscore", "Verse_12 (a)", "verse_12 a"},
		{"armenian", "Ի սկզբանէ էր Բանն", "ի սկզբանէ էր բանն"},
		{"runic punctuation kept", "ᚠᛖᚺ᛫ᚱᚢᚾ", "ᚠᛖᚺ᛫ᚱᚢᚾ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"The cat is grey.",
		"e(́)x",
		"  MIXED (Case) text;; with -- dashes ",
		"Ἐν ἀρχῇ ἦν ὁ λόγος, καὶ ὁ λόγος ἦν πρὸς τὸν θεόν.",
		"ⲁⲩⲱ ⲡϣⲁϫⲉ (ⲛⲉϥ)ϣⲟⲟⲡ",
		"",
		" non breaking ",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: once=%q twice=%q", in, once, twice)
		}
	}
}

func TestNormalizeAll(t *testing.T) {
	got := NormalizeAll([]string{"A.", "b, C"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b c" {
		t.Errorf("NormalizeAll() = %q", got)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("the cat is grey")
	if len(got) != 4 || got[3] != "grey" {
		t.Errorf("Tokens() = %q", got)
	}
	if len(Tokens("")) != 0 {
		t.Error("Tokens(\"\") should be empty")
	}
}
