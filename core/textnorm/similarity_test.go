package textnorm

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"same", "same", 1},
		{"grey", "gray", 0.75},
		{"abc", "", 0},
		{"ἀρχῇ", "ἀρχη", 0.75},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := Similarity(tt.b, tt.a); got != tt.want {
			t.Errorf("Similarity(%q, %q) not symmetric: %v", tt.b, tt.a, got)
		}
	}
}
