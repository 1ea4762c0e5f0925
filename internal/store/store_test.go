package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	stemmaerrors "github.com/FocuswithJustin/JuniperStemma/core/errors"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sq,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ms := &Manuscript{
				Filename:  "Vat. gr. 1209.docx",
				Metadata:  map[string]string{"Sigla:": "B", "Date:": "IV"},
				Verses:    []Verse{{"2", "second"}, {"1", "first"}, {"10", "tenth"}},
				CreatedAt: created,
			}
			id, err := s.Put(ctx, ms)
			if err != nil {
				t.Fatalf("Put() error = %v", err)
			}
			if id == "" {
				t.Fatal("Put() returned empty id")
			}

			got, err := s.Get(ctx, id)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			want := *ms
			want.ID = id
			if diff := cmp.Diff(&want, got); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}

			list, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			wantList := []Summary{{ID: id, Filename: ms.Filename, Sigla: "B", VerseCount: 3, CreatedAt: created}}
			if diff := cmp.Diff(wantList, list); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}

			// Replacing keeps the id and swaps the content.
			got.Verses = got.Verses[:1]
			if _, err := s.Put(ctx, got); err != nil {
				t.Fatalf("Put(replace) error = %v", err)
			}
			again, _ := s.Get(ctx, id)
			if len(again.Verses) != 1 {
				t.Errorf("replaced manuscript has %d verses, want 1", len(again.Verses))
			}

			if err := s.Delete(ctx, id); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(ctx, id); !errors.Is(err, stemmaerrors.ErrNotFound) {
				t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
			}
			if err := s.Delete(ctx, id); !errors.Is(err, stemmaerrors.ErrNotFound) {
				t.Errorf("Delete(deleted) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreGetUnknown(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "nope")
			var nf *stemmaerrors.NotFoundError
			if !errors.As(err, &nf) || nf.ID != "nope" {
				t.Errorf("Get() error = %v, want NotFoundError naming the id", err)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	id, _ := s.Put(context.Background(), &Manuscript{Verses: []Verse{{"1", "a"}}})
	m, _ := s.Get(context.Background(), id)
	m.Verses[0].Text = "mutated"

	again, _ := s.Get(context.Background(), id)
	if again.Verses[0].Text != "a" {
		t.Error("mutating a returned manuscript changed the store")
	}
}

func TestSigla(t *testing.T) {
	tests := []struct {
		name string
		ms   Manuscript
		want string
	}{
		{"sigla", Manuscript{Metadata: map[string]string{"Sigla:": "א", "MS ID:": "01"}}, "א"},
		{"other names", Manuscript{Metadata: map[string]string{"Other Names:": "Sinaiticus", "MS ID:": "01"}}, "Sinaiticus"},
		{"ms id", Manuscript{Metadata: map[string]string{"MS ID:": "GA 03", "Sigla:": "  "}}, "GA 03"},
		{"filename", Manuscript{Filename: "uploads/Codex 7.docx"}, "Codex 7"},
		{"id", Manuscript{ID: "64b7f0c2e1d3a9f4c5b6a7d8"}, "MS-b6a7d8"},
		{"short id", Manuscript{ID: "42"}, "MS-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ms.Sigla(); got != tt.want {
				t.Errorf("Sigla() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestManuscriptVerseAndSource(t *testing.T) {
	m := &Manuscript{ID: "A", Verses: []Verse{{"1", "one"}, {"2", "two"}}}
	if v, ok := m.Verse("2"); !ok || v.Text != "two" {
		t.Errorf("Verse(2) = %+v, %v", v, ok)
	}
	if _, ok := m.Verse("3"); ok {
		t.Error("Verse(3) should be missing")
	}
	src := m.Source()
	if src.ID != "A" || len(src.Verses) != 2 || src.Verses[1].Text != "two" {
		t.Errorf("Source() = %+v", src)
	}
}
