package collation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/cache"
	"github.com/FocuswithJustin/JuniperStemma/core/cas"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/textnorm"
)

// Options are passed through to the alignment oracle.
type Options struct {
	// Segmentation merges adjacent agreeing tokens into one column.
	Segmentation bool
	// NearMatch lets minor spelling variants share a column.
	NearMatch bool
}

// DefaultOptions disables segmentation and enables near matching.
func DefaultOptions() Options {
	return Options{Segmentation: false, NearMatch: true}
}

// Witness is one text submitted to the oracle under its sigil.
type Witness struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Aligner is an alignment oracle.
type Aligner interface {
	Align(ctx context.Context, witnesses []Witness, opts Options) (*Table, error)
}

// AlignerFunc adapts a function to the Aligner interface.
type AlignerFunc func(ctx context.Context, witnesses []Witness, opts Options) (*Table, error)

// Align calls f.
func (f AlignerFunc) Align(ctx context.Context, witnesses []Witness, opts Options) (*Table, error) {
	return f(ctx, witnesses, opts)
}

// Observer receives collation events. internal/metrics provides the
// Prometheus-backed implementation.
type Observer interface {
	VerseCollated(verse, status string, d time.Duration)
	CacheLookup(hit bool)
}

// Verse statuses reported to an Observer.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

type nopObserver struct{}

func (nopObserver) VerseCollated(string, string, time.Duration) {}
func (nopObserver) CacheLookup(bool)                            {}

// Sigil returns the witness sigil for position i (w1, w2, ...).
func Sigil(i int) string {
	return "w" + strconv.Itoa(i+1)
}

// Adapter normalizes witness texts, calls the oracle and validates its answer.
type Adapter struct {
	Aligner  Aligner
	Options  Options
	Cache    *cache.LRU[*Table] // optional
	Observer Observer           // optional
}

// NewAdapter returns an adapter with default options and an LRU of the given size.
// A size of zero disables memoization.
func NewAdapter(aligner Aligner, cacheSize int) *Adapter {
	a := &Adapter{Aligner: aligner, Options: DefaultOptions()}
	if cacheSize > 0 {
		a.Cache = cache.New[*Table](cacheSize)
	}
	return a
}

func (a *Adapter) observer() Observer {
	if a.Observer == nil {
		return nopObserver{}
	}
	return a.Observer
}

// Align aligns the raw texts of one verse. Texts are normalized first and
// submitted as w1..wK in the given order. Any oracle failure is returned as a
// *errors.CollationError naming the verse.
func (a *Adapter) Align(ctx context.Context, verseID string, texts []string) (*Table, error) {
	if len(texts) < 2 {
		return nil, errors.NewValidation("witnesses", "at least two witnesses required")
	}
	if a.Aligner == nil {
		return nil, errors.NewCollation(verseID, fmt.Errorf("no aligner configured"))
	}

	witnesses := make([]Witness, len(texts))
	for i, text := range texts {
		witnesses[i] = Witness{ID: Sigil(i), Content: textnorm.Normalize(text)}
	}

	load := func() (*Table, error) {
		table, err := a.Aligner.Align(ctx, witnesses, a.Options)
		if err != nil {
			return nil, errors.NewCollation(verseID, err)
		}
		if err := checkShape(table, witnesses); err != nil {
			return nil, errors.NewCollation(verseID, err)
		}
		return table, nil
	}

	if a.Cache == nil {
		return load()
	}
	table, hit, err := a.Cache.Load(a.cacheKey(witnesses), load)
	a.observer().CacheLookup(hit)
	return table, err
}

func (a *Adapter) cacheKey(witnesses []Witness) string {
	parts := make([]string, 0, len(witnesses)+1)
	parts = append(parts, fmt.Sprintf("seg=%t near=%t", a.Options.Segmentation, a.Options.NearMatch))
	for _, w := range witnesses {
		parts = append(parts, w.Content)
	}
	return cas.DigestStrings(parts...)
}

func checkShape(table *Table, witnesses []Witness) error {
	if err := table.Validate(); err != nil {
		return err
	}
	if len(table.Witnesses) != len(witnesses) {
		return fmt.Errorf("oracle returned %d witnesses, want %d", len(table.Witnesses), len(witnesses))
	}
	for i, w := range witnesses {
		if table.Witnesses[i] != w.ID {
			return fmt.Errorf("oracle returned witness %q at position %d, want %q", table.Witnesses[i], i, w.ID)
		}
	}
	return nil
}
