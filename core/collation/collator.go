package collation

import (
	"context"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
)

// VerseText is one verse of one manuscript.
type VerseText struct {
	ID   string
	Text string
}

// Source is a manuscript reduced to what collation needs.
type Source struct {
	ID     string
	Verses []VerseText
}

// VerseWitnesses holds the texts of one verse in manuscript order.
// Manuscripts[i] supplied Texts[i] and becomes witness w(i+1).
type VerseWitnesses struct {
	Verse       string
	Manuscripts []string
	Texts       []string
}

// VerseResult is the outcome of collating one verse. Exactly one of Table,
// Err or Skipped is set.
type VerseResult struct {
	Verse       string
	Manuscripts []string
	Table       *Table
	Err         error
	Skipped     bool
}

// OK reports whether the verse produced a table.
func (r VerseResult) OK() bool { return r.Table != nil && r.Err == nil }

// WitnessIndex returns the witness index of manuscript id in this verse, or -1.
func (r VerseResult) WitnessIndex(id string) int {
	for i, ms := range r.Manuscripts {
		if ms == id {
			return i
		}
	}
	return -1
}

// GroupVerses collects, for every verse identifier, the texts of the
// manuscripts that contain it. Witness order follows manuscript order; verses
// are returned in natural order ("2" before "10"). Blank texts count as absent.
func GroupVerses(manuscripts []Source) []VerseWitnesses {
	index := make(map[string]int)
	var out []VerseWitnesses
	for _, ms := range manuscripts {
		seen := make(map[string]bool)
		for _, v := range ms.Verses {
			if strings.TrimSpace(v.Text) == "" || seen[v.ID] {
				continue
			}
			seen[v.ID] = true
			i, ok := index[v.ID]
			if !ok {
				i = len(out)
				index[v.ID] = i
				out = append(out, VerseWitnesses{Verse: v.ID})
			}
			out[i].Manuscripts = append(out[i].Manuscripts, ms.ID)
			out[i].Texts = append(out[i].Texts, v.Text)
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return NaturalLess(out[a].Verse, out[b].Verse)
	})
	return out
}

// NaturalLess orders strings so that embedded digit runs compare numerically.
func NaturalLess(a, b string) bool {
	ar, br := []rune(a), []rune(b)
	i, j := 0, 0
	for i < len(ar) && j < len(br) {
		if unicode.IsDigit(ar[i]) && unicode.IsDigit(br[j]) {
			si := i
			for i < len(ar) && unicode.IsDigit(ar[i]) {
				i++
			}
			sj := j
			for j < len(br) && unicode.IsDigit(br[j]) {
				j++
			}
			na := strings.TrimLeft(string(ar[si:i]), "0")
			nb := strings.TrimLeft(string(br[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ar[i] != br[j] {
			return ar[i] < br[j]
		}
		i++
		j++
	}
	return len(ar)-i < len(br)-j
}

// ProgressFunc is called after each verse completes. Calls are serialized.
type ProgressFunc func(done, total int, verse string)

// Collator aligns many verses, each independently.
type Collator struct {
	Adapter *Adapter
	// Workers bounds parallel oracle calls; 0 means GOMAXPROCS, 1 is sequential.
	Workers  int
	Progress ProgressFunc
}

// NewCollator returns a collator using GOMAXPROCS workers.
func NewCollator(adapter *Adapter) *Collator {
	return &Collator{Adapter: adapter}
}

// CollateVerses aligns every verse and returns one result per input, in input
// order. A failing verse carries its error; the rest are unaffected.
func (c *Collator) CollateVerses(ctx context.Context, verses []VerseWitnesses) []VerseResult {
	results := make([]VerseResult, len(verses))
	workers := c.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu   sync.Mutex
		done int
	)
	report := func(verse string) {
		if c.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		c.Progress(done, len(verses), verse)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, v := range verses {
		g.Go(func() error {
			results[i] = c.collateOne(gctx, v)
			report(v.Verse)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (c *Collator) collateOne(ctx context.Context, v VerseWitnesses) VerseResult {
	res := VerseResult{Verse: v.Verse, Manuscripts: v.Manuscripts}
	obs := c.Adapter.observer()

	if len(v.Texts) < 2 {
		res.Skipped = true
		obs.VerseCollated(v.Verse, StatusSkipped, 0)
		return res
	}
	if err := ctx.Err(); err != nil {
		res.Err = err
		obs.VerseCollated(v.Verse, StatusFailed, 0)
		return res
	}

	start := time.Now()
	table, err := c.Adapter.Align(ctx, v.Verse, v.Texts)
	elapsed := time.Since(start)
	if err != nil {
		res.Err = err
		logging.CollationFailure(ctx, v.Verse, len(v.Texts), err)
		obs.VerseCollated(v.Verse, StatusFailed, elapsed)
		return res
	}
	res.Table = table
	obs.VerseCollated(v.Verse, StatusOK, elapsed)
	return res
}
