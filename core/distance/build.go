package distance

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/FocuswithJustin/JuniperStemma/core/collation"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/textnorm"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
)

// FallbackDistance is imputed when no pair has an observed distance.
const FallbackDistance = 0.5

// Options tune imputation.
type Options struct {
	// Jitter perturbs imputed values by up to ±Jitter. Zero keeps them exact.
	Jitter float64 `yaml:"jitter" validate:"gte=0,lte=1"`
	// Seed makes jittered output reproducible.
	Seed uint64 `yaml:"seed"`
}

// Build dispatches to the strategy. Labels may be nil, in which case ids are used.
func Build(strategy Strategy, verses []collation.VerseResult, ids, labels []string, opts Options) (*Matrix, error) {
	switch strategy {
	case StrategyAlignment, "":
		return FromAlignments(verses, ids, labels, opts)
	case StrategyText:
		return FromTexts(Reconstruct(verses, ids), ids, labels, opts)
	default:
		return nil, errors.NewUnsupported("distance strategy", string(strategy))
	}
}

// FromAlignments computes, for every pair, the share of commonly populated
// columns in which the two witnesses' normalized tokens differ, pooled over
// all verses both manuscripts take part in.
func FromAlignments(verses []collation.VerseResult, ids, labels []string, opts Options) (*Matrix, error) {
	m, err := newMatrix(StrategyAlignment, ids, labels)
	if err != nil {
		return nil, err
	}
	n := len(ids)
	diffs := newSquare[int](n)
	totals := newSquare[int](n)

	for _, v := range verses {
		if !v.OK() {
			continue
		}
		idx := make([]int, n)
		for i, id := range ids {
			idx[i] = v.WitnessIndex(id)
		}
		for i := 0; i < n; i++ {
			if idx[i] < 0 {
				continue
			}
			for j := i + 1; j < n; j++ {
				if idx[j] < 0 {
					continue
				}
				d, total := compareWitnesses(v.Table, idx[i], idx[j])
				if total == 0 {
					continue
				}
				diffs[i][j] += d
				totals[i][j] += total
				m.Counts[i][j]++
				m.Counts[j][i]++
			}
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if totals[i][j] > 0 {
				v := float64(diffs[i][j]) / float64(totals[i][j])
				m.Values[i][j], m.Values[j][i] = v, v
			}
		}
	}
	m.finish(opts)
	return m, nil
}

func compareWitnesses(t *collation.Table, a, b int) (diffs, total int) {
	for _, col := range t.Columns {
		if a >= len(col) || b >= len(col) {
			continue
		}
		ca, cb := col[a], col[b]
		if ca.Empty() || cb.Empty() {
			continue
		}
		total++
		if !ca.Equal(cb) {
			diffs++
		}
	}
	return diffs, total
}

// Reconstruct rebuilds each manuscript's normalized verse text from the
// tables: its witness tokens joined by single spaces in column order.
func Reconstruct(verses []collation.VerseResult, ids []string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(ids))
	for _, id := range ids {
		out[id] = make(map[string]string)
	}
	for _, v := range verses {
		if !v.OK() {
			continue
		}
		for _, id := range ids {
			if w := v.WitnessIndex(id); w >= 0 {
				out[id][v.Verse] = v.Table.Text(w)
			}
		}
	}
	return out
}

// FromTexts computes, for every pair, the mean of 1 - similarity over the
// verses both manuscripts have text for.
func FromTexts(texts map[string]map[string]string, ids, labels []string, opts Options) (*Matrix, error) {
	m, err := newMatrix(StrategyText, ids, labels)
	if err != nil {
		return nil, err
	}
	n := len(ids)
	for i := 0; i < n; i++ {
		a := texts[ids[i]]
		for j := i + 1; j < n; j++ {
			b := texts[ids[j]]
			var sum float64
			shared := 0
			for _, verse := range sharedVerses(a, b) {
				sum += 1 - textnorm.Similarity(a[verse], b[verse])
				shared++
			}
			if shared == 0 {
				continue
			}
			v := sum / float64(shared)
			m.Values[i][j], m.Values[j][i] = v, v
			m.Counts[i][j], m.Counts[j][i] = shared, shared
		}
	}
	m.finish(opts)
	return m, nil
}

func sharedVerses(a, b map[string]string) []string {
	var out []string
	for verse := range a {
		if _, ok := b[verse]; ok {
			out = append(out, verse)
		}
	}
	sort.Slice(out, func(i, j int) bool { return collation.NaturalLess(out[i], out[j]) })
	return out
}

func newMatrix(strategy Strategy, ids, labels []string) (*Matrix, error) {
	if len(ids) < 2 {
		return nil, errors.NewValidation("ms_ids", "at least two manuscripts required")
	}
	if labels == nil {
		labels = ids
	}
	if len(labels) != len(ids) {
		return nil, errors.NewValidation("labels", "one label per manuscript required")
	}
	n := len(ids)
	return &Matrix{
		IDs:      append([]string(nil), ids...),
		Labels:   UniqueLabels(labels),
		Values:   newSquare[float64](n),
		Counts:   newSquare[int](n),
		Imputed:  newSquare[bool](n),
		Strategy: strategy,
	}, nil
}

// finish sanitizes observed values, imputes missing pairs and symmetrizes.
func (m *Matrix) finish(opts Options) {
	m.sanitize()
	m.impute(opts)
	m.symmetrize()
	m.sanitize()
}

func (m *Matrix) sanitize() {
	for i := range m.Values {
		for j, v := range m.Values[i] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				logging.NumericAnomaly(i, j, v, "labels", []string{m.Labels[i], m.Labels[j]})
				m.Values[i][j] = 0
				m.Anomalies++
			}
		}
	}
}

func (m *Matrix) impute(opts Options) {
	n := m.Len()
	var sum float64
	observed := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if m.Counts[i][j] > 0 {
				sum += m.Values[i][j]
				observed++
			}
		}
	}
	fill := FallbackDistance
	if observed > 0 {
		fill = sum / float64(observed)
	}

	var rng *rand.Rand
	if opts.Jitter > 0 {
		rng = rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	}

	imputed := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if m.Counts[i][j] > 0 {
				continue
			}
			v := fill
			if rng != nil {
				v += (rng.Float64()*2 - 1) * opts.Jitter
			}
			v = clamp(v)
			m.Values[i][j], m.Values[j][i] = v, v
			m.Imputed[i][j], m.Imputed[j][i] = true, true
			imputed++
		}
	}
	if imputed > 0 {
		logging.Debug("imputed missing distances", "pairs", imputed, "fill", fill, "observed", observed)
	}
}

func (m *Matrix) symmetrize() {
	n := m.Len()
	for i := 0; i < n; i++ {
		m.Values[i][i] = 0
		for j := i + 1; j < n; j++ {
			v := clamp((m.Values[i][j] + m.Values[j][i]) / 2)
			m.Values[i][j], m.Values[j][i] = v, v
		}
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
