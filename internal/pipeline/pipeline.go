// Package pipeline runs manuscripts through collation, difference extraction,
// distance construction and tree building. All state is request-scoped.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/collation"
	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/stemma"
	"github.com/FocuswithJustin/JuniperStemma/core/variants"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
	"github.com/FocuswithJustin/JuniperStemma/internal/metrics"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

// Service wires the store to the analysis packages.
type Service struct {
	Store           store.Store
	Collator        *collation.Collator
	Builder         *stemma.Builder
	DistanceOptions distance.Options
	Strategy        distance.Strategy
	Metrics         *metrics.Metrics // optional
}

// New returns a service using the aligner with the given memo size, the
// built-in clusterer and Strategy A.
func New(st store.Store, aligner collation.Aligner, cacheSize int) *Service {
	return &Service{
		Store:    st,
		Collator: collation.NewCollator(collation.NewAdapter(aligner, cacheSize)),
		Builder:  stemma.NewBuilder(),
		Strategy: distance.StrategyAlignment,
	}
}

// WithMetrics attaches m to the service, the adapter and the builder.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.Metrics = m
	if s.Collator != nil && s.Collator.Adapter != nil {
		s.Collator.Adapter.Observer = m
	}
	if s.Builder != nil {
		s.Builder.Observer = m
	}
	return s
}

type progressKey struct{}

// WithProgress attaches a per-request progress callback used while collating.
func WithProgress(ctx context.Context, fn collation.ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressFrom(ctx context.Context) collation.ProgressFunc {
	fn, _ := ctx.Value(progressKey{}).(collation.ProgressFunc)
	return fn
}

// Witness identifies a manuscript taking part in an analysis.
type Witness struct {
	ID    string `json:"id"`
	Sigla string `json:"sigla"`
}

// Comparison is the collation of a set of manuscripts.
type Comparison struct {
	Manuscripts []Witness               `json:"manuscripts"`
	Omitted     []string                `json:"omitted,omitempty"`
	Verses      []collation.VerseResult `json:"-"`
}

// IDs returns the manuscript ids in request order.
func (c *Comparison) IDs() []string {
	ids := make([]string, len(c.Manuscripts))
	for i, w := range c.Manuscripts {
		ids[i] = w.ID
	}
	return ids
}

// Labels returns the manuscript sigla in request order.
func (c *Comparison) Labels() []string {
	labels := make([]string, len(c.Manuscripts))
	for i, w := range c.Manuscripts {
		labels[i] = w.Sigla
	}
	return labels
}

// Alignments maps each collated verse to its table, or to an error marker
// {"error": "Collation failed: ..."} when the oracle failed. Skipped verses
// are left out.
func (c *Comparison) Alignments() map[string]any {
	out := make(map[string]any, len(c.Verses))
	for _, v := range c.Verses {
		switch {
		case v.Err != nil:
			out[v.Verse] = ErrorMarker(v.Err)
		case v.Table != nil:
			out[v.Verse] = v.Table
		}
	}
	return out
}

// ErrorMarker is the per-verse failure value returned by batch operations.
func ErrorMarker(err error) map[string]string {
	var ce *errors.CollationError
	if errors.As(err, &ce) && ce.Err != nil {
		err = ce.Err
	}
	return map[string]string{"error": fmt.Sprintf("Collation failed: %v", err)}
}

// Collate aligns every shared verse of the manuscripts. At least two ids are
// required and every id must exist.
func (s *Service) Collate(ctx context.Context, ids []string) (*Comparison, error) {
	if len(ids) < 2 {
		return nil, errors.NewValidation("ms_ids", "at least two manuscripts required")
	}
	docs, omitted, err := s.resolve(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	return s.collate(ctx, docs, omitted), nil
}

// Differences collates the manuscripts and extracts the variant readings.
func (s *Service) Differences(ctx context.Context, ids []string) (*DifferenceReport, error) {
	comparison, err := s.Collate(ctx, ids)
	if err != nil {
		return nil, err
	}
	return s.differencesOf(ctx, comparison), nil
}

// DifferenceReport is the variant readings of a comparison.
type DifferenceReport struct {
	Manuscripts []Witness                  `json:"manuscripts"`
	Differences map[string]variants.Record `json:"differences"`
	Failures    map[string]string          `json:"failures,omitempty"`
	Stats       variants.Stats             `json:"stats"`
}

func (s *Service) differencesOf(ctx context.Context, cmp *Comparison) *DifferenceReport {
	start := time.Now()
	records, failures := variants.FromResults(cmp.Verses)
	rep := &DifferenceReport{
		Manuscripts: cmp.Manuscripts,
		Differences: records,
		Stats:       variants.Summary(records),
	}
	if len(failures) > 0 {
		rep.Failures = make(map[string]string, len(failures))
		for verse, err := range failures {
			rep.Failures[verse] = ErrorMarker(err)["error"]
		}
	}
	s.stage(ctx, "differences", start, "verses", len(records), "varying", rep.Stats.VaryingVerses)
	return rep
}

// MatrixReport is a distance matrix with the manuscripts that could not be found.
type MatrixReport struct {
	*distance.Matrix
	Omitted []string `json:"omitted,omitempty"`
}

// Distance builds the distance matrix. Unknown ids are skipped and listed in
// Omitted; at least two manuscripts must remain. An empty strategy uses the
// service default.
func (s *Service) Distance(ctx context.Context, ids []string, strategy distance.Strategy) (*MatrixReport, error) {
	cmp, err := s.collateAvailable(ctx, ids, 2, "at least two manuscripts required")
	if err != nil {
		return nil, err
	}
	m, err := s.matrix(ctx, cmp, strategy)
	if err != nil {
		return nil, err
	}
	return &MatrixReport{Matrix: m, Omitted: cmp.Omitted}, nil
}

// TreeReport is a stemma together with its matrix.
type TreeReport struct {
	*stemma.Result
	Matrix  *distance.Matrix `json:"matrix"`
	Omitted []string         `json:"omitted,omitempty"`
}

// Tree builds a stemma. Like Distance, but three manuscripts must remain.
// The output mode is checked before any collation work starts.
func (s *Service) Tree(ctx context.Context, ids []string, opts stemma.Options) (*TreeReport, error) {
	mode, err := stemma.ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode

	cmp, err := s.collateAvailable(ctx, ids, 3, "at least three manuscripts are required to build a tree")
	if err != nil {
		return nil, err
	}
	m, err := s.matrix(ctx, cmp, "")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := s.Builder.Build(m, opts)
	if err != nil {
		return nil, err
	}
	s.stage(ctx, "tree", start, "method", res.Method, "format", string(res.Mode))
	return &TreeReport{Result: res, Matrix: m, Omitted: cmp.Omitted}, nil
}

func (s *Service) collateAvailable(ctx context.Context, ids []string, need int, msg string) (*Comparison, error) {
	docs, omitted, err := s.resolve(ctx, ids, false)
	if err != nil {
		return nil, err
	}
	if len(docs) < need {
		return nil, errors.NewValidation("ms_ids", msg)
	}
	return s.collate(ctx, docs, omitted), nil
}

func (s *Service) matrix(ctx context.Context, cmp *Comparison, strategy distance.Strategy) (*distance.Matrix, error) {
	if strategy == "" {
		strategy = s.Strategy
	}
	start := time.Now()
	m, err := distance.Build(strategy, cmp.Verses, cmp.IDs(), cmp.Labels(), s.DistanceOptions)
	if err != nil {
		return nil, err
	}
	if s.Metrics != nil {
		s.Metrics.MatrixBuilt(m)
	}
	s.stage(ctx, "distance", start, "strategy", string(strategy), "imputed", m.ImputedPairs())
	return m, nil
}

// resolve loads the manuscripts in request order. Duplicate ids are
// collapsed. With strict set an unknown id fails the request; otherwise it is
// returned in omitted.
func (s *Service) resolve(ctx context.Context, ids []string, strict bool) ([]*store.Manuscript, []string, error) {
	var (
		docs    []*store.Manuscript
		omitted []string
		seen    = make(map[string]bool, len(ids))
	)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		m, err := s.Store.Get(ctx, id)
		switch {
		case err == nil:
			docs = append(docs, m)
		case errors.Is(err, errors.ErrNotFound) && !strict:
			omitted = append(omitted, id)
		default:
			return nil, nil, err
		}
	}
	if len(omitted) > 0 {
		logging.WarnContext(ctx, "manuscripts_omitted", "ids", omitted)
	}
	return docs, omitted, nil
}

func (s *Service) collate(ctx context.Context, docs []*store.Manuscript, omitted []string) *Comparison {
	start := time.Now()
	cmp := &Comparison{Omitted: omitted}
	sources := make([]collation.Source, len(docs))
	for i, m := range docs {
		cmp.Manuscripts = append(cmp.Manuscripts, Witness{ID: m.ID, Sigla: m.Sigla()})
		sources[i] = m.Source()
	}

	collator := *s.Collator
	if fn := progressFrom(ctx); fn != nil {
		collator.Progress = fn
	}
	cmp.Verses = collator.CollateVerses(ctx, collation.GroupVerses(sources))

	failed := 0
	for _, v := range cmp.Verses {
		if v.Err != nil {
			failed++
		}
	}
	s.stage(ctx, "collate", start, "manuscripts", len(docs), "verses", len(cmp.Verses), "failed", failed)
	return cmp
}

func (s *Service) stage(ctx context.Context, name string, start time.Time, args ...any) {
	d := time.Since(start)
	logging.PipelineStage(ctx, name, d, args...)
	if s.Metrics != nil {
		s.Metrics.Stage(name, d)
	}
}
