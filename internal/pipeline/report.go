package pipeline

import (
	"context"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/stemma"
	"github.com/FocuswithJustin/JuniperStemma/core/variants"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
)

// ReportVersion is bumped when the Report layout changes incompatibly.
const ReportVersion = 1

// Report bundles one complete analysis for export.
type Report struct {
	Version     int                        `json:"version"`
	GeneratedAt time.Time                  `json:"generated_at"`
	Manuscripts []Witness                  `json:"manuscripts"`
	Omitted     []string                   `json:"omitted,omitempty"`
	Matrix      *distance.Matrix           `json:"matrix"`
	Differences map[string]variants.Record `json:"differences"`
	Failures    map[string]string          `json:"failures,omitempty"`
	Stats       variants.Stats             `json:"stats"`
	Method      string                     `json:"method,omitempty"`
	Newick      string                     `json:"newick,omitempty"`
}

// Report collates once and derives differences, the matrix and, when at least
// three manuscripts are available, the Newick stemma.
func (s *Service) Report(ctx context.Context, ids []string, method string) (*Report, error) {
	cmp, err := s.collateAvailable(ctx, ids, 2, "at least two manuscripts required")
	if err != nil {
		return nil, err
	}
	diffs := s.differencesOf(ctx, cmp)
	m, err := s.matrix(ctx, cmp, "")
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Version:     ReportVersion,
		GeneratedAt: time.Now().UTC(),
		Manuscripts: cmp.Manuscripts,
		Omitted:     cmp.Omitted,
		Matrix:      m,
		Differences: diffs.Differences,
		Failures:    diffs.Failures,
		Stats:       diffs.Stats,
	}

	if m.Len() >= 3 {
		res, err := s.Builder.Build(m, stemma.Options{Method: method, Mode: stemma.ModeNewick})
		switch {
		case err == nil:
			rep.Method, rep.Newick = res.Method, res.Newick
		case errors.Is(err, errors.ErrClustering):
			logging.WarnContext(ctx, "report_without_tree", "error", err.Error())
		default:
			return nil, err
		}
	}
	return rep, nil
}
