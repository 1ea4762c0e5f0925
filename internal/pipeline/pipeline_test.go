package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/FocuswithJustin/JuniperStemma/core/align"
	"github.com/FocuswithJustin/JuniperStemma/core/collation"
	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/newick"
	"github.com/FocuswithJustin/JuniperStemma/core/stemma"
	"github.com/FocuswithJustin/JuniperStemma/internal/metrics"
	"github.com/FocuswithJustin/JuniperStemma/internal/store"
)

func newService(t *testing.T, docs ...*store.Manuscript) (*Service, []string) {
	t.Helper()
	st := store.NewMemoryStore()
	ids := make([]string, len(docs))
	for i, m := range docs {
		id, err := st.Put(context.Background(), m)
		if err != nil {
			t.Fatalf("Put() error = %v", err)
		}
		ids[i] = id
	}
	svc := New(st, align.New(), 64).WithMetrics(metrics.New(prometheus.NewRegistry()))
	return svc, ids
}

func manuscript(sigla string, verses ...string) *store.Manuscript {
	m := &store.Manuscript{Metadata: map[string]string{"Sigla:": sigla}}
	for i, text := range verses {
		if text == "" {
			continue
		}
		m.Verses = append(m.Verses, store.Verse{ID: fmt.Sprint(i + 1), Text: text})
	}
	return m
}

func TestCollateRequiresTwoManuscripts(t *testing.T) {
	svc, ids := newService(t, manuscript("A", "x"))
	_, err := svc.Collate(context.Background(), ids)
	var ve *errors.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Collate() error = %v, want ValidationError", err)
	}
}

func TestCollateUnknownManuscript(t *testing.T) {
	svc, ids := newService(t, manuscript("A", "x"))
	_, err := svc.Collate(context.Background(), []string{ids[0], "missing"})
	var nf *errors.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "missing" {
		t.Fatalf("Collate() error = %v, want NotFoundError for missing", err)
	}
}

func TestDifferencesSingleVariant(t *testing.T) {
	svc, ids := newService(t,
		manuscript("A", "The cat is grey.", "Identical verse"),
		manuscript("B", "The cat is gray.", "Identical verse"),
	)
	rep, err := svc.Differences(context.Background(), ids)
	if err != nil {
		t.Fatalf("Differences() error = %v", err)
	}

	if got := rep.Differences["2"]; len(got) != 0 {
		t.Errorf("identical verse has differences %+v", got)
	}
	got := rep.Differences["1"]
	if len(got) != 1 {
		t.Fatalf("verse 1 differences = %+v, want one", got)
	}
	if diff := cmp.Diff(map[string]string{"w1": "grey", "w2": "gray"}, got[0].Forms); diff != "" {
		t.Errorf("forms mismatch (-want +got):\n%s", diff)
	}
	if rep.Stats.VaryingVerses != 1 {
		t.Errorf("VaryingVerses = %d, want 1", rep.Stats.VaryingVerses)
	}
	want := []Witness{{ID: ids[0], Sigla: "A"}, {ID: ids[1], Sigla: "B"}}
	if diff := cmp.Diff(want, rep.Manuscripts); diff != "" {
		t.Errorf("manuscripts mismatch (-want +got):\n%s", diff)
	}
}

func TestCollateSkipsSingleWitnessVerses(t *testing.T) {
	svc, ids := newService(t,
		manuscript("A", "shared text", "only here"),
		manuscript("B", "shared text"),
	)
	comparison, err := svc.Collate(context.Background(), ids)
	if err != nil {
		t.Fatalf("Collate() error = %v", err)
	}
	alignments := comparison.Alignments()
	if _, ok := alignments["2"]; ok {
		t.Error("single-witness verse should be left out")
	}
	if _, ok := alignments["1"].(*collation.Table); !ok {
		t.Errorf("verse 1 = %T, want *collation.Table", alignments["1"])
	}

	m, err := svc.Distance(context.Background(), ids, "")
	if err != nil {
		t.Fatalf("Distance() error = %v", err)
	}
	if m.Values[0][1] != 0 || m.Counts[0][1] != 1 {
		t.Errorf("distance = %v, counts = %v", m.Values, m.Counts)
	}
}

func TestAlignmentsErrorMarker(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	a, _ := st.Put(ctx, manuscript("A", "good", "bad"))
	b, _ := st.Put(ctx, manuscript("B", "good", "bad"))

	base := align.New()
	failing := collation.AlignerFunc(func(ctx context.Context, ws []collation.Witness, opts collation.Options) (*collation.Table, error) {
		if ws[0].Content == "bad" {
			return nil, fmt.Errorf("server unavailable")
		}
		return base.Align(ctx, ws, opts)
	})
	svc := New(st, failing, 0)

	comparison, err := svc.Collate(ctx, []string{a, b})
	if err != nil {
		t.Fatalf("Collate() error = %v", err)
	}
	got := comparison.Alignments()["2"]
	want := map[string]string{"error": "Collation failed: server unavailable"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("marker mismatch (-want +got):\n%s", diff)
	}

	rep, err := svc.Differences(ctx, []string{a, b})
	if err != nil {
		t.Fatalf("Differences() error = %v", err)
	}
	if rep.Failures["2"] != want["error"] {
		t.Errorf("Failures = %v", rep.Failures)
	}
}

func TestDistanceOmitsUnknown(t *testing.T) {
	svc, ids := newService(t,
		manuscript("A", "a b c d"),
		manuscript("B", "a b c e"),
	)
	rep, err := svc.Distance(context.Background(), append(ids, "ghost"), distance.StrategyText)
	if err != nil {
		t.Fatalf("Distance() error = %v", err)
	}
	if diff := cmp.Diff([]string{"ghost"}, rep.Omitted); diff != "" {
		t.Errorf("Omitted mismatch (-want +got):\n%s", diff)
	}
	if rep.Strategy != distance.StrategyText || rep.Len() != 2 {
		t.Errorf("matrix = %+v", rep.Matrix)
	}
	if err := rep.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}

	_, err = svc.Distance(context.Background(), []string{ids[0], "ghost"}, "")
	if !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Distance() with one known id error = %v, want validation", err)
	}
}

func fiveDocs() []*store.Manuscript {
	return []*store.Manuscript{
		manuscript("A", "the cat is grey", "and it sat down"),
		manuscript("B", "the cat is grey", "and it sat down"),
		manuscript("C", "the cat is gray", "and it sat upon"),
		manuscript("D", "the cat is gray", "and it sat upon"),
		manuscript("E", "the cat is gray", "and it sat upon"),
	}
}

func TestTree(t *testing.T) {
	svc, ids := newService(t, fiveDocs()...)
	rep, err := svc.Tree(context.Background(), ids, stemma.Options{Mode: stemma.ModeNewick})
	if err != nil {
		t.Fatalf("Tree() error = %v", err)
	}
	if !strings.HasSuffix(rep.Newick, ";") {
		t.Errorf("Newick %q does not end with ;", rep.Newick)
	}
	node, err := newick.Parse(rep.Newick)
	if err != nil {
		t.Fatalf("newick.Parse() error = %v", err)
	}
	if diff := cmp.Diff(5, len(node.Leaves())); diff != "" {
		t.Errorf("leaf count mismatch (-want +got):\n%s", diff)
	}
	if rep.Tree.Steps[0].Distance != 0 {
		t.Errorf("first merge at %v, want 0", rep.Tree.Steps[0].Distance)
	}
}

func TestTreeRejectsModeBeforeCollating(t *testing.T) {
	var calls atomic.Int32
	oracle := align.New()
	counting := collation.AlignerFunc(func(ctx context.Context, ws []collation.Witness, opts collation.Options) (*collation.Table, error) {
		calls.Add(1)
		return oracle.Align(ctx, ws, opts)
	})

	st := store.NewMemoryStore()
	var ids []string
	for _, m := range fiveDocs() {
		id, err := st.Put(context.Background(), m)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	svc := New(st, counting, 64).WithMetrics(metrics.New(prometheus.NewRegistry()))

	_, err := svc.Tree(context.Background(), ids, stemma.Options{Mode: "gif"})
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("Tree(gif) error = %v, want ErrUnsupported", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("aligner called %d times for a rejected mode", n)
	}

	if _, err := svc.Tree(context.Background(), ids, stemma.Options{Mode: stemma.ModeNewick}); err != nil {
		t.Fatalf("Tree(newick) error = %v", err)
	}
	if calls.Load() == 0 {
		t.Error("aligner never called for a valid mode")
	}
}

func TestTreeRequiresThreeResolved(t *testing.T) {
	svc, ids := newService(t, manuscript("A", "x"), manuscript("B", "y"))
	for _, mode := range []stemma.Mode{stemma.ModeBase64, stemma.ModePNG, stemma.ModeSVG, stemma.ModeNewick} {
		_, err := svc.Tree(context.Background(), append(ids, "ghost"), stemma.Options{Mode: mode})
		var ve *errors.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Tree(%s) error = %v, want ValidationError", mode, err)
		}
	}
}

func TestProgressFromContext(t *testing.T) {
	svc, ids := newService(t, fiveDocs()...)

	var (
		mu    sync.Mutex
		calls []int
	)
	ctx := WithProgress(context.Background(), func(done, total int, verse string) {
		mu.Lock()
		defer mu.Unlock()
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		calls = append(calls, done)
	})
	if _, err := svc.Collate(ctx, ids); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 2}, calls); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	if svc.Collator.Progress != nil {
		t.Error("per-request progress leaked into the shared collator")
	}
}

func TestReport(t *testing.T) {
	svc, ids := newService(t, fiveDocs()...)
	rep, err := svc.Report(context.Background(), ids, "")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if rep.Version != ReportVersion || rep.Method != "average" || rep.Newick == "" {
		t.Errorf("report header = %+v", rep)
	}
	if len(rep.Differences) != 2 || rep.Matrix.Len() != 5 {
		t.Errorf("differences = %d, matrix = %d", len(rep.Differences), rep.Matrix.Len())
	}

	svc2, ids2 := newService(t, manuscript("A", "x"), manuscript("B", "y"))
	rep2, err := svc2.Report(context.Background(), ids2, "")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if rep2.Newick != "" {
		t.Errorf("two-manuscript report has a tree: %q", rep2.Newick)
	}
}
