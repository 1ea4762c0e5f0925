package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/newick"
	"github.com/FocuswithJustin/JuniperStemma/internal/pipeline"
)

func createTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	return path
}

func teiDoc(sigla string, verses ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><TEI><teiHeader><msIdentifier><msName>` + sigla + `</msName></msIdentifier></teiHeader><text><body>`)
	for i, v := range verses {
		b.WriteString(`<ab n="` + string(rune('1'+i)) + `">` + v + `</ab>`)
	}
	b.WriteString(`</body></text></TEI>`)
	return b.String()
}

type harness struct {
	t   *testing.T
	dir string
	db  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{t: t, dir: dir, db: filepath.Join(dir, "stemma.db")}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	full := append([]string{"--db", h.db, "--log-level", "error"}, args...)
	err := run(context.Background(), full, &out, &errOut)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("stemma %s: %v", strings.Join(args, " "), err)
	}
	return out
}

// importSample stores four manuscripts and returns their ids.
func (h *harness) importSample() []string {
	h.t.Helper()
	files := []string{
		createTestFile(h.t, h.dir, "a.xml", teiDoc("A", "The cat is grey.", "It sat on the mat.")),
		createTestFile(h.t, h.dir, "b.xml", teiDoc("B", "The cat is grey.", "It sat on the mat.")),
		createTestFile(h.t, h.dir, "c.xml", teiDoc("C", "The cat is gray.", "It sat on a mat.")),
		createTestFile(h.t, h.dir, "d.xml", teiDoc("D", "A dog is gray.", "It stood on a rug.")),
	}
	out := h.mustRun(append([]string{"import"}, files...)...)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(files) {
		h.t.Fatalf("import printed %d lines:\n%s", len(lines), out)
	}
	ids := make([]string, len(lines))
	for i, line := range lines {
		ids[i] = strings.Fields(line)[0]
	}
	return ids
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	if out := h.mustRun("version"); !strings.Contains(out, version) {
		t.Errorf("version output = %q", out)
	}
}

func TestImportListShow(t *testing.T) {
	h := newHarness(t)
	ids := h.importSample()

	out := h.mustRun("list")
	for _, sigla := range []string{"A", "B", "C", "D"} {
		if !strings.Contains(out, sigla) {
			t.Errorf("list missing %s:\n%s", sigla, out)
		}
	}

	if out := h.mustRun("show", ids[2], "--verse", "1"); strings.TrimSpace(out) != "The cat is gray." {
		t.Errorf("show verse = %q", out)
	}

	_, err := h.run("show", "no-such-id")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("show unknown error = %v", err)
	}

	h.mustRun("delete", ids[3])
	if out := h.mustRun("list", "--json"); strings.Contains(out, ids[3]) {
		t.Errorf("deleted manuscript still listed:\n%s", out)
	}
}

func TestDiffAndMatrix(t *testing.T) {
	h := newHarness(t)
	ids := h.importSample()

	var rep pipeline.DifferenceReport
	if err := json.Unmarshal([]byte(h.mustRun("diff", ids[0], ids[1])), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Stats.VaryingVerses != 0 {
		t.Errorf("identical manuscripts vary: %+v", rep.Stats)
	}

	out := h.mustRun("matrix", "--json", "--strategy", "text", ids[0], ids[1], ids[2])
	var m struct {
		Values [][]float64 `json:"values"`
	}
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatal(err)
	}
	if m.Values[0][1] != 0 || m.Values[0][2] <= 0 || m.Values[0][2] != m.Values[2][0] {
		t.Errorf("matrix = %v", m.Values)
	}

	if out := h.mustRun("matrix", ids[0], ids[1], "missing"); !strings.Contains(out, "omitted: missing") {
		t.Errorf("matrix text output = %q", out)
	}
}

func TestTree(t *testing.T) {
	h := newHarness(t)
	ids := h.importSample()

	out := h.mustRun(append([]string{"tree", "--method", "average"}, ids...)...)
	root, err := newick.Parse(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("newick.Parse(%q) error = %v", out, err)
	}
	if len(root.Leaves()) != 4 {
		t.Errorf("leaves = %v", root.Leaves())
	}

	png := filepath.Join(h.dir, "tree.png")
	h.mustRun(append([]string{"tree", "--format", "png", "--out", png}, ids...)...)
	data, err := os.ReadFile(png)
	if err != nil || !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("png output invalid: %v", err)
	}

	_, err = h.run("tree", ids[0], ids[1])
	var ve *errors.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("two-manuscript tree error = %v, want ValidationError", err)
	}

	_, err = h.run(append([]string{"tree", "--format", "gif"}, ids...)...)
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Errorf("gif tree error = %v", err)
	}
}

func TestExportReportAndNewickCheck(t *testing.T) {
	h := newHarness(t)
	ids := h.importSample()

	bundle := filepath.Join(h.dir, "out.stemma.tar.xz")
	h.mustRun(append([]string{"export", "--out", bundle}, ids...)...)

	out := h.mustRun("report", bundle)
	for _, want := range []string{"manuscript", "newick", "files verified"} {
		if !strings.Contains(out, want) {
			t.Errorf("report output missing %q:\n%s", want, out)
		}
	}

	nwk := filepath.Join(h.dir, "tree.nwk")
	h.mustRun(append([]string{"tree", "--out", nwk}, ids...)...)
	out = h.mustRun("newick", "check", nwk, "--labels", "A,B,C,D")
	if !strings.Contains(out, "4 leaves") {
		t.Errorf("newick check output = %q", out)
	}

	if _, err := h.run("newick", "check", nwk, "--labels", "A,B"); err == nil {
		t.Error("newick check accepted mismatched labels")
	}
}

func TestGlobalsApply(t *testing.T) {
	h := newHarness(t)
	app, err := newApp(Globals{DB: h.db, CollateXURL: "http://localhost:7369", LogLevel: "error"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if app.Cfg.Aligner.Kind != "collatex" || app.Cfg.Store.Path != h.db || app.Cfg.Logging.Level != "error" {
		t.Errorf("config = %+v", app.Cfg)
	}

	if _, err := newApp(Globals{Aligner: "oracle"}, &bytes.Buffer{}); err == nil {
		t.Error("unknown aligner accepted")
	}
}
