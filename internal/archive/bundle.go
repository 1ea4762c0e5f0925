package archive

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/cas"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/newick"
	"github.com/FocuswithJustin/JuniperStemma/core/stemma"
	"github.com/FocuswithJustin/JuniperStemma/internal/pipeline"
)

// Bundle entry names.
const (
	ManifestName = "manifest.json"
	ReportName   = "report.json"
	MatrixName   = "matrix.tsv"
	NewickName   = "stemma.nwk"
)

// Extension is the suffix of exported bundles.
const Extension = ".stemma.tar.xz"

// Manifest lists the bundle contents with their BLAKE3 digests.
type Manifest struct {
	Version     int                `json:"version"`
	GeneratedAt string             `json:"generated_at"`
	Manuscripts []pipeline.Witness `json:"manuscripts"`
	Method      string             `json:"method,omitempty"`
	Files       map[string]string  `json:"files"`
}

// Entries renders a report as bundle entries, manifest first.
func Entries(rep *pipeline.Report) ([]Entry, error) {
	if rep == nil || rep.Matrix == nil {
		return nil, errors.NewValidation("report", "report has no distance matrix")
	}
	reportJSON, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	matrixTSV, err := matrixTable(rep)
	if err != nil {
		return nil, err
	}

	files := []Entry{
		{Name: ReportName, Data: reportJSON},
		{Name: MatrixName, Data: matrixTSV},
	}
	if rep.Newick != "" {
		files = append(files, Entry{Name: NewickName, Data: []byte(rep.Newick + "\n")})
	}

	manifest := Manifest{
		Version:     rep.Version,
		GeneratedAt: rep.GeneratedAt.Format(time.RFC3339),
		Manuscripts: rep.Manuscripts,
		Method:      rep.Method,
		Files:       make(map[string]string, len(files)),
	}
	for _, f := range files {
		manifest.Files[f.Name] = cas.Digest(f.Data)
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append([]Entry{{Name: ManifestName, Data: manifestJSON}}, files...), nil
}

// Export writes the report bundle to path.
func Export(path string, rep *pipeline.Report) error {
	entries, err := Entries(rep)
	if err != nil {
		return err
	}
	return WriteFile(path, entries, rep.GeneratedAt)
}

// Import reads a bundle, checks every digest listed in the manifest and, when
// a stemma is present, that its leaves are exactly the matrix labels.
func Import(path string) (*pipeline.Report, *Manifest, error) {
	files, err := ReadAll(path)
	if err != nil {
		return nil, nil, err
	}

	raw, ok := files[ManifestName]
	if !ok {
		return nil, nil, errors.NewParse("bundle", path, "missing "+ManifestName)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, nil, errors.WrapParse("bundle manifest", path, err)
	}

	names := make([]string, 0, len(manifest.Files))
	for name := range manifest.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		data, ok := files[name]
		if !ok {
			return nil, nil, errors.NewParse("bundle", path, "missing "+name)
		}
		if got := cas.Digest(data); got != manifest.Files[name] {
			return nil, nil, errors.NewParse("bundle", path, fmt.Sprintf("digest mismatch for %s", name))
		}
	}

	var rep pipeline.Report
	if err := json.Unmarshal(files[ReportName], &rep); err != nil {
		return nil, nil, errors.WrapParse("report", path, err)
	}
	if rep.Matrix == nil {
		return nil, nil, errors.NewParse("report", path, "no distance matrix")
	}
	if err := rep.Matrix.Validate(); err != nil {
		return nil, nil, err
	}
	if rep.Newick != "" {
		if err := CheckNewick(rep.Newick, rep.Matrix.Labels); err != nil {
			return nil, nil, err
		}
	}
	return &rep, &manifest, nil
}

// CheckNewick parses s and verifies that each label appears exactly once as a
// leaf, under the same naming the tree builder applies.
func CheckNewick(s string, labels []string) error {
	root, err := newick.Parse(s)
	if err != nil {
		return err
	}
	want := stemma.LeafNames(labels)
	got := root.Leaves()
	sort.Strings(want)
	sort.Strings(got)
	if strings.Join(want, "\x00") != strings.Join(got, "\x00") {
		return errors.NewValidation("newick", fmt.Sprintf("leaves %v do not match manuscripts %v", got, want))
	}
	return nil
}

func matrixTable(rep *pipeline.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	m := rep.Matrix
	if err := w.Write(append([]string{""}, m.Labels...)); err != nil {
		return nil, err
	}
	for i, row := range m.Values {
		record := make([]string, 0, len(row)+1)
		record = append(record, m.Labels[i])
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'f', 6, 64))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
