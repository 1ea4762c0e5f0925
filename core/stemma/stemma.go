// Package stemma turns a distance matrix into a manuscript relationship tree:
// a linkage with method fallback, rendered as a dendrogram image or as Newick.
package stemma

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/distance"
	"github.com/FocuswithJustin/JuniperStemma/core/errors"
	"github.com/FocuswithJustin/JuniperStemma/core/linkage"
	"github.com/FocuswithJustin/JuniperStemma/internal/logging"
)

// DefaultMethod is used when no linkage method is requested.
const DefaultMethod = "average"

// fallbackOrder is tried after the requested method.
var fallbackOrder = []string{"ward", "complete", "average", "single"}

// Linker is the clustering oracle.
type Linker interface {
	Linkage(condensed []float64, method string) (linkage.Tree, error)
}

// Mode selects the output representation.
type Mode string

const (
	ModeBase64 Mode = "base64"
	ModePNG    Mode = "png"
	ModeSVG    Mode = "svg"
	ModeNewick Mode = "newick"
)

// ParseMode accepts a mode name; empty means base64.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return ModeBase64, nil
	case ModeBase64, ModePNG, ModeSVG, ModeNewick:
		return m, nil
	default:
		return "", errors.NewUnsupported("tree format", s)
	}
}

// Options controls a build.
type Options struct {
	Method string
	Mode   Mode
	// DPI scales the figure size; 0 means DefaultDPI.
	DPI int
}

// Observer is told about linkage fallbacks and build durations.
type Observer interface {
	LinkageFallback(method string)
	TreeBuilt(mode string, d time.Duration)
}

// Result holds the tree and the requested rendering.
type Result struct {
	Method   string       `json:"method"`
	Attempts []string     `json:"attempts"`
	Tree     linkage.Tree `json:"tree"`
	Labels   []string     `json:"labels"`
	Newick   string       `json:"newick"`
	Image    []byte       `json:"-"`
	Base64   string       `json:"image,omitempty"`
	SVG      string       `json:"svg,omitempty"`
	Mode     Mode         `json:"format"`
}

// Builder builds trees with a Linker.
type Builder struct {
	Linker   Linker
	Observer Observer // optional
}

// NewBuilder returns a builder backed by the built-in clusterer.
func NewBuilder() *Builder {
	return &Builder{Linker: linkage.Oracle{}}
}

// Methods returns the order in which linkage methods are tried: the requested
// one, then ward, complete, average and single, without repeats.
func Methods(requested string) []string {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "" {
		requested = DefaultMethod
	}
	out := []string{requested}
	for _, m := range fallbackOrder {
		if m != requested {
			out = append(out, m)
		}
	}
	return out
}

// Build clusters the matrix and renders the result in opts.Mode.
// Fewer than three manuscripts is a validation error for every mode.
func (b *Builder) Build(m *distance.Matrix, opts Options) (*Result, error) {
	start := time.Now()
	if m == nil || m.Len() < 3 {
		return nil, errors.NewValidation("ms_ids", "at least three manuscripts are required to build a tree")
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeBase64
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	tree, method, attempts, err := b.link(m.Condensed(), opts.Method)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Method:   method,
		Attempts: attempts,
		Tree:     tree,
		Labels:   m.Labels,
		Newick:   Newick(tree, m.Labels),
		Mode:     mode,
	}

	switch mode {
	case ModeBase64, ModePNG:
		img, err := RenderPNG(Layout(tree, m.Labels), figureFor(len(m.Labels), opts.DPI))
		if err != nil {
			return nil, fmt.Errorf("render dendrogram: %w", err)
		}
		res.Image = img
		if mode == ModeBase64 {
			res.Base64 = base64.StdEncoding.EncodeToString(img)
		}
	case ModeSVG:
		res.SVG = RenderSVG(Layout(tree, m.Labels), figureFor(len(m.Labels), opts.DPI))
	}

	if b.Observer != nil {
		b.Observer.TreeBuilt(string(mode), time.Since(start))
	}
	return res, nil
}

func (b *Builder) link(condensed []float64, requested string) (linkage.Tree, string, []string, error) {
	linker := b.Linker
	if linker == nil {
		linker = linkage.Oracle{}
	}
	cerr := &errors.ClusteringError{}
	for _, method := range Methods(requested) {
		cerr.Attempts = append(cerr.Attempts, method)
		tree, err := linker.Linkage(condensed, method)
		if err == nil {
			return tree, method, cerr.Attempts, nil
		}
		cerr.Errs = append(cerr.Errs, err)
		logging.ClusteringFallback(method, err)
		if b.Observer != nil {
			b.Observer.LinkageFallback(method)
		}
	}
	return linkage.Tree{}, "", cerr.Attempts, cerr
}
