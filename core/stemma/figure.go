package stemma

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultDPI matches the resolution the dendrograms were historically saved at.
const DefaultDPI = 150

// Figure is the output canvas size.
type Figure struct {
	Width, Height int // pixels
	Title         string
}

// figureFor sizes the canvas at max(10, n*0.5) by max(7, n*0.3) inches.
func figureFor(n, dpi int) Figure {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	w := max(10, float64(n)*0.5)
	h := max(7, float64(n)*0.3)
	return Figure{
		Width:  int(math.Round(w * float64(dpi))),
		Height: int(math.Round(h * float64(dpi))),
		Title:  fmt.Sprintf("Manuscript Relationship Tree (%d manuscripts)", n),
	}
}

var (
	aboveThresholdColor = "#1f77b4"
	subtreeColors       = []string{"#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b", "#e377c2", "#7f7f7f", "#bcbd22", "#17becf"}
)

func linkColor(c int) string {
	if c == 0 {
		return aboveThresholdColor
	}
	return subtreeColors[(c-1)%len(subtreeColors)]
}

// Character cell of the bitmap font, reused by the SVG renderer so both
// outputs reserve the same label margin.
const (
	glyphWidth  = 7
	glyphHeight = 13
)

// frame maps layout coordinates to pixels.
type frame struct {
	left, top, width, height float64
	xmax, span               float64
}

func newFrame(l *DendrogramLayout, fig Figure) frame {
	longest := 0
	for _, label := range l.Labels {
		longest = max(longest, len([]rune(label)))
	}
	f := frame{
		left: float64(longest*glyphWidth + 24),
		top:  48,
		span: l.Span(),
		xmax: l.MaxDistance * 1.05,
	}
	if f.xmax == 0 {
		f.xmax = 1
	}
	f.width = max(float64(fig.Width)-f.left-32, 1)
	f.height = max(float64(fig.Height)-f.top-56, 1)
	return f
}

func (f frame) x(d float64) float64 { return f.left + d/f.xmax*f.width }

func (f frame) y(pos float64) float64 { return f.top + f.height - pos/f.span*f.height }

func (f frame) bottom() float64 { return f.top + f.height }

// ticks returns five evenly spaced axis values starting at zero.
func (f frame) ticks() []float64 {
	out := make([]float64, 0, 6)
	for i := 0; i <= 5; i++ {
		out = append(out, f.xmax*float64(i)/5)
	}
	return out
}

func tickLabel(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
