package stemma

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// RenderSVG draws the same figure as RenderPNG as an SVG document.
func RenderSVG(l *DendrogramLayout, fig Figure) string {
	f := newFrame(l, fig)
	var b strings.Builder

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`+"\n",
		fig.Width, fig.Height, fig.Width, fig.Height)
	fmt.Fprintf(&b, `<rect width="100%%" height="100%%" fill="white"/>`+"\n")
	fmt.Fprintf(&b, `<text x="%d" y="28" text-anchor="middle" font-family="sans-serif" font-size="16">%s</text>`+"\n",
		fig.Width/2, escape(fig.Title))

	for _, link := range l.Links {
		var pts []string
		for k := 0; k < 4; k++ {
			pts = append(pts, fmt.Sprintf("%.2f,%.2f", f.x(link.Distance[k]), f.y(link.Position[k])))
		}
		fmt.Fprintf(&b, `<polyline points="%s" fill="none" stroke="%s" stroke-width="2"/>`+"\n",
			strings.Join(pts, " "), linkColor(link.Color))
	}

	for i, label := range l.Labels {
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" text-anchor="end" dominant-baseline="middle" font-family="monospace" font-size="12">%s</text>`+"\n",
			f.left-8, f.y(l.Positions[i]), escape(label))
	}

	axisY := f.bottom() + 8
	fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="black"/>`+"\n",
		f.left, axisY, f.left+f.width, axisY)
	for _, v := range f.ticks() {
		x := f.x(v)
		fmt.Fprintf(&b, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="black"/>`+"\n", x, axisY, x, axisY+5)
		fmt.Fprintf(&b, `<text x="%.2f" y="%.2f" text-anchor="middle" font-family="sans-serif" font-size="11">%s</text>`+"\n",
			x, axisY+5+glyphHeight, tickLabel(v))
	}
	fmt.Fprintf(&b, `<text x="%.2f" y="%d" text-anchor="middle" font-family="sans-serif" font-size="12">Distance</text>`+"\n",
		f.left+f.width/2, fig.Height-10)
	b.WriteString("</svg>\n")
	return b.String()
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
