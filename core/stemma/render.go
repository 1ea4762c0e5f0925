package stemma

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderPNG draws the dendrogram with leaves on the left and the root towards
// larger distances on the right.
func RenderPNG(l *DendrogramLayout, fig Figure) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, fig.Width, fig.Height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	f := newFrame(l, fig)
	black := color.RGBA{A: 0xff}

	for _, link := range l.Links {
		c := parseHex(linkColor(link.Color))
		for k := 0; k < 3; k++ {
			line(img,
				f.x(link.Distance[k]), f.y(link.Position[k]),
				f.x(link.Distance[k+1]), f.y(link.Position[k+1]), c)
		}
	}

	for i, label := range l.Labels {
		y := f.y(l.Positions[i])
		w := font.MeasureString(basicfont.Face7x13, label).Ceil()
		text(img, label, int(f.left)-8-w, int(y)+glyphHeight/3, black)
	}

	// Distance axis.
	axisY := f.bottom() + 8
	line(img, f.left, axisY, f.left+f.width, axisY, black)
	for _, v := range f.ticks() {
		x := f.x(v)
		line(img, x, axisY, x, axisY+5, black)
		label := tickLabel(v)
		w := font.MeasureString(basicfont.Face7x13, label).Ceil()
		text(img, label, int(x)-w/2, int(axisY)+5+glyphHeight, black)
	}
	xlabel := "Distance"
	w := font.MeasureString(basicfont.Face7x13, xlabel).Ceil()
	text(img, xlabel, int(f.left+f.width/2)-w/2, fig.Height-10, black)

	w = font.MeasureString(basicfont.Face7x13, fig.Title).Ceil()
	text(img, fig.Title, fig.Width/2-w/2, 28, black)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// line draws an axis-aligned segment two pixels wide. Dendrogram links only
// ever need horizontal and vertical strokes.
func line(img *image.RGBA, x0, y0, x1, y1 float64, c color.Color) {
	ix0, iy0 := int(math.Round(x0)), int(math.Round(y0))
	ix1, iy1 := int(math.Round(x1)), int(math.Round(y1))
	if ix0 > ix1 {
		ix0, ix1 = ix1, ix0
	}
	if iy0 > iy1 {
		iy0, iy1 = iy1, iy0
	}
	for x := ix0; x <= ix1+1; x++ {
		for y := iy0; y <= iy1+1; y++ {
			if ix0 != ix1 && iy0 != iy1 {
				continue
			}
			img.Set(x, y, c)
		}
	}
}

func text(img *image.RGBA, s string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// parseHex reads #rrggbb.
func parseHex(s string) color.RGBA {
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
