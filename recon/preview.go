package recon

import (
	"fmt"
	"math"

	"github.com/lightsheet-lab/gosols/optics"
)

// TimestampBinaryASCII is the timestamp encoding that burns 8 leading pixel
// rows of metadata into every frame; those rows are excluded from previews
// and profiles.
const TimestampBinaryASCII = "binary+ASCII"

// timestampRows is the number of metadata rows for binary+ASCII timestamps.
const timestampRows = 8

// dashPeriod is the spacing of the dark dashes on preview separator lines.
const dashPeriod = 10

// Geometry carries the parameters preview and profile math depend on.
type Geometry struct {
	ProjectionMode     bool
	ProjectionAngleDeg float64
	SamplePxUm         float64
	ScanStepSizePx     int

	// LinePx is the separator line thickness on the composited canvas;
	// CropPx the top/bottom rows dropped to hide unreliable sensor rows.
	LinePx int
	CropPx int

	TimestampMode string
}

// cropRows returns the top and bottom pixel-row counts excluded from a frame.
func (g Geometry) cropRows() (top, bottom int) {
	top, bottom = g.CropPx, g.CropPx
	if g.TimestampMode == TimestampBinaryASCII {
		top = timestampRows
	}
	return top, bottom
}

// propShearPerStep returns the propagation-axis pixel shear per scan step for
// the orthogonal-axis view; its reciprocal is the scan-axis shear per
// propagation pixel for the width view.
func (g Geometry) propShearPerStep() float64 {
	stepUm := optics.ScanStepSizeUm(g.SamplePxUm, g.ScanStepSizePx)
	return stepUm / (g.SamplePxUm * math.Cos(optics.Tilt))
}

// PreviewShape returns the (volumes, channels, height, width) extents of the
// preview a stack of the given extents will produce.  Preview buffers are
// allocated from this closed form; Preview writes exactly this shape.
func PreviewShape(g Geometry, vols, slices, chans, heightPx, widthPx int) (int, int, int, int) {
	top, bottom := g.cropRows()
	h := heightPx - top - bottom
	x := widthPx
	if g.ProjectionMode {
		y := int(math.Round(float64(h) * math.Sin(optics.Tilt+g.ProjectionAngleDeg*math.Pi/180)))
		return vols, chans, y, x
	}
	shearMax := int(math.Round(g.propShearPerStep() * float64(slices-1)))
	y := int(math.Round(float64(h+shearMax) * math.Cos(optics.Tilt)))
	z := int(math.Round(float64(h) * math.Sin(optics.Tilt)))
	return vols, chans, y + z + 2*g.LinePx, x + z + 2*g.LinePx
}

// Preview computes the bounded preview for a raw stack: in projection mode a
// single rescale of the one retained slice, otherwise three max-intensity
// projections composited into one annotated canvas per volume and channel.
func Preview(s *Stack, g Geometry) *Canvas {
	t, c, y, x := PreviewShape(g, s.T, s.Z, s.C, s.Y, s.X)
	dst := NewCanvas(t, c, y, x)
	// shape comes from the closed form, mismatch is impossible here
	if err := PreviewInto(s, g, dst); err != nil {
		panic(err)
	}
	return dst
}

// PreviewInto is Preview writing into caller-allocated (zeroed) memory, so
// pooled buffers can be reused.  The canvas extents must match PreviewShape
// exactly.
func PreviewInto(s *Stack, g Geometry, dst *Canvas) error {
	t, c, y, x := PreviewShape(g, s.T, s.Z, s.C, s.Y, s.X)
	if dst.T != t || dst.C != c || dst.Y != y || dst.X != x {
		return fmt.Errorf("recon: canvas (%d,%d,%d,%d) does not match preview shape (%d,%d,%d,%d)",
			dst.T, dst.C, dst.Y, dst.X, t, c, y, x)
	}
	for v := 0; v < s.T; v++ {
		for ch := 0; ch < s.C; ch++ {
			if g.ProjectionMode {
				projectionPreview(s, g, dst, v, ch)
			} else {
				compositePreview(s, g, dst, v, ch)
			}
		}
	}
	return nil
}

// projectionPreview rescales the single retained slice to physical aspect.
func projectionPreview(s *Stack, g Geometry, dst *Canvas, v, ch int) {
	top, bottom := g.cropRows()
	h := s.Y - top - bottom
	img := newImage(h, s.X)
	for y := 0; y < h; y++ {
		copy(img.Pix[y*s.X:(y+1)*s.X], s.Row(v, 0, ch, y+top))
	}
	scaleY := math.Sin(optics.Tilt + g.ProjectionAngleDeg*math.Pi/180)
	out := zoomNearest(img, scaleY, 1)
	for y := 0; y < out.Y && y < dst.Y; y++ {
		for x := 0; x < out.X && x < dst.X; x++ {
			dst.Set(v, ch, y, x, out.At(y, x))
		}
	}
}

// compositePreview builds the three-projection canvas for one volume and
// channel: the orthogonal-axis view (integer-shift composited then
// max-reduced), the scan view and the width view, each rescaled to physical
// aspect and tiled with dashed separator lines, then flipped to conventional
// orientation.
func compositePreview(s *Stack, g Geometry, dst *Canvas, v, ch int) {
	top, bottom := g.cropRows()
	prop := s.Y - top - bottom
	w := s.X
	slices := s.Z
	perStep := g.propShearPerStep()
	propShearMax := int(math.Round(perStep * float64(slices-1)))
	perProp := 1 / perStep
	scanShearMax := int(math.Round(perProp * float64(prop-1)))

	// orthogonal-axis view: shear-composite each slice, max-reduce
	o1 := newImage(prop+propShearMax, w)
	for z := 0; z < slices; z++ {
		shear := int(math.Round(float64(z) * perStep))
		for y := 0; y < prop; y++ {
			src := s.Row(v, z, ch, y+top)
			row := o1.Pix[(y+shear)*w : (y+shear+1)*w]
			for x := 0; x < w; x++ {
				if src[x] > row[x] {
					row[x] = src[x]
				}
			}
		}
	}
	// scan view: max across slices
	scan := newImage(prop, w)
	for z := 0; z < slices; z++ {
		for y := 0; y < prop; y++ {
			src := s.Row(v, z, ch, y+top)
			row := scan.Pix[y*w : (y+1)*w]
			for x := 0; x < w; x++ {
				if src[x] > row[x] {
					row[x] = src[x]
				}
			}
		}
	}
	// width view: max across the width axis, shear-composited along scan
	maxWidth := newImage(slices, prop) // (slice, propagation)
	for z := 0; z < slices; z++ {
		for y := 0; y < prop; y++ {
			var m uint16
			src := s.Row(v, z, ch, y+top)
			for x := 0; x < w; x++ {
				if src[x] > m {
					m = src[x]
				}
			}
			maxWidth.Set(z, y, m)
		}
	}
	width := newImage(slices+scanShearMax, prop)
	for y := 0; y < prop; y++ {
		shear := int(math.Round(float64(y) * perProp))
		for z := 0; z < slices; z++ {
			width.Set(z+shear, y, maxWidth.At(z, y))
		}
	}

	// rescale to physical aspect ratio
	cosT := math.Cos(optics.Tilt)
	sinT := math.Sin(optics.Tilt)
	o1Img := zoomNearest(o1, cosT, 1)
	scanImg := zoomNearest(scan, sinT, 1)
	scanScale := float64(o1Img.Y) / float64(width.Y)
	widthImg := zoomNearest(width, scanScale, sinT)

	yPx, xPx := o1Img.Y, o1Img.X
	lineMin, lineMax := minMax(o1Img.Pix)
	l := g.LinePx

	blit(dst, v, ch, l, l, flip2(o1Img))
	blit(dst, v, ch, yPx+2*l, l, flip2(scanImg))
	blit(dst, v, ch, l, xPx+2*l, flip2(widthImg))

	// dashed separator lines between the panels
	hline(dst, v, ch, 0, l, lineMin, lineMax)
	hline(dst, v, ch, yPx+l, yPx+2*l, lineMin, lineMax)
	vline(dst, v, ch, 0, l, lineMin, lineMax)
	vline(dst, v, ch, xPx+l, xPx+2*l, lineMin, lineMax)

	flipCanvasRows(dst, v, ch)
}

// zoomNearest rescales an image by independent axis factors using
// nearest-neighbor sampling.  Output extents are the rounded scaled inputs.
func zoomNearest(src Image, scaleY, scaleX float64) Image {
	outY := int(math.Round(float64(src.Y) * scaleY))
	outX := int(math.Round(float64(src.X) * scaleX))
	if outY < 1 {
		outY = 1
	}
	if outX < 1 {
		outX = 1
	}
	out := newImage(outY, outX)
	for y := 0; y < outY; y++ {
		sy := int((float64(y) + 0.5) * float64(src.Y) / float64(outY))
		if sy >= src.Y {
			sy = src.Y - 1
		}
		for x := 0; x < outX; x++ {
			sx := int((float64(x) + 0.5) * float64(src.X) / float64(outX))
			if sx >= src.X {
				sx = src.X - 1
			}
			out.Set(y, x, src.At(sy, sx))
		}
	}
	return out
}

// flip2 reverses an image along both axes.
func flip2(src Image) Image {
	out := newImage(src.Y, src.X)
	for y := 0; y < src.Y; y++ {
		for x := 0; x < src.X; x++ {
			out.Set(src.Y-1-y, src.X-1-x, src.At(y, x))
		}
	}
	return out
}

// blit copies an image into the canvas plane (v, ch) at (y0, x0), clipped to
// the canvas.
func blit(dst *Canvas, v, ch, y0, x0 int, img Image) {
	for y := 0; y < img.Y; y++ {
		dy := y0 + y
		if dy < 0 || dy >= dst.Y {
			continue
		}
		for x := 0; x < img.X; x++ {
			dx := x0 + x
			if dx < 0 || dx >= dst.X {
				continue
			}
			dst.Set(v, ch, dy, dx, img.At(y, x))
		}
	}
}

// hline paints full-width separator rows [y0, y1) with dark dashes every
// dashPeriod columns.
func hline(dst *Canvas, v, ch, y0, y1 int, lineMin, lineMax uint16) {
	for y := y0; y < y1 && y < dst.Y; y++ {
		for x := 0; x < dst.X; x++ {
			if x%dashPeriod == 0 {
				dst.Set(v, ch, y, x, lineMin)
			} else {
				dst.Set(v, ch, y, x, lineMax)
			}
		}
	}
}

// vline paints full-height separator columns [x0, x1) with dark dashes every
// dashPeriod rows.
func vline(dst *Canvas, v, ch, x0, x1 int, lineMin, lineMax uint16) {
	for y := 0; y < dst.Y; y++ {
		for x := x0; x < x1 && x < dst.X; x++ {
			if y%dashPeriod == 0 {
				dst.Set(v, ch, y, x, lineMin)
			} else {
				dst.Set(v, ch, y, x, lineMax)
			}
		}
	}
}

// flipCanvasRows flips one canvas plane upside down to match conventional
// top-down viewing orientation.
func flipCanvasRows(dst *Canvas, v, ch int) {
	for y := 0; y < dst.Y/2; y++ {
		oy := dst.Y - 1 - y
		for x := 0; x < dst.X; x++ {
			a, b := dst.At(v, ch, y, x), dst.At(v, ch, oy, x)
			dst.Set(v, ch, y, x, b)
			dst.Set(v, ch, oy, x, a)
		}
	}
}

func minMax(pix []uint16) (uint16, uint16) {
	if len(pix) == 0 {
		return 0, 0
	}
	lo, hi := pix[0], pix[0]
	for _, v := range pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
