/*Package recon converts raw skewed camera stacks from the oblique-plane
microscope into analysis-ready views: the shear-corrected native volume,
bounded max-intensity preview projections, an automatic region-of-interest
crop, the fully rotated traditional view, and a coarse axial position
estimate.

Raw data is tzcyx ordered: (volume, slice, channel, height, width).  All
pixel math is on 16-bit unsigned samples, and the native/preview paths use
only integer shifts and nearest-neighbor resampling so results are
deterministic and repeatable.
*/
package recon

import "fmt"

// Stack is a dense 5-D image stack in tzcyx order.
type Stack struct {
	T, Z, C, Y, X int
	Data          []uint16
}

// NewStack returns a zeroed stack of the given extents.
func NewStack(t, z, c, y, x int) *Stack {
	return &Stack{T: t, Z: z, C: c, Y: y, X: x,
		Data: make([]uint16, t*z*c*y*x)}
}

// WrapStack reinterprets an existing pixel slice as a stack.  The slice is
// shared, not copied.
func WrapStack(data []uint16, t, z, c, y, x int) (*Stack, error) {
	if len(data) != t*z*c*y*x {
		return nil, fmt.Errorf("recon: %d pixels cannot be shaped to (%d,%d,%d,%d,%d)",
			len(data), t, z, c, y, x)
	}
	return &Stack{T: t, Z: z, C: c, Y: y, X: x, Data: data}, nil
}

func (s *Stack) index(t, z, c, y, x int) int {
	return x + s.X*(y+s.Y*(c+s.C*(z+s.Z*t)))
}

// At returns the pixel at (t, z, c, y, x).
func (s *Stack) At(t, z, c, y, x int) uint16 {
	return s.Data[s.index(t, z, c, y, x)]
}

// Set writes the pixel at (t, z, c, y, x).
func (s *Stack) Set(t, z, c, y, x int, v uint16) {
	s.Data[s.index(t, z, c, y, x)] = v
}

// Row returns the contiguous x-run at (t, z, c, y).
func (s *Stack) Row(t, z, c, y int) []uint16 {
	i := s.index(t, z, c, y, 0)
	return s.Data[i : i+s.X]
}

// Canvas is a dense 4-D preview stack in tcyx order.
type Canvas struct {
	T, C, Y, X int
	Data       []uint16
}

// NewCanvas returns a zeroed canvas of the given extents.
func NewCanvas(t, c, y, x int) *Canvas {
	return &Canvas{T: t, C: c, Y: y, X: x, Data: make([]uint16, t*c*y*x)}
}

// WrapCanvas reinterprets an existing pixel slice as a canvas.  The slice is
// shared, not copied.
func WrapCanvas(data []uint16, t, c, y, x int) (*Canvas, error) {
	if len(data) != t*c*y*x {
		return nil, fmt.Errorf("recon: %d pixels cannot be shaped to (%d,%d,%d,%d)",
			len(data), t, c, y, x)
	}
	return &Canvas{T: t, C: c, Y: y, X: x, Data: data}, nil
}

func (v *Canvas) index(t, c, y, x int) int {
	return x + v.X*(y+v.Y*(c+v.C*t))
}

// At returns the pixel at (t, c, y, x).
func (v *Canvas) At(t, c, y, x int) uint16 {
	return v.Data[v.index(t, c, y, x)]
}

// Set writes the pixel at (t, c, y, x).
func (v *Canvas) Set(t, c, y, x int, val uint16) {
	v.Data[v.index(t, c, y, x)] = val
}

// Image extracts the 2-D (y, x) plane at (t, c) as a standalone image.
func (v *Canvas) Image(t, c int) Image {
	img := Image{Y: v.Y, X: v.X, Pix: make([]uint16, v.Y*v.X)}
	for y := 0; y < v.Y; y++ {
		i := v.index(t, c, y, 0)
		copy(img.Pix[y*v.X:(y+1)*v.X], v.Data[i:i+v.X])
	}
	return img
}

// Image is a simple strided 2-D image.
type Image struct {
	Y, X int
	Pix  []uint16
}

func newImage(y, x int) Image {
	return Image{Y: y, X: x, Pix: make([]uint16, y*x)}
}

// At returns the pixel at (y, x).
func (im Image) At(y, x int) uint16 { return im.Pix[y*im.X+x] }

// Set writes the pixel at (y, x).
func (im Image) Set(y, x int, v uint16) { im.Pix[y*im.X+x] = v }
