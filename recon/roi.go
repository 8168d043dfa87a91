package recon

// RoiParams tunes the automatic region-of-interest estimate.
type RoiParams struct {
	CropPx        int
	TimestampMode string

	// SignalToBgRatio is the threshold multiplier applied to the smoothed
	// background floor; GaussianStd the profile smoothing used to reject
	// hot pixels.  Zero values take the defaults (1.2 and 3).
	SignalToBgRatio float64
	GaussianStd     float64
}

func (p RoiParams) ratio() float64 {
	if p.SignalToBgRatio == 0 {
		return 1.2
	}
	return p.SignalToBgRatio
}

func (p RoiParams) std() float64 {
	if p.GaussianStd == 0 {
		return 3
	}
	return p.GaussianStd
}

// Box is an inclusive axis-aligned region inside a stack: slices
// [ZMin, ZMax], rows [YMin, YMax], columns [XMin, XMax].
type Box struct {
	ZMin, ZMax int
	YMin, YMax int
	XMin, XMax int
}

// RoiBox estimates the smallest box that still contains all signal above the
// background floor.  Each volume and channel votes with its own box and the
// result is the union, so no channel's signal is ever cropped away.  When an
// axis never rises above threshold the full axis is kept.
func RoiBox(s *Stack, p RoiParams) Box {
	top, bottom := Geometry{CropPx: p.CropPx, TimestampMode: p.TimestampMode}.cropRows()
	prop := s.Y - top - bottom

	box := Box{ZMax: -1, YMax: -1, XMax: -1}
	for v := 0; v < s.T; v++ {
		for c := 0; c < s.C; c++ {
			scanLine := make([]float64, s.Z)  // max per slice
			propLine := make([]float64, prop) // max per row
			widthLine := make([]float64, s.X) // max per column
			for z := 0; z < s.Z; z++ {
				for y := 0; y < prop; y++ {
					row := s.Row(v, z, c, y+top)
					for x := 0; x < s.X; x++ {
						px := float64(row[x])
						if px > scanLine[z] {
							scanLine[z] = px
						}
						if px > propLine[y] {
							propLine[y] = px
						}
						if px > widthLine[x] {
							widthLine[x] = px
						}
					}
				}
			}
			scanLine = gaussianFilter1D(scanLine, p.std())
			propLine = gaussianFilter1D(propLine, p.std())
			widthLine = gaussianFilter1D(widthLine, p.std())

			zMin, zMax := aboveThreshold(scanLine, p.ratio())
			yMin, yMax := aboveThreshold(propLine, p.ratio())
			xMin, xMax := aboveThreshold(widthLine, p.ratio())
			if zMax < 0 {
				zMin, zMax = 0, s.Z-1
			}
			if yMax < 0 {
				yMin, yMax = 0, s.Y-1
			} else {
				yMin, yMax = yMin+top, yMax+top
			}
			if xMax < 0 {
				xMin, xMax = 0, s.X-1
			}

			if box.ZMax < 0 {
				box = Box{zMin, zMax, yMin, yMax, xMin, xMax}
				continue
			}
			box.ZMin = min(box.ZMin, zMin)
			box.ZMax = max(box.ZMax, zMax)
			box.YMin = min(box.YMin, yMin)
			box.YMax = max(box.YMax, yMax)
			box.XMin = min(box.XMin, xMin)
			box.XMax = max(box.XMax, xMax)
		}
	}
	return box
}

// Roi crops the stack to the estimated region of interest.  The crop matches
// RoiBox exactly and keeps every volume and channel.
func Roi(s *Stack, p RoiParams) *Stack {
	return Crop(s, RoiBox(s, p))
}

// Crop copies the inclusive box out of the stack.
func Crop(s *Stack, b Box) *Stack {
	out := NewStack(s.T, b.ZMax-b.ZMin+1, s.C, b.YMax-b.YMin+1, b.XMax-b.XMin+1)
	for t := 0; t < out.T; t++ {
		for z := 0; z < out.Z; z++ {
			for c := 0; c < out.C; c++ {
				for y := 0; y < out.Y; y++ {
					src := s.Row(t, z+b.ZMin, c, y+b.YMin)
					copy(out.Row(t, z, c, y), src[b.XMin:b.XMax+1])
				}
			}
		}
	}
	return out
}

// aboveThreshold returns the first and last index of line strictly above
// min(line) * ratio, or (0, -1) when nothing clears the threshold.
func aboveThreshold(line []float64, ratio float64) (int, int) {
	if len(line) == 0 {
		return 0, -1
	}
	floor := line[0]
	for _, v := range line {
		if v < floor {
			floor = v
		}
	}
	threshold := float64(int(floor * ratio))
	lo, hi := 0, -1
	for i, v := range line {
		if v > threshold {
			if hi < 0 {
				lo = i
			}
			hi = i
		}
	}
	return lo, hi
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
