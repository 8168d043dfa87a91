package recon

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/lightsheet-lab/gosols/optics"
)

// ZMethod selects how the axial sample position is estimated from a preview.
type ZMethod string

const (
	// ZMaxIntensity tracks the brightest axial pixel.
	ZMaxIntensity ZMethod = "max_intensity"
	// ZMaxGradient tracks the steepest axial intensity rise, a proxy for
	// the coverslip boundary.
	ZMaxGradient ZMethod = "max_gradient"
)

// ZParams locates the axial sub-image inside a composited preview.
// HeightPx and WidthPx are the raw frame extents the preview was built from.
type ZParams struct {
	HeightPx, WidthPx int
	SamplePxUm        float64
	LinePx, CropPx    int
	TimestampMode     string

	Method      ZMethod
	GaussianStd float64
}

// EstimateZ returns the sample's axial position in microns above the lowest
// preview pixel, for one volume/channel preview plane.  Useful as a software
// autofocus signal.
func EstimateZ(img Image, p ZParams) (float64, error) {
	if p.Method != ZMaxIntensity && p.Method != ZMaxGradient {
		return 0, fmt.Errorf("recon: unknown z estimate method %q", p.Method)
	}
	std := p.GaussianStd
	if std == 0 {
		std = 3
	}
	top, bottom := Geometry{CropPx: p.CropPx, TimestampMode: p.TimestampMode}.cropRows()
	h := p.HeightPx - top - bottom
	zPx := int(math.Round(float64(h) * math.Sin(optics.Tilt)))
	if zPx > img.Y {
		zPx = img.Y
	}
	x0, x1 := p.LinePx, p.WidthPx
	if x1 > img.X {
		x1 = img.X
	}
	if zPx < 1 || x1 <= x0 {
		return 0, fmt.Errorf("recon: preview %dx%d too small for z estimate", img.Y, img.X)
	}

	// mean intensity per axial row, reordered detection-objective first
	line := make([]float64, zPx)
	row := make([]float64, x1-x0)
	for y := 0; y < zPx; y++ {
		for x := x0; x < x1; x++ {
			row[x-x0] = float64(img.At(y, x))
		}
		line[zPx-1-y] = stat.Mean(row, nil)
	}
	line = gaussianFilter1D(line, std)

	if p.Method == ZMaxIntensity {
		return float64(floats.MaxIdx(line)) * p.SamplePxUm, nil
	}
	grad := make([]float64, len(line)-1)
	for i := range grad {
		grad[i] = line[i+1] - line[i]
	}
	return float64(floats.MaxIdx(grad)) * p.SamplePxUm, nil
}
