/*Package optics holds the fixed optical configuration of the HT-SOLS
microscope and the geometry math used to legalize scan settings.

The user requests a voxel aspect ratio and a scan range; those requests are
advisory.  The scan step is snapped to an integer number of camera pixels so
that reconstruction is a pure integer shear, and the achieved aspect ratio and
range are re-derived from the snapped step.  Legalizing an achieved value a
second time is a fixed point.
*/
package optics

import "math"

// Optical configuration.  M1 is the primary objective magnification, Mscan the
// scan relay, M3 the tilted tertiary.  M2 depends on the remote-refocus zoom
// lens and is derived from the sample refractive index.
const (
	M1    = 200.0 / 5.0
	Mscan = 100.0 / 100.0
	M3    = 250.0 / 9.0

	// CameraPxUm is the physical pixel pitch of the sensor in microns.
	CameraPxUm = 6.5

	// Tilt is the angle of the tertiary objective relative to the
	// illumination axis, in radians.
	Tilt = 55.0 * math.Pi / 180.0

	// GalvoVoltsPerUm converts scan distance at the sample to scan galvo
	// voltage.  Calibrated using a laser spot.
	GalvoVoltsPerUm = 0.011395

	// ShearGalvoVoltsPerPx converts projection shear in camera pixels to
	// shear galvo voltage.  Calibrated using an AMS-AGY edge.
	ShearGalvoVoltsPerPx = 0.0021097

	// MaxScanRangeUm is the optical limit of the scan galvo.
	MaxScanRangeUm = 500.0

	// Sensor extents in pixels.
	SensorWidthPx  = 2060
	SensorHeightPx = 2048
)

// ZoomFocalLengthMM returns the zoom lens focal length for a sample
// refractive index, rounded to 0.1mm.  The lens tops out at 150mm, which
// legalizes ri=1.33 to exactly 4/3.
func ZoomFocalLengthMM(sampleRI float64) float64 {
	f := math.Round(2000.0/sampleRI) / 10.0
	if f > 150 {
		f = 150
	}
	return f
}

// TotalMagnification returns the system magnification for a sample refractive
// index.
func TotalMagnification(sampleRI float64) float64 {
	m2 := 5.0 / ZoomFocalLengthMM(sampleRI)
	return M1 * Mscan * m2 * M3
}

// SamplePxUm returns the size of one camera pixel at the sample, in microns.
func SamplePxUm(sampleRI float64) float64 {
	return CameraPxUm / TotalMagnification(sampleRI)
}

// ScanStepSizeUm converts an integer scan step in camera pixels to physical
// scan distance per slice.
func ScanStepSizeUm(samplePxUm float64, scanStepPx int) float64 {
	return float64(scanStepPx) * samplePxUm / math.Cos(Tilt)
}

// VoxelAspectRatio returns the achieved aspect ratio for an integer scan step.
func VoxelAspectRatio(scanStepPx int) float64 {
	return float64(scanStepPx) * math.Tan(Tilt)
}

// CuboidVoxelScan legalizes a requested voxel aspect ratio and scan range to
// an integer scan step in camera pixels and a slice count.  slices span
// slices-1 steps, watch out for the fencepost.
func CuboidVoxelScan(samplePxUm, voxelAspectRatio, scanRangeUm float64) (scanStepPx, slicesPerVolume int) {
	scanStepPx = int(math.Round(voxelAspectRatio / math.Tan(Tilt)))
	if scanStepPx < 1 {
		scanStepPx = 1
	}
	stepUm := ScanStepSizeUm(samplePxUm, scanStepPx)
	slicesPerVolume = 1 + int(math.Round(scanRangeUm/stepUm))
	if slicesPerVolume < 1 {
		slicesPerVolume = 1
	}
	return scanStepPx, slicesPerVolume
}

// ScanRangeUm re-derives the achieved scan range from a legalized step and
// slice count.
func ScanRangeUm(samplePxUm float64, scanStepPx, slicesPerVolume int) float64 {
	return ScanStepSizeUm(samplePxUm, scanStepPx) * float64(slicesPerVolume-1)
}

// GalvoShearPx returns the projection shear along the chip in camera pixels
// for a given scan range and projection angle, by the law of sines.
func GalvoShearPx(scanRangeUm, samplePxUm, projectionAngleDeg float64) int {
	totalScanPx := scanRangeUm / samplePxUm
	phi := projectionAngleDeg * math.Pi / 180.0
	gam := math.Pi - phi - Tilt
	return int(math.Round(totalScanPx * math.Sin(phi) / math.Sin(gam)))
}

// ROI is a centered region of interest on the sensor.  Indices are 1-based,
// inclusive on both ends.
type ROI struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// LegalizeImageSize snaps a requested image size to the sensor's addressing
// constraints (height a multiple of 8, width a multiple of 4, both centered)
// and returns the legal size with the matching ROI.
func LegalizeImageSize(heightPx, widthPx int) (int, int, ROI) {
	h := snap(heightPx, 8, 16, SensorHeightPx)
	w := snap(widthPx, 4, 64, SensorWidthPx)
	roi := ROI{
		Left:   (SensorWidthPx-w)/2 + 1,
		Top:    (SensorHeightPx-h)/2 + 1,
		Width:  w,
		Height: h,
	}
	return h, w, roi
}

// snap rounds v to the nearest multiple of m and clamps to [lo, hi].
// lo and hi must themselves be multiples of m.
func snap(v, m, lo, hi int) int {
	v = ((v + m/2) / m) * m
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return v
}
