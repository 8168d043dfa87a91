package recon

import (
	"math"

	"github.com/lightsheet-lab/gosols/optics"
)

// Traditional rotates a native (shear-corrected) volume into the
// conventional coverslip-aligned orientation.  The slice axis is first
// rescaled by the voxel aspect ratio so voxels are cubic, then the volume is
// rotated by the detection tilt in the (slice, propagation) plane with the
// output sized to the rotated bounding box.  Slow but pleasing.
func Traditional(native *Stack, scanStepPx int) *Stack {
	aspect := optics.VoxelAspectRatio(scanStepPx)
	cubic := zoomSlices(native, aspect)
	return rotateZY(cubic, optics.Tilt)
}

// zoomSlices rescales the slice axis by the given factor using
// nearest-neighbor sampling.
func zoomSlices(s *Stack, scale float64) *Stack {
	outZ := int(math.Round(float64(s.Z) * scale))
	if outZ < 1 {
		outZ = 1
	}
	out := NewStack(s.T, outZ, s.C, s.Y, s.X)
	for t := 0; t < s.T; t++ {
		for z := 0; z < outZ; z++ {
			sz := int((float64(z) + 0.5) * float64(s.Z) / float64(outZ))
			if sz >= s.Z {
				sz = s.Z - 1
			}
			for c := 0; c < s.C; c++ {
				for y := 0; y < s.Y; y++ {
					copy(out.Row(t, z, c, y), s.Row(t, sz, c, y))
				}
			}
		}
	}
	return out
}

// rotateZY rotates the volume by theta radians in the (slice, propagation)
// plane.  The output covers the rotated bounding box; pixels that map
// outside the source stay zero.
func rotateZY(s *Stack, theta float64) *Stack {
	sin, cos := math.Sin(theta), math.Cos(theta)
	outZ := int(math.Round(math.Abs(float64(s.Z)*cos) + math.Abs(float64(s.Y)*sin)))
	outY := int(math.Round(math.Abs(float64(s.Z)*sin) + math.Abs(float64(s.Y)*cos)))
	out := NewStack(s.T, outZ, s.C, outY, s.X)
	zc0 := (float64(outZ) - 1) / 2
	yc0 := (float64(outY) - 1) / 2
	szMid := (float64(s.Z) - 1) / 2
	syMid := (float64(s.Y) - 1) / 2
	for t := 0; t < s.T; t++ {
		for z := 0; z < outZ; z++ {
			zc := float64(z) - zc0
			for c := 0; c < s.C; c++ {
				for y := 0; y < outY; y++ {
					yc := float64(y) - yc0
					sz := int(math.Round(cos*zc - sin*yc + szMid))
					sy := int(math.Round(sin*zc + cos*yc + syMid))
					if sz < 0 || sz >= s.Z || sy < 0 || sy >= s.Y {
						continue
					}
					copy(out.Row(t, z, c, y), s.Row(t, sz, c, sy))
				}
			}
		}
	}
	return out
}
