package recon

// Native converts a raw skewed stack into the native (shear-corrected)
// volume.  Each slice image is copied whole to a vertical offset of
// slice * scanStepPx and the non-overlapping pixels stay zero; no
// interpolation happens, so the operation is deterministic and idempotent
// over identical inputs.
//
// The output height is input height + (slices-1)*scanStepPx.
func Native(s *Stack, scanStepPx int) *Stack {
	shearMax := (s.Z - 1) * scanStepPx
	out := NewStack(s.T, s.Z, s.C, s.Y+shearMax, s.X)
	for t := 0; t < s.T; t++ {
		for z := 0; z < s.Z; z++ {
			offset := z * scanStepPx
			for c := 0; c < s.C; c++ {
				for y := 0; y < s.Y; y++ {
					copy(out.Row(t, z, c, y+offset), s.Row(t, z, c, y))
				}
			}
		}
	}
	return out
}
