package recon

import "math"

// gaussianFilter1D smooths a profile with a normalized Gaussian kernel of the
// given standard deviation, truncated at four sigma, with reflected
// boundaries.  Used to reject hot and dead pixels before thresholding.
func gaussianFilter1D(profile []float64, sigma float64) []float64 {
	if sigma <= 0 || len(profile) == 0 {
		out := make([]float64, len(profile))
		copy(out, profile)
		return out
	}
	radius := int(4*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	n := len(profile)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var acc float64
		for k := -radius; k <= radius; k++ {
			acc += kernel[k+radius] * profile[reflect(i+k, n)]
		}
		out[i] = acc
	}
	return out
}

// reflect maps an out-of-range index back into [0, n) by mirroring at the
// edges.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}
