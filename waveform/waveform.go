/*Package waveform synthesizes the per-sample voltage sequence played by the
analog output card during one acquisition buffer.

The matrix is built block by block: one block per exposed camera frame, each
lasting max(exposure, rolling) + jitter samples.  Leading preframe blocks pulse
only the camera trigger to flush sensor noise; the remaining blocks drive the
camera trigger, the illumination TTL and power lines, the scan galvo and the
light-sheet channels for every (volume, slice, channel) combination.

Synthesize is a pure function of its request.  A matrix is created fresh per
settings application, consumed once by the card, and never mutated afterwards.
*/
package waveform

import (
	"errors"
	"math"

	"github.com/lightsheet-lab/gosols/optics"
)

// NumChannels is the channel count of the output card.
const NumChannels = 21

// ChannelIndex maps voltage channel names to output card channels.
var ChannelIndex = map[string]int{
	"405_TTL":   0,
	"405_power": 1,
	"488_TTL":   4,
	"488_power": 5,
	"561_TTL":   6,
	"561_power": 7,
	"640_TTL":   8,
	"640_power": 9,
	"LED_power": 10,
	"camera":    11,
	"galvo":     12,
	"LSx_BFP":   16,
	"LSy_BFP":   17,
	"LSx_IMG":   18,
	"LSy_IMG":   19,
	"shear":     20,
}

// IlluminationSources is the fixed set of legal illumination channel names.
// 405_on_during_rolling is the 405 line with its trigger asserted before the
// rolling shutter completes; the membership check is exact and deliberately
// not generalized.
var IlluminationSources = []string{
	"LED", "405", "488", "561", "640", "405_on_during_rolling",
}

// IsIlluminationSource reports whether name is a legal illumination source.
func IsIlluminationSource(name string) bool {
	for _, s := range IlluminationSources {
		if s == name {
			return true
		}
	}
	return false
}

// baseSource strips the rolling-shutter exemption suffix to recover the
// physical source name.
func baseSource(name string) string {
	if name == "405_on_during_rolling" {
		return "405"
	}
	return name
}

// Output voltages.  The TTL lines run through a /4 buffer, so 10V commanded
// is 2.5V at the laser.
const (
	cameraTriggerVolts  = 5.0
	laserTTLVolts       = 10.0
	powerFullScaleVolts = 4.5

	// jitterSeconds is the fixed inter-sample margin appended to every
	// block; it is never less than one sample.
	jitterSeconds = 30e-6
)

// ErrTimingInfeasible is returned when the derived geometry leaves no room
// in the sample period for the illumination window.
var ErrTimingInfeasible = errors.New("waveform: illumination window shorter than the card can resolve")

// Timing carries the card and sensor timing constants synthesis depends on.
type Timing struct {
	// SampleRateHz is the output card's sample clock.
	SampleRateHz float64

	// ExposureUs is the programmed camera exposure time.
	ExposureUs float64

	// RollingUs is the sensor's rolling-shutter readout duration.
	RollingUs float64
}

// SecondsToSamples converts physical time to output card samples.
func (t Timing) SecondsToSamples(s float64) int {
	return int(math.Round(t.SampleRateHz * s))
}

// SamplesToSeconds converts output card samples to physical time.
func (t Timing) SamplesToSeconds(n int) float64 {
	return float64(n) / t.SampleRateHz
}

// Request describes one acquisition buffer's waveform.
type Request struct {
	Timing Timing

	// Channels are illumination source names, one frame per channel per
	// slice; Powers are the matching percentages in [0, 100].  Both are
	// validated by settings application before synthesis.
	Channels []string
	Powers   []float64

	ProjectionMode   bool
	VolumesPerBuffer int
	SlicesPerVolume  int
	CameraPreframes  int

	// ScanRangeUm is the legalized scan range; GalvoShearPx the projection
	// shear in camera pixels.
	ScanRangeUm  float64
	GalvoShearPx int

	// FocusAdjustV is held on the light-sheet focus channel for the whole
	// buffer.  AngularDitherV is ramped symmetrically about zero during
	// the illumination window outside projection mode.
	FocusAdjustV   float64
	AngularDitherV float64
}

// Matrix is a dense [sample][channel] voltage sequence.
type Matrix struct {
	data    []float64
	samples int
}

// Samples returns the number of sample ticks (rows).
func (m *Matrix) Samples() int { return m.samples }

// Channels returns the number of output channels (columns).
func (m *Matrix) Channels() int { return NumChannels }

// At returns the voltage at a sample tick and channel.
func (m *Matrix) At(sample, channel int) float64 {
	return m.data[sample*NumChannels+channel]
}

// Duration returns the wall time the matrix plays for.
func (m *Matrix) Duration(t Timing) float64 {
	return t.SamplesToSeconds(m.samples)
}

func (m *Matrix) set(sample, channel int, v float64) {
	m.data[sample*NumChannels+channel] = v
}

// fill sets channel to v on samples [from, to).
func (m *Matrix) fill(from, to, channel int, v float64) {
	for s := from; s < to; s++ {
		m.set(s, channel, v)
	}
}

// ramp writes a linear sweep from lo to hi, endpoints included, on samples
// [from, from+n).
func (m *Matrix) ramp(from, n, channel int, lo, hi float64) {
	if n == 1 {
		m.set(from, channel, lo)
		return
	}
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		m.set(from+i, channel, lo+float64(i)*step)
	}
}

// PeriodSamples returns the per-frame block length for a timing: the greater
// of exposure and rolling readout, plus the jitter margin.
func PeriodSamples(t Timing) int {
	exposure := t.SecondsToSamples(1e-6 * t.ExposureUs)
	rolling := t.SecondsToSamples(1e-6 * t.RollingUs)
	period := exposure
	if rolling > period {
		period = rolling
	}
	return period + jitterSamples(t)
}

func jitterSamples(t Timing) int {
	j := t.SecondsToSamples(jitterSeconds)
	if j < 1 {
		j = 1
	}
	return j
}

// Synthesize builds the voltage matrix for one acquisition buffer.  It
// returns ErrTimingInfeasible, before anything is written to the card, if the
// block leaves fewer than two samples of illumination window.
func Synthesize(req Request) (*Matrix, error) {
	t := req.Timing
	rolling := t.SecondsToSamples(1e-6 * t.RollingUs)
	jitter := jitterSamples(t)
	period := PeriodSamples(t)
	// the laser/dither ramps need at least two samples after readout
	if period-jitter-rolling < 2 {
		return nil, ErrTimingInfeasible
	}
	slices := req.SlicesPerVolume
	if req.ProjectionMode {
		slices = 1
	}
	frames := req.CameraPreframes +
		req.VolumesPerBuffer*slices*len(req.Channels)
	m := &Matrix{
		data:    make([]float64, frames*period*NumChannels),
		samples: frames * period,
	}

	scanVolts := optics.GalvoVoltsPerUm * req.ScanRangeUm
	shearVolts := optics.ShearGalvoVoltsPerPx * float64(req.GalvoShearPx)
	// per-slice galvo positions, evenly spaced across the legalized range
	galvoVolts := make([]float64, req.SlicesPerVolume)
	if req.SlicesPerVolume == 1 {
		galvoVolts[0] = -scanVolts / 2
	} else {
		step := scanVolts / float64(req.SlicesPerVolume-1)
		for i := range galvoVolts {
			galvoVolts[i] = -scanVolts/2 + float64(i)*step
		}
	}

	row := 0
	for p := 0; p < req.CameraPreframes; p++ {
		// discarded frames: camera trigger only
		m.fill(row, row+rolling, ChannelIndex["camera"], cameraTriggerVolts)
		row += period
	}
	for v := 0; v < req.VolumesPerBuffer; v++ {
		for sl := 0; sl < slices; sl++ {
			for ci, channel := range req.Channels {
				power := req.Powers[ci]
				m.fill(row, row+rolling, ChannelIndex["camera"], cameraTriggerVolts)
				lightOn := rolling
				if channel == "405_on_during_rolling" {
					// this source must emit before the rolling
					// shutter reaches the active region
					lightOn = 0
				}
				end := period - jitter
				if channel != "LED" {
					ttl := ChannelIndex[baseSource(channel)+"_TTL"]
					m.fill(row+lightOn, row+end, ttl, laserTTLVolts)
				}
				pw := ChannelIndex[baseSource(channel)+"_power"]
				m.fill(row+lightOn, row+end, pw, powerFullScaleVolts*power/100)
				m.fill(row, row+period, ChannelIndex["LSx_BFP"], req.FocusAdjustV)
				rampN := end - lightOn
				if req.ProjectionMode {
					m.ramp(row+lightOn, rampN, ChannelIndex["galvo"],
						-scanVolts/2, scanVolts/2)
					m.ramp(row+lightOn, rampN, ChannelIndex["shear"],
						-shearVolts/2, shearVolts/2)
				} else {
					m.fill(row, row+period, ChannelIndex["galvo"], galvoVolts[sl])
					m.ramp(row+lightOn, rampN, ChannelIndex["LSx_IMG"],
						-req.AngularDitherV, req.AngularDitherV)
				}
				row += period
			}
		}
	}
	return m, nil
}

// VolumesPerSecond returns the volumetric rate achieved by a matrix.
func VolumesPerSecond(m *Matrix, t Timing, volumesPerBuffer int) float64 {
	return float64(volumesPerBuffer) / m.Duration(t)
}
