package waveform_test

import (
	"errors"
	"testing"

	"github.com/lightsheet-lab/gosols/waveform"
)

// timing with exposure dominating readout: 100 samples exposure, 40 rolling,
// 3 samples of jitter (30us at 100kHz)
var testTiming = waveform.Timing{
	SampleRateHz: 1e5,
	ExposureUs:   1000,
	RollingUs:    400,
}

func testRequest() waveform.Request {
	return waveform.Request{
		Timing:           testTiming,
		Channels:         []string{"LED", "488"},
		Powers:           []float64{50, 10},
		VolumesPerBuffer: 2,
		SlicesPerVolume:  5,
		CameraPreframes:  1,
		ScanRangeUm:      50,
	}
}

func TestTotalSampleCount(t *testing.T) {
	req := testRequest()
	m, err := waveform.Synthesize(req)
	if err != nil {
		t.Fatal(err)
	}
	period := waveform.PeriodSamples(testTiming)
	want := period * (req.CameraPreframes +
		req.VolumesPerBuffer*req.SlicesPerVolume*len(req.Channels))
	if m.Samples() != want {
		t.Errorf("expected %d samples, got %d", want, m.Samples())
	}
	if m.Channels() != waveform.NumChannels {
		t.Errorf("expected %d channels, got %d", waveform.NumChannels, m.Channels())
	}
}

func TestCameraTriggerWindow(t *testing.T) {
	req := testRequest()
	m, err := waveform.Synthesize(req)
	if err != nil {
		t.Fatal(err)
	}
	period := waveform.PeriodSamples(testTiming)
	rolling := testTiming.SecondsToSamples(1e-6 * testTiming.RollingUs)
	cam := waveform.ChannelIndex["camera"]
	blocks := m.Samples() / period
	for b := 0; b < blocks; b++ {
		for s := 0; s < period; s++ {
			v := m.At(b*period+s, cam)
			if s < rolling && v == 0 {
				t.Fatalf("block %d: camera trigger low at sample %d inside the rolling window", b, s)
			}
			if s >= rolling && v != 0 {
				t.Fatalf("block %d: camera trigger high at sample %d outside the rolling window", b, s)
			}
		}
	}
}

func TestPreframesPulseOnlyCamera(t *testing.T) {
	req := testRequest()
	m, err := waveform.Synthesize(req)
	if err != nil {
		t.Fatal(err)
	}
	period := waveform.PeriodSamples(testTiming)
	cam := waveform.ChannelIndex["camera"]
	for s := 0; s < period; s++ {
		for c := 0; c < m.Channels(); c++ {
			if c == cam {
				continue
			}
			if m.At(s, c) != 0 {
				t.Fatalf("preframe drives channel %d at sample %d", c, s)
			}
		}
	}
}

func TestLaserWaitsForRollingShutter(t *testing.T) {
	req := testRequest()
	req.Channels = []string{"488"}
	req.Powers = []float64{100}
	req.CameraPreframes = 0
	m, err := waveform.Synthesize(req)
	if err != nil {
		t.Fatal(err)
	}
	rolling := testTiming.SecondsToSamples(1e-6 * testTiming.RollingUs)
	ttl := waveform.ChannelIndex["488_TTL"]
	if m.At(rolling-1, ttl) != 0 {
		t.Error("488 TTL asserted before rolling shutter completion")
	}
	if m.At(rolling, ttl) == 0 {
		t.Error("488 TTL not asserted after rolling shutter completion")
	}
}

func TestRollingExemptSourceAssertsImmediately(t *testing.T) {
	req := testRequest()
	req.Channels = []string{"405_on_during_rolling"}
	req.Powers = []float64{100}
	req.CameraPreframes = 0
	m, err := waveform.Synthesize(req)
	if err != nil {
		t.Fatal(err)
	}
	ttl := waveform.ChannelIndex["405_TTL"]
	if m.At(0, ttl) == 0 {
		t.Error("405_on_during_rolling must assert its trigger from sample zero")
	}
}

func TestPowerScaling(t *testing.T) {
	req := testRequest()
	req.Channels = []string{"LED"}
	req.Powers = []float64{50}
	req.CameraPreframes = 0
	m, err := waveform.Synthesize(req)
	if err != nil {
		t.Fatal(err)
	}
	rolling := testTiming.SecondsToSamples(1e-6 * testTiming.RollingUs)
	pw := waveform.ChannelIndex["LED_power"]
	if got := m.At(rolling, pw); got != 4.5*50/100 {
		t.Errorf("expected 2.25V on LED_power at half power, got %f", got)
	}
}

func TestJitterAtLeastOneSample(t *testing.T) {
	// at 1kHz the 30us jitter is far below one sample
	slow := waveform.Timing{SampleRateHz: 1e3, ExposureUs: 10000, RollingUs: 1000}
	exposure := slow.SecondsToSamples(1e-6 * slow.ExposureUs)
	if waveform.PeriodSamples(slow) != exposure+1 {
		t.Errorf("expected period %d, got %d", exposure+1, waveform.PeriodSamples(slow))
	}
}

func TestInfeasibleTimingRejected(t *testing.T) {
	// readout dominates and leaves no illumination window
	bad := waveform.Timing{SampleRateHz: 1e4, ExposureUs: 100, RollingUs: 100}
	req := testRequest()
	req.Timing = bad
	_, err := waveform.Synthesize(req)
	if !errors.Is(err, waveform.ErrTimingInfeasible) {
		t.Errorf("expected ErrTimingInfeasible, got %v", err)
	}
}

func TestIsIlluminationSource(t *testing.T) {
	for _, name := range []string{"LED", "405", "488", "561", "640", "405_on_during_rolling"} {
		if !waveform.IsIlluminationSource(name) {
			t.Errorf("%s should be a legal source", name)
		}
	}
	for _, name := range []string{"445", "laser", ""} {
		if waveform.IsIlluminationSource(name) {
			t.Errorf("%s should not be a legal source", name)
		}
	}
}
