package scope

import (
	"time"

	"github.com/cenkalti/backoff"

	"github.com/lightsheet-lab/gosols/sched"
	"github.com/lightsheet-lab/gosols/waveform"
)

// sampleFlagTries is how many times the autofocus unit is polled for a
// sample before giving up on enabling the servo.
const sampleFlagTries = 3

// armRetries covers the camera's occasional refusal to re-arm right after a
// ROI change.
const armRetries = 3

// ApplySettings merges the update onto the current settings, legalizes the
// result, and reprograms the hardware under camera custody.  The task's
// result is the first error encountered; on error the previously applied
// settings remain in force and nothing is half-committed.
//
// Requested geometry is advisory: the committed settings carry the achieved
// image size, voxel aspect ratio and scan range (read them back with
// Settings and Derived once the task completes).
func (m *Microscope) ApplySettings(u Update) *sched.Task {
	return m.launch(func(c *sched.Custody) error {
		defer c.Switch(c.Current(), nil)

		m.mu.Lock()
		requested := u.merge(m.settings)
		m.mu.Unlock()

		s, d, err := legalize(requested, m.maxAllocatedBytes)
		if err != nil {
			m.log.Warn().Err(err).Msg("settings rejected")
			return err
		}

		// Past this point the hardware diverges from the committed
		// settings until the final commit, so acquisition is blocked
		// if anything faults partway.
		m.mu.Lock()
		m.applied = false
		m.mu.Unlock()

		// Hardware, slowest first.
		if u.XYStageMm != nil {
			mv := *u.XYStageMm
			if err := m.dev.XYStage.MoveXY(mv.X, mv.Y, mv.Relative); err != nil {
				return faultf("xy stage", err)
			}
		}
		if err := m.dev.ZoomLens.SetFocalLength(d.ZoomFocalLengthMM); err != nil {
			return faultf("zoom lens", err)
		}
		if err := m.dev.FilterWheel.Move(EmissionFilters[s.EmissionFilter]); err != nil {
			return faultf("filter wheel", err)
		}
		if err := m.applyAutofocus(&s, u); err != nil {
			return err
		}
		if u.FocusPiezoZUm != nil {
			if s.AutofocusEnabled && (u.FocusPiezoZUm.Target != 0 || !u.FocusPiezoZUm.Relative) {
				return ConfigurationError{"focus_piezo_z_um",
					"cannot move the focus piezo while autofocus is enabled"}
			}
			if !s.AutofocusEnabled {
				if err := m.dev.FocusPiezo.Move(u.FocusPiezoZUm.Target, u.FocusPiezoZUm.Relative); err != nil {
					return faultf("focus piezo", err)
				}
			}
		}

		// Camera: the ROI sets the rolling time, the rolling time sets
		// the exposure, the exposure sets the waveform period.
		slices, heightPx := frameGeometry(s, d)
		frames := d.ImagesPerBuffer + s.CameraPreframes
		if err := m.dev.Camera.Disarm(); err != nil {
			return faultf("camera", err)
		}
		if err := m.dev.Camera.SetROI(d.ROI); err != nil {
			return faultf("camera", err)
		}
		if err := m.dev.Camera.SetTimestampMode(s.TimestampMode); err != nil {
			return faultf("camera", err)
		}
		rollingUs := m.dev.Camera.RollingTimeUs()
		exposureUs := s.IlluminationTimeUs + rollingUs
		if err := m.dev.Camera.SetExposure(time.Duration(exposureUs) * time.Microsecond); err != nil {
			return faultf("camera", err)
		}
		arm := func() error { return m.dev.Camera.Arm(frames) }
		if err := backoff.Retry(arm, backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(), armRetries)); err != nil {
			return faultf("camera", err)
		}

		timing := waveform.Timing{
			SampleRateHz: m.dev.AO.SampleRateHz(),
			ExposureUs:   exposureUs,
			RollingUs:    rollingUs,
		}
		req := waveform.Request{
			Timing:           timing,
			ProjectionMode:   s.ProjectionMode,
			VolumesPerBuffer: s.VolumesPerBuffer,
			SlicesPerVolume:  slices,
			CameraPreframes:  s.CameraPreframes,
			ScanRangeUm:      s.ScanRangeUm,
			GalvoShearPx:     d.GalvoShearPx,
			FocusAdjustV:     s.LSFocusAdjustV,
			AngularDitherV:   s.LSAngularDitherV,
		}
		for _, ch := range s.Channels {
			req.Channels = append(req.Channels, ch.Source)
			req.Powers = append(req.Powers, ch.Power)
		}
		matrix, err := waveform.Synthesize(req)
		if err != nil {
			return err
		}
		if err := m.dev.AO.WriteVoltages(matrix); err != nil {
			return faultf("analog output", err)
		}
		d.BufferSeconds = matrix.Duration(timing)
		d.VolumesPerSecond = waveform.VolumesPerSecond(matrix, timing, s.VolumesPerBuffer)

		// Settle everything before committing.
		if err := m.dev.FilterWheel.FinishMoving(); err != nil {
			return faultf("filter wheel", err)
		}
		if err := m.dev.FocusPiezo.FinishMoving(); err != nil {
			return faultf("focus piezo", err)
		}
		if err := m.dev.XYStage.FinishMoving(); err != nil {
			return faultf("xy stage", err)
		}

		m.mu.Lock()
		m.settings = s
		m.derived = d
		m.matrix = matrix
		m.applied = true
		m.mu.Unlock()
		m.dataPool.SetMax(s.MaxDataBuffers)
		m.previewPool.SetMax(s.MaxPreviewBuffers)

		m.log.Info().
			Int("slices", slices).
			Int("height_px", heightPx).
			Int("width_px", s.WidthPx).
			Float64("scan_range_um", s.ScanRangeUm).
			Float64("volumes_per_s", d.VolumesPerSecond).
			Msg("settings applied")
		return nil
	})
}

// applyAutofocus services an autofocus enable or disable request.  Enabling
// only sticks when the unit sees a sample; otherwise the committed settings
// record autofocus as off.
func (m *Microscope) applyAutofocus(s *Settings, u Update) error {
	if u.AutofocusEnabled == nil {
		return nil
	}
	if !*u.AutofocusEnabled {
		if err := m.dev.Autofocus.SetServoEnabled(false); err != nil {
			return faultf("autofocus", err)
		}
		return nil
	}
	seen := false
	for i := 0; i < sampleFlagTries; i++ {
		flag, err := m.dev.Autofocus.SampleFlag()
		if err != nil {
			return faultf("autofocus", err)
		}
		if flag {
			seen = true
			break
		}
	}
	if !seen {
		m.log.Warn().Msg("autofocus found no sample, servo left off")
		s.AutofocusEnabled = false
		return nil
	}
	if err := m.dev.Autofocus.SetServoEnabled(true); err != nil {
		return faultf("autofocus", err)
	}
	return nil
}
