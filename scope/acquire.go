package scope

import (
	"github.com/lightsheet-lab/gosols/bufpool"
	"github.com/lightsheet-lab/gosols/recon"
	"github.com/lightsheet-lab/gosols/sched"
)

// AcquireOptions controls one acquisition.  The zero value acquires one
// buffer without display or saving.
type AcquireOptions struct {
	// Filename enables saving; empty means discard after preview.
	// Folder reuses an existing acquisition folder, empty makes a new
	// dated one.
	Filename string `json:"filename"`
	Folder   string `json:"folder"`

	// Description is free-form text recorded in the file metadata.
	Description string `json:"description"`

	Display bool `json:"display"`

	// PreviewOnly discards the raw data and saves only the preview.
	PreviewOnly bool `json:"preview_only"`
}

// Acquire runs one pipelined acquisition: expose under camera custody, hand
// off to the preview engine, then to the display, then save.  The returned
// task completes when the buffer has cleared the whole pipeline.  Back
// pressure comes from the buffer pools: when every data buffer is in flight
// the next acquisition blocks inside its task until one is released.
func (m *Microscope) Acquire(opts AcquireOptions) *sched.Task {
	return m.launch(func(c *sched.Custody) error {
		m.mu.Lock()
		applied, s, d := m.applied, m.settings, m.derived
		m.mu.Unlock()
		if !applied {
			return ConfigurationError{"settings", "no legal settings applied"}
		}
		slices, heightPx := frameGeometry(s, d)
		frames := d.ImagesPerBuffer + s.CameraPreframes

		dataBuf := m.dataPool.Acquire(bufpool.Shape{
			T: frames, Z: 1, C: 1, Y: heightPx, X: s.WidthPx})
		defer m.dataPool.Release(dataBuf)
		var previewBuf *bufpool.Buffer
		defer func() { m.previewPool.Release(previewBuf) }()

		// The camera empties its internal frame buffers into dataBuf
		// while the output card clocks out triggers.
		camErr := make(chan error, 1)
		go func() {
			camErr <- m.dev.Camera.RecordToMemory(dataBuf, false)
		}()
		if err := m.dev.AO.Play(false); err != nil {
			<-camErr
			return faultf("analog output", err)
		}
		if err := <-camErr; err != nil {
			return faultf("camera", err)
		}

		if err := c.Switch(m.camera, m.preview); err != nil {
			return err
		}
		offset := s.CameraPreframes * heightPx * s.WidthPx
		stack, err := recon.WrapStack(dataBuf.Data[offset:],
			s.VolumesPerBuffer, slices, len(s.Channels), heightPx, s.WidthPx)
		if err != nil {
			return err
		}
		previewBuf = m.previewPool.Acquire(bufpool.Shape{
			T: d.PreviewShape[0], Z: 1, C: d.PreviewShape[1],
			Y: d.PreviewShape[2], X: d.PreviewShape[3]})
		canvas, err := recon.WrapCanvas(previewBuf.Data,
			d.PreviewShape[0], d.PreviewShape[1], d.PreviewShape[2], d.PreviewShape[3])
		if err != nil {
			return err
		}
		if err := recon.PreviewInto(stack, previewGeometry(s, d), canvas); err != nil {
			return err
		}

		if opts.Display && m.dev.Display != nil {
			if err := c.Switch(m.preview, m.display); err != nil {
				return err
			}
			if err := m.dev.Display.Show(previewBuf); err != nil {
				return faultf("display", err)
			}
			if err := c.Switch(m.display, nil); err != nil {
				return err
			}
		} else if err := c.Switch(m.preview, nil); err != nil {
			return err
		}

		if opts.Filename != "" && m.dev.Recorder != nil {
			paths, err := m.dev.Recorder.Prepare(opts.Folder, opts.Filename)
			if err != nil {
				return err
			}
			cards := metadataCards(s, d, opts.Description)
			if !opts.PreviewOnly {
				if err := m.dev.Recorder.SaveStack(paths.Data, stack, cards); err != nil {
					return err
				}
			}
			if err := m.dev.Recorder.SaveCanvas(paths.Preview, canvas, cards); err != nil {
				return err
			}
			m.log.Info().Str("file", paths.Data).Msg("acquisition saved")
		}
		return nil
	})
}
