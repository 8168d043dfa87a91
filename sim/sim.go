/*Package sim provides simulated hardware implementing the scope device
interfaces, for development and testing without an instrument attached.

The simulated camera synthesizes frames with a gradient background and a
bright blob so reconstruction has structure to find; the simulated output
card paces waveform playback at its nominal sample clock so acquisition
timing is realistic (and can be made instant for tests).
*/
package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lightsheet-lab/gosols/bufpool"
	"github.com/lightsheet-lab/gosols/optics"
	"github.com/lightsheet-lab/gosols/waveform"
)

// lineTimeUs is the simulated sensor's per-row read time.
const lineTimeUs = 5.0

// ErrNotArmed is returned when a recording is requested before arming.
var ErrNotArmed = errors.New("sim: camera not armed")

// Camera is a simulated rolling-shutter camera.
type Camera struct {
	sync.Mutex
	armed     bool
	frames    int
	roi       optics.ROI
	exposure  time.Duration
	timestamp string
	recorded  int
}

// NewCamera returns a simulated camera with a full sensor ROI.
func NewCamera() *Camera {
	return &Camera{roi: optics.ROI{
		Left: 1, Top: 1,
		Width: optics.SensorWidthPx, Height: optics.SensorHeightPx}}
}

func (c *Camera) Arm(n int) error {
	c.Lock()
	defer c.Unlock()
	c.armed = true
	c.frames = n
	return nil
}

func (c *Camera) Disarm() error {
	c.Lock()
	defer c.Unlock()
	c.armed = false
	return nil
}

func (c *Camera) SetROI(r optics.ROI) error {
	c.Lock()
	defer c.Unlock()
	c.roi = r
	return nil
}

func (c *Camera) SetExposure(d time.Duration) error {
	c.Lock()
	defer c.Unlock()
	c.exposure = d
	return nil
}

func (c *Camera) SetTimestampMode(mode string) error {
	c.Lock()
	defer c.Unlock()
	c.timestamp = mode
	return nil
}

// RollingTimeUs scales with the ROI height like a real rolling shutter.
func (c *Camera) RollingTimeUs() float64 {
	c.Lock()
	defer c.Unlock()
	return lineTimeUs * float64(c.roi.Height)
}

// Recorded reports how many frames have been delivered since construction.
func (c *Camera) Recorded() int {
	c.Lock()
	defer c.Unlock()
	return c.recorded
}

// RecordToMemory fills buf with synthetic frames: a shallow gradient
// background plus a Gaussian blob that drifts frame to frame.
func (c *Camera) RecordToMemory(buf *bufpool.Buffer, softwareTrigger bool) error {
	c.Lock()
	if !c.armed {
		c.Unlock()
		return ErrNotArmed
	}
	frames := c.frames
	c.Unlock()

	h, w := buf.Shape.Y, buf.Shape.X
	if n := buf.Shape.T * buf.Shape.Z * buf.Shape.C; n < frames {
		frames = n
	}
	for f := 0; f < frames; f++ {
		cy := float64(h)/2 + 8*math.Sin(float64(f)/3)
		cx := float64(w)/2 + 8*math.Cos(float64(f)/3)
		base := f * h * w
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				v := 100.0 + 0.05*float64(y)
				dy, dx := float64(y)-cy, float64(x)-cx
				v += 3000 * math.Exp(-(dy*dy+dx*dx)/(2*25*25))
				buf.Data[base+y*w+x] = uint16(v)
			}
		}
	}
	c.Lock()
	c.recorded += frames
	c.Unlock()
	return nil
}

func (c *Camera) Close() error { return nil }

// OutputCard is a simulated analog-output card.  Play paces itself at the
// sample clock with a rate limiter unless Instant is set.
type OutputCard struct {
	sync.Mutex
	rateHz  float64
	matrix  *waveform.Matrix
	plays   int
	Instant bool
}

// NewOutputCard returns a card clocked at rateHz samples per second.
func NewOutputCard(rateHz float64) *OutputCard {
	return &OutputCard{rateHz: rateHz}
}

func (o *OutputCard) WriteVoltages(m *waveform.Matrix) error {
	o.Lock()
	defer o.Unlock()
	o.matrix = m
	return nil
}

// Loaded returns the last written waveform.
func (o *OutputCard) Loaded() *waveform.Matrix {
	o.Lock()
	defer o.Unlock()
	return o.matrix
}

// Plays reports how many times a waveform has been played.
func (o *OutputCard) Plays() int {
	o.Lock()
	defer o.Unlock()
	return o.plays
}

func (o *OutputCard) Play(block bool) error {
	o.Lock()
	m := o.matrix
	instant := o.Instant
	o.Unlock()
	if m == nil {
		return errors.New("sim: no waveform loaded")
	}
	o.Lock()
	o.plays++
	o.Unlock()
	if instant {
		return nil
	}
	run := func() {
		lim := rate.NewLimiter(rate.Limit(o.rateHz), 4096)
		ctx := context.Background()
		for left := m.Samples(); left > 0; left -= 4096 {
			n := left
			if n > 4096 {
				n = 4096
			}
			lim.WaitN(ctx, n)
		}
	}
	if block {
		run()
	} else {
		go run()
	}
	return nil
}

func (o *OutputCard) SampleRateHz() float64 { return o.rateHz }

func (o *OutputCard) Close() error { return nil }

// Mover is a simulated single-axis positioner.
type Mover struct {
	sync.Mutex
	pos float64
}

func NewMover() *Mover { return &Mover{} }

func (m *Mover) Move(target float64, relative bool) error {
	m.Lock()
	defer m.Unlock()
	if relative {
		m.pos += target
	} else {
		m.pos = target
	}
	return nil
}

func (m *Mover) FinishMoving() error { return nil }

func (m *Mover) GetPosition() (float64, error) {
	m.Lock()
	defer m.Unlock()
	return m.pos, nil
}

func (m *Mover) Close() error { return nil }

// XYStage is a simulated sample stage.
type XYStage struct {
	sync.Mutex
	x, y float64
}

func NewXYStage() *XYStage { return &XYStage{} }

func (s *XYStage) MoveXY(x, y float64, relative bool) error {
	s.Lock()
	defer s.Unlock()
	if relative {
		s.x += x
		s.y += y
	} else {
		s.x, s.y = x, y
	}
	return nil
}

func (s *XYStage) FinishMoving() error { return nil }

func (s *XYStage) GetPositionXY() (float64, float64, error) {
	s.Lock()
	defer s.Unlock()
	return s.x, s.y, nil
}

func (s *XYStage) Close() error { return nil }

// FilterWheel is a simulated emission filter wheel.
type FilterWheel struct {
	sync.Mutex
	slot int
}

func NewFilterWheel() *FilterWheel { return &FilterWheel{} }

func (f *FilterWheel) Move(slot int) error {
	f.Lock()
	defer f.Unlock()
	f.slot = slot
	return nil
}

func (f *FilterWheel) FinishMoving() error { return nil }

func (f *FilterWheel) GetPosition() (int, error) {
	f.Lock()
	defer f.Unlock()
	return f.slot, nil
}

func (f *FilterWheel) Close() error { return nil }

// ZoomLens is a simulated remote-refocus zoom lens.
type ZoomLens struct {
	sync.Mutex
	fmm float64
}

func NewZoomLens() *ZoomLens { return &ZoomLens{} }

func (z *ZoomLens) SetFocalLength(mm float64) error {
	z.Lock()
	defer z.Unlock()
	z.fmm = mm
	return nil
}

// FocalLength returns the last commanded focal length.
func (z *ZoomLens) FocalLength() float64 {
	z.Lock()
	defer z.Unlock()
	return z.fmm
}

func (z *ZoomLens) Close() error { return nil }

// Autofocus is a simulated focus-lock unit.  SampleSeen controls whether the
// servo can engage.
type Autofocus struct {
	sync.Mutex
	SampleSeen bool
	servo      bool
}

func NewAutofocus() *Autofocus { return &Autofocus{SampleSeen: true} }

func (a *Autofocus) SetServoEnabled(on bool) error {
	a.Lock()
	defer a.Unlock()
	a.servo = on
	return nil
}

// ServoEnabled reports the servo state.
func (a *Autofocus) ServoEnabled() bool {
	a.Lock()
	defer a.Unlock()
	return a.servo
}

func (a *Autofocus) SampleFlag() (bool, error) {
	a.Lock()
	defer a.Unlock()
	return a.SampleSeen, nil
}

func (a *Autofocus) FocusFlag() (bool, error) {
	a.Lock()
	defer a.Unlock()
	return a.servo && a.SampleSeen, nil
}

func (a *Autofocus) Close() error { return nil }

// Display counts the preview buffers shown to it.
type Display struct {
	sync.Mutex
	shows int
}

func NewDisplay() *Display { return &Display{} }

func (d *Display) Show(buf *bufpool.Buffer) error {
	d.Lock()
	defer d.Unlock()
	d.shows++
	return nil
}

// Shows reports how many previews have been displayed.
func (d *Display) Shows() int {
	d.Lock()
	defer d.Unlock()
	return d.shows
}
