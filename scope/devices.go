package scope

import (
	"time"

	"github.com/lightsheet-lab/gosols/bufpool"
	"github.com/lightsheet-lab/gosols/optics"
	"github.com/lightsheet-lab/gosols/waveform"
)

// Camera is a rolling-shutter scientific CMOS camera in external trigger
// mode.  RecordToMemory blocks until the armed frame count has been written
// into the buffer.
type Camera interface {
	// Arm readies the camera for n externally triggered frames.
	Arm(n int) error
	Disarm() error
	SetROI(optics.ROI) error
	SetExposure(time.Duration) error
	SetTimestampMode(mode string) error

	// RollingTimeUs is the chip read time for the current ROI, which sets
	// the floor of the waveform period.
	RollingTimeUs() float64

	// RecordToMemory streams armed frames into buf; when softwareTrigger
	// is set the camera also fires the acquisition start itself.
	RecordToMemory(buf *bufpool.Buffer, softwareTrigger bool) error
	Close() error
}

// OutputCard is the analog-output card that plays voltage waveforms to the
// lasers, galvos and camera trigger line.
type OutputCard interface {
	WriteVoltages(*waveform.Matrix) error

	// Play emits the loaded waveform once; when block is set it returns
	// after the last sample has been clocked out.
	Play(block bool) error
	SampleRateHz() float64
	Close() error
}

// Mover is a single-axis positioner (focus piezo, filter wheel axis, Z
// drive).  Move with relative set interprets target as a delta.
type Mover interface {
	Move(target float64, relative bool) error

	// FinishMoving blocks until any in-flight move has settled.
	FinishMoving() error
	GetPosition() (float64, error)
	Close() error
}

// XYStage is the sample positioning stage.
type XYStage interface {
	MoveXY(x, y float64, relative bool) error
	FinishMoving() error
	GetPositionXY() (float64, float64, error)
	Close() error
}

// FilterWheel selects one of the emission filters by slot index.
type FilterWheel interface {
	Move(slot int) error
	FinishMoving() error
	GetPosition() (int, error)
	Close() error
}

// ZoomLens is the remote-refocus zoom used to match the detection path to
// the sample refractive index.
type ZoomLens interface {
	SetFocalLength(mm float64) error
	Close() error
}

// Autofocus is the hardware focus-lock controller.
type Autofocus interface {
	SetServoEnabled(bool) error
	SampleFlag() (bool, error)
	FocusFlag() (bool, error)
	Close() error
}

// Display consumes finished preview buffers, typically a viewer window.
// Show returns once the display no longer needs the buffer.
type Display interface {
	Show(*bufpool.Buffer) error
}
