/*Package scope orchestrates the HT-SOLS microscope: it legalizes settings,
programs the hardware, and runs pipelined acquisitions.

Concurrency follows a custody model.  Each acquisition is a task that holds
at most one resource token at a time (camera, preview engine, display) and
hands custody downstream as its data moves through the pipeline, so a new
acquisition can start exposing while the previous one is still being
previewed or displayed.  Pending grants for a resource are served in FIFO
order, which keeps results in submission order.
*/
package scope

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/lightsheet-lab/gosols/bufpool"
	"github.com/lightsheet-lab/gosols/rec"
	"github.com/lightsheet-lab/gosols/sched"
	"github.com/lightsheet-lab/gosols/waveform"
)

// Devices bundles the hardware handles the microscope drives.  Recorder and
// Display are optional; everything else is required.
type Devices struct {
	Camera      Camera
	AO          OutputCard
	FilterWheel FilterWheel
	FocusPiezo  Mover
	ZDrive      Mover
	XYStage     XYStage
	ZoomLens    ZoomLens
	Autofocus   Autofocus
	Display     Display
	Recorder    *rec.Recorder
}

// Microscope is the top-level instrument.  All mutation of settings and
// hardware happens inside tasks holding camera custody; the mutex only
// guards snapshot reads by observers (HTTP handlers, metadata writers).
type Microscope struct {
	dev Devices
	log zerolog.Logger

	maxAllocatedBytes int64

	camera  *sched.Resource
	preview *sched.Resource
	display *sched.Resource

	dataPool    *bufpool.Pool
	previewPool *bufpool.Pool

	mu       sync.Mutex
	settings Settings
	derived  Derived
	matrix   *waveform.Matrix
	applied  bool
	closed   bool
	tasks    []*sched.Task
}

// New builds a microscope around the given devices.  maxAllocatedBytes is
// the hard ceiling on the sum of all data and preview buffer memory; it is
// enforced on every settings application.
func New(dev Devices, maxAllocatedBytes int64, log zerolog.Logger) *Microscope {
	return &Microscope{
		dev:               dev,
		log:               log,
		maxAllocatedBytes: maxAllocatedBytes,
		camera:            sched.NewResource("camera"),
		preview:           sched.NewResource("preview"),
		display:           sched.NewResource("display"),
		dataPool:          bufpool.New(1),
		previewPool:       bufpool.New(1),
		settings:          DefaultSettings(),
	}
}

// Settings returns the last applied settings.
func (m *Microscope) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Derived returns the quantities computed from the last applied settings.
func (m *Microscope) Derived() Derived {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.derived
}

// Applied reports whether a legal settings application has completed since
// startup (or since the last failed one).
func (m *Microscope) Applied() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// launch registers a custody task unless the microscope is closed.
func (m *Microscope) launch(fn func(*sched.Custody) error) *sched.Task {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return sched.Completed(ConfigurationError{"microscope", "closed"})
	}
	t := sched.Run(fn, m.camera)
	m.tasks = append(m.tasks, t)
	m.mu.Unlock()
	return t
}

// FinishAllTasks blocks until every launched task has completed and returns
// the first error any of them reported.
func (m *Microscope) FinishAllTasks() error {
	m.mu.Lock()
	tasks := m.tasks
	m.tasks = nil
	m.mu.Unlock()
	var first error
	for _, t := range tasks {
		if err := t.GetResult(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close drains pending tasks and shuts down the hardware.
func (m *Microscope) Close() error {
	err := m.FinishAllTasks()
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	for _, c := range []interface{ Close() error }{
		m.dev.AO, m.dev.FilterWheel, m.dev.Camera, m.dev.ZoomLens,
		m.dev.FocusPiezo, m.dev.Autofocus, m.dev.XYStage, m.dev.ZDrive,
	} {
		if c == nil {
			continue
		}
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	m.log.Info().Msg("microscope closed")
	return err
}
