package scope_test

import (
	"errors"
	"os"
	"path"
	"testing"

	"github.com/rs/zerolog"

	"github.com/lightsheet-lab/gosols/rec"
	"github.com/lightsheet-lab/gosols/scope"
	"github.com/lightsheet-lab/gosols/sim"
)

type rig struct {
	m       *scope.Microscope
	camera  *sim.Camera
	ao      *sim.OutputCard
	display *sim.Display
	af      *sim.Autofocus
	zoom    *sim.ZoomLens
}

func newRig(t *testing.T, maxBytes int64) *rig {
	return newRigWith(t, maxBytes, nil)
}

func newRigWith(t *testing.T, maxBytes int64, recd *rec.Recorder) *rig {
	t.Helper()
	r := &rig{
		camera:  sim.NewCamera(),
		ao:      sim.NewOutputCard(1e5),
		display: sim.NewDisplay(),
		af:      sim.NewAutofocus(),
		zoom:    sim.NewZoomLens(),
	}
	r.ao.Instant = true // no need to pace playback in tests
	dev := scope.Devices{
		Camera:      r.camera,
		AO:          r.ao,
		FilterWheel: sim.NewFilterWheel(),
		FocusPiezo:  sim.NewMover(),
		ZDrive:      sim.NewMover(),
		XYStage:     sim.NewXYStage(),
		ZoomLens:    r.zoom,
		Autofocus:   r.af,
		Display:     r.display,
		Recorder:    recd,
	}
	r.m = scope.New(dev, maxBytes, zerolog.Nop())
	t.Cleanup(func() { r.m.Close() })
	return r
}

func templateUpdate() scope.Update {
	b := func(v bool) *bool { return &v }
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }
	s := func(v string) *string { return &v }
	return scope.Update{
		ProjectionMode:     b(false),
		ProjectionAngleDeg: f(0),
		Channels: []scope.Channel{
			{Source: "LED", Power: 50},
			{Source: "488", Power: 10},
		},
		EmissionFilter:     s("ET525/50M"),
		IlluminationTimeUs: f(100),
		HeightPx:           i(248),
		WidthPx:            i(1060),
		TimestampMode:      s(scope.TimestampOff),
		VoxelAspectRatio:   f(2),
		ScanRangeUm:        f(50),
		VolumesPerBuffer:   i(1),
		SampleRI:           f(1.33),
		LSFocusAdjustV:     f(0),
		LSAngularDitherV:   f(0),
		FocusPiezoZUm:      &scope.Move{Target: 0, Relative: true},
		XYStageMm:          &scope.MoveXY{X: 0, Y: 0, Relative: true},
	}
}

func TestApplySettingsLegalizes(t *testing.T) {
	r := newRig(t, 100e9)
	if err := r.m.ApplySettings(templateUpdate()).GetResult(); err != nil {
		t.Fatal(err)
	}
	s, d := r.m.Settings(), r.m.Derived()
	if s.HeightPx != 248 || s.WidthPx != 1060 {
		t.Errorf("legal image size (%d, %d), want (248, 1060)", s.HeightPx, s.WidthPx)
	}
	// aspect 2 / tan(55 deg) rounds to a 1 px step
	if d.ScanStepSizePx != 1 {
		t.Errorf("scan step %d px, want 1", d.ScanStepSizePx)
	}
	if d.SlicesPerVolume < 2 {
		t.Errorf("slices %d, want several across 50 um", d.SlicesPerVolume)
	}
	if s.ScanRangeUm <= 0 || s.ScanRangeUm > 500 {
		t.Errorf("achieved range %v um out of bounds", s.ScanRangeUm)
	}
	if d.VolumesPerSecond <= 0 {
		t.Errorf("volumes per second %v, want positive", d.VolumesPerSecond)
	}
	if r.zoom.FocalLength() != 150 {
		t.Errorf("zoom %v mm for ri 1.33, want 150", r.zoom.FocalLength())
	}
	if !r.m.Applied() {
		t.Error("settings not marked applied")
	}
	// re-applying the achieved values must be a fixed point
	if err := r.m.ApplySettings(scope.Update{}).GetResult(); err != nil {
		t.Fatal(err)
	}
	if s2 := r.m.Settings(); s2.ScanRangeUm != s.ScanRangeUm ||
		s2.VoxelAspectRatio != s.VoxelAspectRatio {
		t.Errorf("re-apply drifted: %+v vs %+v", s2, s)
	}
}

func TestApplySettingsRejectsBadPower(t *testing.T) {
	r := newRig(t, 100e9)
	if err := r.m.ApplySettings(templateUpdate()).GetResult(); err != nil {
		t.Fatal(err)
	}
	before := r.m.Settings()
	u := templateUpdate()
	u.Channels = []scope.Channel{{Source: "488", Power: 150}}
	err := r.m.ApplySettings(u).GetResult()
	var cfg scope.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("error %v, want ConfigurationError", err)
	}
	if after := r.m.Settings(); len(after.Channels) != len(before.Channels) {
		t.Error("rejected settings mutated state")
	}
	if !r.m.Applied() {
		t.Error("rejection before hardware must keep prior settings applied")
	}
}

func TestApplySettingsResourceExceeded(t *testing.T) {
	r := newRig(t, 1024) // absurdly small allocation ceiling
	err := r.m.ApplySettings(templateUpdate()).GetResult()
	var re scope.ResourceExceededError
	if !errors.As(err, &re) {
		t.Fatalf("error %v, want ResourceExceededError", err)
	}
}

func TestAcquireWithoutApply(t *testing.T) {
	r := newRig(t, 100e9)
	err := r.m.Acquire(scope.AcquireOptions{}).GetResult()
	var cfg scope.ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("error %v, want ConfigurationError", err)
	}
}

func TestAcquirePipeline(t *testing.T) {
	r := newRig(t, 100e9)
	if err := r.m.ApplySettings(templateUpdate()).GetResult(); err != nil {
		t.Fatal(err)
	}
	if err := r.m.Acquire(scope.AcquireOptions{Display: true}).GetResult(); err != nil {
		t.Fatal(err)
	}
	d := r.m.Derived()
	s := r.m.Settings()
	if got := r.camera.Recorded(); got != d.ImagesPerBuffer+s.CameraPreframes {
		t.Errorf("camera recorded %d frames, want %d",
			got, d.ImagesPerBuffer+s.CameraPreframes)
	}
	if r.ao.Plays() != 1 {
		t.Errorf("waveform played %d times, want 1", r.ao.Plays())
	}
	if r.display.Shows() != 1 {
		t.Errorf("display shown %d previews, want 1", r.display.Shows())
	}
}

func TestAcquirePipelined(t *testing.T) {
	r := newRig(t, 100e9)
	if err := r.m.ApplySettings(templateUpdate()).GetResult(); err != nil {
		t.Fatal(err)
	}
	const n = 5
	tasks := make([]interface{ GetResult() error }, 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, r.m.Acquire(scope.AcquireOptions{Display: true}))
	}
	for i, task := range tasks {
		if err := task.GetResult(); err != nil {
			t.Fatalf("acquisition %d: %v", i, err)
		}
	}
	if r.display.Shows() != n {
		t.Errorf("display shown %d previews, want %d", r.display.Shows(), n)
	}
}

func TestAcquireSavesFits(t *testing.T) {
	root := t.TempDir()
	recd := rec.New(root, "ht_sols", zerolog.Nop())
	r2 := newRigWith(t, 100e9, recd)
	if err := r2.m.ApplySettings(templateUpdate()).GetResult(); err != nil {
		t.Fatal(err)
	}
	err := r2.m.Acquire(scope.AcquireOptions{
		Filename:    "stack000",
		Description: "simulated acquisition",
	}).GetResult()
	if err != nil {
		t.Fatal(err)
	}
	folders, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(folders) != 1 {
		t.Fatalf("%d acquisition folders, want 1", len(folders))
	}
	data := path.Join(root, folders[0].Name(), "data", "stack000.fits")
	if fi, err := os.Stat(data); err != nil || fi.Size() == 0 {
		t.Fatalf("missing data file %s: %v", data, err)
	}
	preview := path.Join(root, folders[0].Name(), "preview", "stack000.fits")
	if fi, err := os.Stat(preview); err != nil || fi.Size() == 0 {
		t.Fatalf("missing preview file %s: %v", preview, err)
	}
}

func TestAutofocusNeedsSample(t *testing.T) {
	r := newRig(t, 100e9)
	r.af.SampleSeen = false
	u := templateUpdate()
	on := true
	u.AutofocusEnabled = &on
	if err := r.m.ApplySettings(u).GetResult(); err != nil {
		t.Fatal(err)
	}
	if r.m.Settings().AutofocusEnabled {
		t.Error("autofocus enabled with no sample in view")
	}
	if r.af.ServoEnabled() {
		t.Error("servo engaged with no sample in view")
	}
}

func TestProjectionModeSingleFrame(t *testing.T) {
	r := newRig(t, 100e9)
	u := templateUpdate()
	on := true
	angle := 45.0
	u.ProjectionMode = &on
	u.ProjectionAngleDeg = &angle
	if err := r.m.ApplySettings(u).GetResult(); err != nil {
		t.Fatal(err)
	}
	d := r.m.Derived()
	if d.ScanStepSizePx != 1 {
		t.Errorf("projection scan step %d px, want 1", d.ScanStepSizePx)
	}
	if d.ProjectionHeightPx <= 0 {
		t.Error("projection height not derived")
	}
	s := r.m.Settings()
	if got := d.ImagesPerBuffer; got != s.VolumesPerBuffer*len(s.Channels) {
		t.Errorf("projection images per buffer %d, want one frame per sweep", got)
	}
	if err := r.m.Acquire(scope.AcquireOptions{Display: true}).GetResult(); err != nil {
		t.Fatal(err)
	}
}
