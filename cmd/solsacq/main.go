// Command solsacq runs a scripted acquisition series against the (simulated)
// microscope, the CLI equivalent of the HTTP server's apply/acquire loop.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/theckman/yacspin"

	"github.com/lightsheet-lab/gosols/rec"
	"github.com/lightsheet-lab/gosols/scope"
	"github.com/lightsheet-lab/gosols/sim"
)

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

func main() {
	var (
		n      = flag.Int("n", 10, "acquisitions to run")
		root   = flag.String("root", "acquisitions", "data root folder")
		save   = flag.Bool("save", true, "save FITS files")
		rateHz = flag.Float64("ao-rate", 1e5, "output card sample clock, Hz")
		pace   = flag.Bool("pace", false, "pace waveform playback in real time")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger().Level(zerolog.WarnLevel)

	ao := sim.NewOutputCard(*rateHz)
	ao.Instant = !*pace
	m := scope.New(scope.Devices{
		Camera:      sim.NewCamera(),
		AO:          ao,
		FilterWheel: sim.NewFilterWheel(),
		FocusPiezo:  sim.NewMover(),
		ZDrive:      sim.NewMover(),
		XYStage:     sim.NewXYStage(),
		ZoomLens:    sim.NewZoomLens(),
		Autofocus:   sim.NewAutofocus(),
		Display:     sim.NewDisplay(),
		Recorder:    rec.New(*root, "ht_sols", logger),
	}, 100e9, logger)
	defer m.Close()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:       100 * time.Millisecond,
		CharSet:         yacspin.CharSets[59],
		Suffix:          " ",
		SuffixAutoColon: true,
		StopCharacter:   "done",
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()

	spinner.Message("applying settings")
	if err := m.ApplySettings(templateUpdate()).GetResult(); err != nil {
		spinner.StopFail()
		log.Fatal(err)
	}
	d := m.Derived()
	spinner.Message(fmt.Sprintf("%d slices, %.2f volumes/s",
		d.SlicesPerVolume, d.VolumesPerSecond))

	t0 := time.Now()
	folder := "" // one shared folder so the series lands together
	if *save {
		folder = filepath.Join(*root,
			time.Now().Format("2006-01-02_15-04-05")+"_solsacq")
	}
	tasks := make([]interface{ GetResult() error }, 0, *n)
	for i := 0; i < *n; i++ {
		opts := scope.AcquireOptions{Display: true}
		if *save {
			opts.Filename = fmt.Sprintf("stack%06d", i)
			opts.Folder = folder
		}
		spinner.Message(fmt.Sprintf("acquiring %d/%d", i+1, *n))
		tasks = append(tasks, m.Acquire(opts))
	}
	for i, t := range tasks {
		if err := t.GetResult(); err != nil {
			spinner.StopFail()
			log.Fatalf("acquisition %d: %v", i, err)
		}
	}
	elapsed := time.Since(t0)
	spinner.Stop()
	fmt.Printf("%d acquisitions in %v (%.2f volumes/s overall)\n",
		*n, elapsed.Round(time.Millisecond),
		float64(*n)/elapsed.Seconds())
}
