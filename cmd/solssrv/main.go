package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/rs/zerolog"

	yml "gopkg.in/yaml.v2"

	"github.com/lightsheet-lab/gosols/rec"
	"github.com/lightsheet-lab/gosols/scope"
	"github.com/lightsheet-lab/gosols/scopehttp"
	"github.com/lightsheet-lab/gosols/sim"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "solssrv.yml"
	k              = koanf.New(".")
)

// Config controls the server.
type Config struct {
	Addr string `koanf:"addr"`

	// MaxAllocatedBytes caps the total buffer memory the microscope may
	// hold in flight.
	MaxAllocatedBytes int64 `koanf:"maxAllocatedBytes"`

	// AORateHz is the analog output card's sample clock.
	AORateHz float64 `koanf:"aoRateHz"`

	// DataRoot receives dated acquisition folders.
	DataRoot string `koanf:"dataRoot"`

	// Simulated selects the simulated hardware rig.
	Simulated bool `koanf:"simulated"`
}

func setupconfig() {
	k.Load(structs.Provider(Config{
		Addr:              ":8000",
		MaxAllocatedBytes: 100e9,
		AORateHz:          1e5,
		DataRoot:          "acquisitions",
		Simulated:         true}, "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `solssrv runs an oblique-plane light sheet microscope and exposes it over HTTP.
Settings application and acquisition are custody tasks; the HTTP layer blocks
until a task completes so clients see its result as the response.

Usage:
	solssrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `solssrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

The default configuration runs against simulated hardware, which synthesizes
camera frames and paces waveform playback at the configured sample clock.

Routes:
	GET  /settings  currently applied settings
	GET  /derived   quantities computed from them
	POST /apply     sparse settings update; replies with achieved settings
	POST /acquire   one acquisition through preview, display and save
	GET  /lock      lock state
	POST /lock      reserve or release the instrument`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("solssrv version %v\n", Version)
}

func buildDevices(c Config, logger zerolog.Logger) scope.Devices {
	if !c.Simulated {
		// real device drivers attach here
		log.Fatal("only simulated hardware is available on this build")
	}
	return scope.Devices{
		Camera:      sim.NewCamera(),
		AO:          sim.NewOutputCard(c.AORateHz),
		FilterWheel: sim.NewFilterWheel(),
		FocusPiezo:  sim.NewMover(),
		ZDrive:      sim.NewMover(),
		XYStage:     sim.NewXYStage(),
		ZoomLens:    sim.NewZoomLens(),
		Autofocus:   sim.NewAutofocus(),
		Display:     sim.NewDisplay(),
		Recorder:    rec.New(c.DataRoot, "ht_sols", logger),
	}
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	m := scope.New(buildDevices(c, logger), c.MaxAllocatedBytes, logger)
	defer m.Close()
	mux := scopehttp.New(m, logger).Mux()
	logger.Info().Str("addr", c.Addr).Msg("listening")
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
