// retrocore loads one ROM image, wires it to a System Core, and either
// opens a window (the default !headless build) or runs a fixed number of
// frames and prints a frame hash (the headless build) — a CLI smoke-test
// harness in a plain flag.NewFlagSet-plus-os.Exit style.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/retrocore/retrocore/system"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/smsgg"
)

func main() {
	fs := flag.NewFlagSet("retrocore", flag.ExitOnError)
	consoleName := fs.String("system", "", "console: genesis, nes, snes, gb, smsgg")
	romPath := fs.String("rom", "", "path to the ROM image")
	variantName := fs.String("variant", "sms-ntsc", "smsgg variant: sms-ntsc, sms-pal, gg")
	frames := fs.Int("frames", 0, "headless build: number of frames to run before exiting (0 runs one frame)")
	scale := fs.Int("scale", 2, "window scale factor")
	fullscreen := fs.Bool("fullscreen", false, "start in fullscreen")
	overclock := fs.Float64("overclock", 1.0, "CPU clock multiplier, 1.0 = retail speed")
	fs.Parse(os.Args[1:])

	if *romPath == "" || *consoleName == "" {
		fmt.Fprintln(os.Stderr, "usage: retrocore -system <genesis|nes|snes|gb|smsgg> -rom <path> [-frames N] [-scale N] [-fullscreen] [-overclock N]")
		os.Exit(2)
	}

	romData, err := os.ReadFile(*romPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "retrocore: reading %s: %v\n", *romPath, err)
		os.Exit(1)
	}

	cfg := system.Config{Overclock: *overclock}

	core, err := newCore(*consoleName, romData, *variantName, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "retrocore: %v\n", err)
		os.Exit(1)
	}
	defer core.Close()

	run(core, runOptions{
		scale:      *scale,
		fullscreen: *fullscreen,
		frames:     *frames,
		title:      "retrocore - " + *consoleName,
	})
}

// coreMachine is the subset of every System Core's method set this
// command drives; every *system.Genesis/NES/SNES/GB/SMSGG already
// satisfies it, so newCore returns the constructors' own results
// directly with no wrapper types needed.
type coreMachine interface {
	SetSinks(system.RenderSink, system.SampleSink)
	SetInputPoller(system.InputPoller)
	RunFrame()
	Frame() video.Frame
	Close() error
}

func newCore(consoleName string, romData []byte, variantName string, cfg system.Config) (coreMachine, error) {
	switch consoleName {
	case "genesis":
		return system.NewGenesis(romData, cfg)
	case "nes":
		return system.NewNES(romData, cfg)
	case "snes":
		return system.NewSNES(romData, cfg)
	case "gb":
		return system.NewGB(romData, cfg)
	case "smsgg":
		return system.NewSMSGG(romData, parseSMSGGVariant(variantName), cfg)
	default:
		return nil, fmt.Errorf("unknown -system %q", consoleName)
	}
}

func parseSMSGGVariant(name string) smsgg.Version {
	switch name {
	case "sms-pal":
		return smsgg.VersionSMS2PAL
	case "gg":
		return smsgg.VersionGameGear
	default:
		return smsgg.VersionSMS2NTSC
	}
}
