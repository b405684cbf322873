//go:build !headless

package main

import (
	"fmt"
	"os"

	"github.com/retrocore/retrocore/audiosink"
	"github.com/retrocore/retrocore/videosink"
)

type runOptions struct {
	scale      int
	fullscreen bool
	frames     int // unused in the windowed build; the window's own close drives exit
	title      string
}

// run opens a window and drives the System Core from a background
// goroutine, one RunFrame per Present, until the window closes or a
// HotkeyExit/HotkeyPowerOff is drained.
func run(core coreMachine, opt runOptions) {
	renderer := videosink.NewRenderer(videosink.Config{Scale: opt.scale, Fullscreen: opt.fullscreen, ShowHUD: true})
	input := videosink.NewInputPoller()

	sink, err := audiosink.NewAudioSink(audiosink.DefaultConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "retrocore: audio: %v\n", err)
		os.Exit(1)
	}
	defer sink.Close()

	core.SetSinks(renderer, sink)
	core.SetInputPoller(input)

	go func() {
		for {
			select {
			case <-renderer.Done():
				return
			default:
			}
			for _, hk := range renderer.DrainHotkeys() {
				if hk == videosink.HotkeyExit || hk == videosink.HotkeyPowerOff {
					return
				}
			}
			core.RunFrame()
		}
	}()

	if err := renderer.Run(opt.title); err != nil {
		fmt.Fprintf(os.Stderr, "retrocore: %v\n", err)
		os.Exit(1)
	}
}
