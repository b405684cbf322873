//go:build headless

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/retrocore/retrocore/audiosink"
	"github.com/retrocore/retrocore/videosink"
)

type runOptions struct {
	scale      int
	fullscreen bool
	frames     int
	title      string
}

// run steps the System Core for opt.frames frames against headless
// sinks and prints a hash of the final frame, the smoke-test shape this
// build exists for: no window, no audio device, deterministic output
// suitable for scripted comparison.
func run(core coreMachine, opt runOptions) {
	renderer := videosink.NewRenderer(videosink.DefaultConfig())
	sink, _ := audiosink.NewAudioSink(audiosink.DefaultConfig())
	input := videosink.NewInputPoller()

	core.SetSinks(renderer, sink)
	core.SetInputPoller(input)

	n := opt.frames
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		core.RunFrame()
	}

	f := renderer.LastFrame()
	sum := sha256.Sum256(f.RGB24)
	fmt.Printf("%s frames=%d size=%dx%d hash=%s\n", opt.title, renderer.FrameCount(), f.Width, f.Height, hex.EncodeToString(sum[:]))
}
