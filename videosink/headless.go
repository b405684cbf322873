//go:build headless

// headless.go - the no-window Renderer and scriptable InputPoller used by
// cmd/retrocore's smoke-test mode and by tests, grounded on
// video_backend_headless.go's HeadlessVideoOutput.

package videosink

import (
	"sync"
	"sync/atomic"

	"github.com/retrocore/retrocore/system"
	"github.com/retrocore/retrocore/video"
)

// Renderer is the headless Renderer: it records the most recently
// presented frame and a running frame count, doing no scaling or window
// work at all, mirroring HeadlessVideoOutput's role as a drop-in stand-in
// for the windowed backend in environments with no display.
type Renderer struct {
	cfg Config

	mu    sync.RWMutex
	frame video.Frame

	frameCount uint64
}

// NewRenderer constructs a headless Renderer. cfg is accepted for
// interface parity with the windowed build but otherwise unused.
func NewRenderer(cfg Config) *Renderer {
	return &Renderer{cfg: cfg}
}

// Present implements video.Renderer/system.RenderSink.
func (r *Renderer) Present(f video.Frame) {
	r.mu.Lock()
	r.frame = f
	r.mu.Unlock()
	atomic.AddUint64(&r.frameCount, 1)
}

// LastFrame returns the most recently presented frame, for test
// assertions and cmd/retrocore's frame-hash smoke check.
func (r *Renderer) LastFrame() video.Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frame
}

// FrameCount returns the number of frames presented so far.
func (r *Renderer) FrameCount() uint64 { return atomic.LoadUint64(&r.frameCount) }

// DrainHotkeys always returns nil: the headless build has no keyboard to
// read hotkeys from.
func (r *Renderer) DrainHotkeys() []Hotkey { return nil }

// InputPoller is a scriptable system.InputPoller for headless runs and
// tests: each port's mask defaults to 0 ("nothing pressed") until Set is
// called.
type InputPoller struct {
	mu    sync.RWMutex
	ports [2]system.Button
}

// NewInputPoller constructs a headless InputPoller with both ports idle.
func NewInputPoller() *InputPoller { return &InputPoller{} }

var _ system.InputPoller = (*InputPoller)(nil)

// PadState implements system.InputPoller.
func (p *InputPoller) PadState(port int) system.Button {
	if port < 0 || port > 1 {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ports[port]
}

// Set overrides the button mask reported for port, for scripted test
// input sequences.
func (p *InputPoller) Set(port int, mask system.Button) {
	if port < 0 || port > 1 {
		return
	}
	p.mu.Lock()
	p.ports[port] = mask
	p.mu.Unlock()
}
