//go:build !headless

// ebiten.go - the default window Renderer and keyboard/gamepad InputPoller

package videosink

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/retrocore/retrocore/system"
	"github.com/retrocore/retrocore/video"
)

// Renderer is the default window Renderer: it implements both
// video.Renderer and system.RenderSink (the same Present(video.Frame)
// method satisfies both) by buffering the most recently presented frame
// under a mutex and letterbox-scaling it into the window on every Draw.
//
// Uses a mutex-guarded frame buffer written by Present off
// the emulation thread, drawn by ebiten's own render thread in Draw, with
// window lifecycle and F-key hotkeys polled in Update.
type Renderer struct {
	cfg Config

	mu    sync.RWMutex
	frame video.Frame

	window  *ebiten.Image
	scratch *image.RGBA

	running bool
	done    chan struct{}

	hotkeys     []Hotkey
	hotkeysLock sync.Mutex
}

// NewRenderer constructs a windowed Renderer. Run must be called (on the
// main goroutine, ebiten's own requirement) to actually open the window.
func NewRenderer(cfg Config) *Renderer {
	return &Renderer{cfg: cfg, done: make(chan struct{})}
}

// Present implements video.Renderer/system.RenderSink: store the frame
// for the next Draw call, never blocking the emulation thread.
func (r *Renderer) Present(f video.Frame) {
	r.mu.Lock()
	r.frame = f
	r.mu.Unlock()
}

// Run opens the window and blocks until it is closed. Call it from the
// host's main goroutine.
func (r *Renderer) Run(title string) error {
	r.running = true
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizable(true)
	ebiten.SetFullscreen(r.cfg.Fullscreen)
	defer close(r.done)
	return ebiten.RunGame(r)
}

// Done reports when the window has closed.
func (r *Renderer) Done() <-chan struct{} { return r.done }

func (r *Renderer) Update() error {
	if ebiten.IsWindowBeingClosed() {
		return ebiten.Termination
	}
	r.pollHotkeys()
	return nil
}

// pollHotkeys records the host commands a hotkey binding maps to, for
// DrainHotkeys to hand to whatever owns the System Core.
func (r *Renderer) pollHotkeys() {
	type binding struct {
		key ebiten.Key
		hk  Hotkey
	}
	bindings := []binding{
		{ebiten.KeyF10, HotkeyReset},
		{ebiten.KeyF9, HotkeyPowerOff},
		{ebiten.KeyEscape, HotkeyExit},
		{ebiten.KeyF11, HotkeyToggleFullscreen},
		{ebiten.KeyF5, HotkeySaveSlot},
		{ebiten.KeyF8, HotkeyLoadSlot},
		{ebiten.KeyF6, HotkeyCycleSlot},
		{ebiten.KeyTab, HotkeyFastForward},
		{ebiten.KeyBackquote, HotkeyRewind},
		{ebiten.KeyF7, HotkeyToggleOverclock},
		{ebiten.KeyM, HotkeyMute},
	}
	r.hotkeysLock.Lock()
	defer r.hotkeysLock.Unlock()
	for _, b := range bindings {
		if inpututil.IsKeyJustPressed(b.key) {
			r.hotkeys = append(r.hotkeys, b.hk)
		}
	}
}

// DrainHotkeys returns and clears every hotkey pressed since the last
// call, for the host's frame loop to act on between System Core frames.
func (r *Renderer) DrainHotkeys() []Hotkey {
	r.hotkeysLock.Lock()
	defer r.hotkeysLock.Unlock()
	hk := r.hotkeys
	r.hotkeys = nil
	return hk
}

func (r *Renderer) Draw(screen *ebiten.Image) {
	r.mu.RLock()
	f := r.frame
	r.mu.RUnlock()
	if f.Width == 0 || f.Height == 0 {
		return
	}

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	if r.scratch == nil || r.scratch.Bounds().Dx() != sw || r.scratch.Bounds().Dy() != sh {
		r.scratch = image.NewRGBA(image.Rect(0, 0, sw, sh))
	}
	draw.Draw(r.scratch, r.scratch.Bounds, &image.Uniform{color.Black}, image.Point{}, draw.Src)

	dst := letterbox(sw, sh, f.Width, f.Height, f.PixelAspect)
	src := frameToRGBA(f)
	xdraw.ApproxBiLinear.Scale(r.scratch, dst, src, src.Bounds, draw.Over, nil)

	if r.window == nil || r.window.Bounds().Dx() != sw || r.window.Bounds().Dy() != sh {
		r.window = ebiten.NewImage(sw, sh)
	}
	r.window.WritePixels(r.scratch.Pix)
	screen.DrawImage(r.window, nil)

	if r.cfg.ShowHUD {
		drawHUD(screen, f)
	}
}

func (r *Renderer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// frameToRGBA converts a video.Frame's row-major RGB24 buffer into a
// standard image.RGBA the x/image scaler can consume.
func frameToRGBA(f video.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i := 0; i < f.Width*f.Height; i++ {
		img.Pix[i*4+0] = f.RGB24[i*3+0]
		img.Pix[i*4+1] = f.RGB24[i*3+1]
		img.Pix[i*4+2] = f.RGB24[i*3+2]
		img.Pix[i*4+3] = 0xFF
	}
	return img
}

// letterbox computes the centered destination rectangle within a
// windowWxH canvas that preserves the source frame's pixel aspect ratio.
func letterbox(windowW, windowH, srcW, srcH int, pixelAspect float64) image.Rectangle {
	if pixelAspect <= 0 {
		pixelAspect = 1.0
	}
	targetAspect := (float64(srcW) * pixelAspect) / float64(srcH)
	windowAspect := float64(windowW) / float64(windowH)

	var w, h int
	if windowAspect > targetAspect {
		h = windowH
		w = int(float64(h) * targetAspect)
	} else {
		w = windowW
		h = int(float64(w) / targetAspect)
	}
	x := (windowW - w) / 2
	y := (windowH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// drawHUD overlays a single debug status line, grounded on
// debug_overlay.go's basicfont-rendered status text.
func drawHUD(screen *ebiten.Image, f video.Frame) {
	face := basicfont.Face7x13
	label := "retrocore"
	text.Draw(screen, label, face, 4, 14, color.RGBA{0, 220, 90, 255})
}

// InputPoller is the default keyboard/gamepad-backed system.InputPoller:
// port 0 reads the keyboard, port 1 (when connected) reads the first
// ebiten-visible standard gamepad. Pointer devices (Super Scope, Zapper,
// mouse) are not modeled; see DESIGN.md.
type InputPoller struct{}

// NewInputPoller constructs the default keyboard/gamepad poller.
func NewInputPoller() *InputPoller { return &InputPoller{} }

var _ system.InputPoller = (*InputPoller)(nil)

// PadState implements system.InputPoller.
func (p *InputPoller) PadState(port int) system.Button {
	if port == 0 {
		return keyboardPadState()
	}
	return gamepadPadState(port - 1)
}

func keyboardPadState() system.Button {
	var mask system.Button
	set := func(pressed bool, b system.Button) {
		if pressed {
			mask |= b
		}
	}
	set(ebiten.IsKeyPressed(ebiten.KeyArrowUp), system.ButtonUp)
	set(ebiten.IsKeyPressed(ebiten.KeyArrowDown), system.ButtonDown)
	set(ebiten.IsKeyPressed(ebiten.KeyArrowLeft), system.ButtonLeft)
	set(ebiten.IsKeyPressed(ebiten.KeyArrowRight), system.ButtonRight)
	set(ebiten.IsKeyPressed(ebiten.KeyZ), system.ButtonA)
	set(ebiten.IsKeyPressed(ebiten.KeyX), system.ButtonB)
	set(ebiten.IsKeyPressed(ebiten.KeyC), system.ButtonC)
	set(ebiten.IsKeyPressed(ebiten.KeyA), system.ButtonX)
	set(ebiten.IsKeyPressed(ebiten.KeyS), system.ButtonY)
	set(ebiten.IsKeyPressed(ebiten.KeyD), system.ButtonZ)
	set(ebiten.IsKeyPressed(ebiten.KeyEnter), system.ButtonStart)
	set(ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight), system.ButtonSelect)
	set(ebiten.IsKeyPressed(ebiten.KeyQ), system.ButtonL)
	set(ebiten.IsKeyPressed(ebiten.KeyW), system.ButtonR)
	return mask
}

func gamepadPadState(index int) system.Button {
	ids := ebiten.AppendGamepadIDs(nil)
	if index < 0 || index >= len(ids) {
		return 0
	}
	id := ids[index]
	var mask system.Button
	set := func(pressed bool, b system.Button) {
		if pressed {
			mask |= b
		}
	}
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonLeftTop), system.ButtonUp)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonLeftBottom), system.ButtonDown)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonLeftLeft), system.ButtonLeft)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonLeftRight), system.ButtonRight)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonRightBottom), system.ButtonA)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonRightRight), system.ButtonB)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonRightTop), system.ButtonC)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonRightLeft), system.ButtonX)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonCenterLeft), system.ButtonSelect)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonCenterRight), system.ButtonStart)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonFrontTopLeft), system.ButtonL)
	set(ebiten.IsStandardGamepadButtonPressed(id, ebiten.StandardGamepadButtonFrontTopRight), system.ButtonR)
	return mask
}
