// Package sega32x implements the 32X's additional frame-buffer VDP: a
// second video unit, driven by the master or slave SH-2, that composites
// over the Genesis VDP's output rather than replacing it.
//
// Grounded on the Genesis VDP's dot/line-stepped Device shape
// (video/genesis/vdp.go); the 32X VDP has no FIFO or DMA engine of its own
// (its frame buffer is CPU/auto-fill-written SH-2-side memory, not a
// VRAM+FIFO device), so this package is considerably smaller than the
// Genesis VDP it composites with.
package sega32x

import (
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
)

// Frame buffer pixel modes, selected by the SH-2-side FBCTL register.
const (
	ModePacked      = 0 // 8-bit indexed through the CRAM-like 32X palette
	ModeDirectColor = 1 // 15-bit RGB555, one word per pixel
	ModeRunLength   = 2 // 8-bit indexed, (count,index) pair run-length pairs
)

const (
	fbWidth  = 320
	fbHeight = 224
	fbBytes  = 128 * 1024
)

// VDP is the 32X frame-buffer video unit. Two 128KB frame buffers are held
// so the SH-2s can write the next frame while the currently-displayed one
// is read for composition, swapped at V-blank.
type VDP struct {
	fb       [2][fbBytes]byte
	display  int // index of the buffer currently being displayed/read
	Palette  [256]uint16 // 32X CRAM, RGB555 packed

	mode int

	autoFillActive bool
	autoFillLen    int
	autoFillData   uint16
	autoFillAddr   uint16
	autoFillBuf    int // buffer the async auto-fill writes into

	priority bool // HCR/composition priority: 32X over Genesis or under

	dot, line int
	mc        mclock.Tick
	mcPerDot  mclock.Divider
	dotRemainder mclock.Tick

	// GenesisFrame supplies the already-rendered Genesis VDP frame for
	// this same video field, since the 32X composites over it rather than
	// owning its own independent scanout.
	GenesisFrame func() video.Frame

	OnFrame func(f video.Frame)

	frame video.Frame
}

// New creates a 32X VDP. mcPerDot matches the Genesis VDP's dot rate so the
// two units stay pixel-aligned.
func New(mcPerDot mclock.Divider) *VDP {
	v := &VDP{mcPerDot: mcPerDot}
	v.frame = video.NewFrame(1280, fbHeight, 2.0/7.0)
	return v
}

// Frame returns the most recently completed composited frame.
func (v *VDP) Frame() video.Frame { return v.frame }

// SetMode selects the active frame-buffer pixel format.
func (v *VDP) SetMode(m int) { v.mode = m }

// SetPriority sets whether the 32X layer composites above the Genesis
// plane/sprite stack (true) or beneath it (false).
func (v *VDP) SetPriority(above bool) { v.priority = above }

// WriteFB writes one byte into the SH-2-writable (non-displayed) frame
// buffer, the buffer the SH-2 hosts address through their FB window.
func (v *VDP) WriteFB(addr uint16, value byte) {
	v.fb[1-v.display][addr] = value
}

func (v *VDP) ReadFB(addr uint16) byte {
	return v.fb[1-v.display][addr]
}

// BeginAutoFill starts the 32X's asynchronous horizontal-run fill: writes
// `data`'s low byte/word starting at `addr`, `length` units, advancing by
// one unit per call to StepTo's internal tick rather than blocking the
// issuing SH-2, per the "async auto-fill".
func (v *VDP) BeginAutoFill(addr uint16, data uint16, length int) {
	v.autoFillActive = true
	v.autoFillAddr = addr
	v.autoFillData = data
	v.autoFillLen = length
	v.autoFillBuf = 1 - v.display
}

// AutoFillBusy reports whether an auto-fill is still in progress; SH-2 code
// polls this via the FBCTL status bit.
func (v *VDP) AutoFillBusy() bool { return v.autoFillActive }

// StepTo implements clockdrv.Device, advancing the dot/line counters and
// draining one auto-fill unit per dot.
func (v *VDP) StepTo(to mclock.Tick) {
	steps, rem := v.mcPerDot.Steps(to-v.mc, v.dotRemainder)
	v.mc = to
	v.dotRemainder = rem
	for i := uint64(0); i < steps; i++ {
		v.stepDot()
	}
}

func (v *VDP) NextDeadline() mclock.Tick { return v.mc + mclock.Tick(v.mcPerDot) }

func (v *VDP) stepDot() {
	if v.autoFillActive {
		v.driveAutoFill()
	}
	v.dot++
	if v.dot >= fbWidth+22 { // 342 dots, the Genesis VDP's H40 line
		v.dot = 0
		v.line++
		if v.line >= 262 {
			v.line = 0
			v.endOfFrame()
		}
	}
}

func (v *VDP) driveAutoFill() {
	switch v.mode {
	case ModeDirectColor:
		v.fb[v.autoFillBuf][(v.autoFillAddr)&0xFFFE] = byte(v.autoFillData >> 8)
		v.fb[v.autoFillBuf][(v.autoFillAddr+1)&0xFFFF] = byte(v.autoFillData)
		v.autoFillAddr += 2
	default:
		v.fb[v.autoFillBuf][v.autoFillAddr] = byte(v.autoFillData)
		v.autoFillAddr++
	}
	v.autoFillLen--
	if v.autoFillLen <= 0 {
		v.autoFillActive = false
	}
}

// endOfFrame swaps the display buffer and composites the completed 32X
// field over the Genesis VDP's frame for this same field, including the
// 1280x224-wide mixed-resolution path: each pixel of the 32X's 320-wide
// buffer covers 4 output columns, and the Genesis frame is sampled across
// the same 1280 columns (4x for H40, 5x for H32) without a separate
// scaling pass.
func (v *VDP) endOfFrame() {
	v.display = 1 - v.display
	v.composite()
	if v.OnFrame != nil {
		v.OnFrame(v.frame)
	}
}

func (v *VDP) composite() {
	var genesis video.Frame
	if v.GenesisFrame != nil {
		genesis = v.GenesisFrame()
	}
	scaleX := 1280 / fbWidth

	for y := 0; y < fbHeight; y++ {
		for x32 := 0; x32 < fbWidth; x32++ {
			c, opaque := v.fbPixel(x32, y)
			gx0 := x32 * scaleX
			for sx := 0; sx < scaleX; sx++ {
				gx := gx0 + sx
				out := c
				if !opaque || !v.priority {
					if genesis.Width > 0 {
						gpx := gx * genesis.Width / 1280
						out = sampleFrame(genesis, gpx, y)
					} else if !opaque {
						continue
					}
				}
				v.frame.PutPixel(gx, y, out)
			}
		}
	}
}

func sampleFrame(f video.Frame, x, y int) video.RGB24 {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return video.RGB24{}
	}
	i := (y*f.Width + x) * 3
	return video.RGB24{R: f.RGB24[i], G: f.RGB24[i+1], B: f.RGB24[i+2]}
}

// fbPixel decodes the pixel at (x,y) in the currently-displayed frame
// buffer per the active mode, returning whether it's a non-transparent
// (index != 0) pixel eligible to composite over the Genesis plane.
func (v *VDP) fbPixel(x, y int) (video.RGB24, bool) {
	buf := &v.fb[v.display]
	switch v.mode {
	case ModeDirectColor:
		off := (y*fbWidth + x) * 2
		if off+1 >= len(buf) {
			return video.RGB24{}, false
		}
		word := uint16(buf[off])<<8 | uint16(buf[off+1])
		if word&0x8000 == 0 && word == 0 {
			return video.RGB24{}, false
		}
		return decodeRGB555(word & 0x7FFF), true
	case ModeRunLength:
		return v.runLengthPixel(buf, y, x)
	default: // ModePacked
		off := y*fbWidth + x
		if off >= len(buf) {
			return video.RGB24{}, false
		}
		idx := buf[off]
		if idx == 0 {
			return video.RGB24{}, false
		}
		return decodeRGB555(v.Palette[idx] & 0x7FFF), true
	}
}

// runLengthPixel walks a line's (count,index) byte-pair run list from the
// start of the line to x. Real hardware caches the decode position per
// line during scanout; this reference implementation re-walks per pixel,
// which is correct but not the fast path a production renderer would use.
func (v *VDP) runLengthPixel(buf *[fbBytes]byte, y, x int) (video.RGB24, bool) {
	lineOff := y * fbWidth // run data reuses the same byte budget per line
	pos := 0
	for o := lineOff; o+1 < len(buf) && o < lineOff+fbWidth; o += 2 {
		count := int(buf[o])
		idx := buf[o+1]
		if x >= pos && x < pos+count {
			if idx == 0 {
				return video.RGB24{}, false
			}
			return decodeRGB555(v.Palette[idx] & 0x7FFF), true
		}
		pos += count
		if count == 0 {
			break
		}
	}
	return video.RGB24{}, false
}

func decodeRGB555(word uint16) video.RGB24 {
	r := uint8(word&0x1F) << 3
	g := uint8((word>>5)&0x1F) << 3
	b := uint8((word>>10)&0x1F) << 3
	return video.RGB24{R: r | r>>5, G: g | g>>5, B: b | b>>5}
}
