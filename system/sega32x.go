package system

import (
	"fmt"

	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/pwm32x"
	"github.com/retrocore/retrocore/audio/sn76489"
	"github.com/retrocore/retrocore/audio/ym2612"
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/cart/genmappers"
	"github.com/retrocore/retrocore/clockdrv"
	"github.com/retrocore/retrocore/cpu"
	"github.com/retrocore/retrocore/cpu/m68k"
	"github.com/retrocore/retrocore/cpu/sh2"
	"github.com/retrocore/retrocore/cpu/z80"
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/genesis"
	"github.com/retrocore/retrocore/video/sega32x"
)

// 32X clock dividers. The add-on board's two SH-2s run from their own
// 23.01MHz crystal, asynchronous to the Genesis base's 53.693175MHz one;
// as with the SPC700+S-DSP timeline in system/snes.go, this module
// collapses both onto the shared MC timeline via a fixed divider rather
// than modeling two free-running clock domains.
const (
	sega32xSH2Divider mclock.Divider = 2
	sega32xVDPDivider mclock.Divider = 4
	sega32xPWMDivider mclock.Divider = 6
)

// SH-2 interrupt levels this module wires, chosen to match the relative
// priority the 32X BIOS's own vector table documents (V-blank highest,
// PWM lowest) without claiming bit-exact IRL encoding.
const (
	sh2IRQVBlank = 12
	sh2IRQHBlank = 10
	sh2IRQCmd    = 8
	sh2IRQPWM    = 6
)

// Sega32X is the Sega Genesis + 32X System Core: the Genesis's own 68000
// and Z80/VDP/FM/PSG subsystem, plus the add-on board's master and slave
// SH-2s, the 32X frame-buffer VDP composited over the Genesis VDP's
// output, and the 2-channel PWM sound hardware.
//
// Grounded on system/genesis.go's composition shape, extended with two
// more clockdrv.Processor entries (master/slave SH-2) and the
// communication-port/interrupt-control register block the 32X adds over
// the base Genesis machine.
type Sega32X struct {
	cfg Config

	driver *clockdrv.Driver

	m68kHost *cpu.Host
	m68kCPU  *m68k.CPU
	m68kBus  *bus.Map

	z80Host *cpu.Host
	z80CPU  *z80.CPU
	z80Bus  *bus.Map

	shMasterHost *cpu.Host
	shMaster     *sh2.CPU
	shMasterBus  *bus.Map

	shSlaveHost *cpu.Host
	shSlave     *sh2.CPU
	shSlaveBus  *bus.Map

	vdp    *genesis.VDP
	vdp32x *sega32x.VDP
	fm     *ym2612.YM2612
	psg    *sn76489.PSG
	pwm    *pwm32x.PWM

	mapper cart.Mapper
	region cart.Region

	workRAM [0x10000]byte
	z80RAM  [0x2000]byte
	sdram   [0x40000]byte // 256KB, shared between both SH-2s

	z80BusRequested bool
	z80Reset        bool

	adapterEnabled bool // $A15100 bit 0: 32X hardware present/enabled to the 68000

	// commPorts are the eight 16-bit CMD0-CMD7 communication registers
	// ($A15120-$A1512F on the 68000 side), shared verbatim with both
	// SH-2s; real hardware splits read/write permission per port and per
	// side, which this module does not enforce, per its register/memory-
	// map (not access-control) fidelity tier.
	commPorts [8]uint16

	intCmdMaster, intCmdSlave bool // per-SH2 communication-interrupt enable
	intCmdTo68K               bool // SH-2-to-68000 communication interrupt enable

	// pwmClockRef selects which SH-2's PWM timer drives the FIFO drain
	// rate when both could plausibly own it; kept as an explicit field
	// for the pixel-clock/PWM reference-selection bit rather than left
	// implicit in wiring order.
	pwmClockRef bool // false = master, true = slave

	renderSink RenderSink
	sampleSink SampleSink
	audioUnits []audio.Unit

	flush *flushWorker
}

// NewSega32X constructs a Genesis+32X System Core from 32X cartridge ROM
// bytes (a standard Genesis-format header/bank layout the SH-2s and
// 68000 both read through the same Mapper).
func NewSega32X(romData []byte, cfg Config) (*Sega32X, error) {
	region := cfg.RegionOverride
	if region == cart.RegionUnknown {
		detected, err := cart.DetectGenesisRegion(romData)
		if err != nil {
			return nil, fmt.Errorf("system: failed to detect region: %w", err)
		}
		region = detected
	}

	s := &Sega32X{cfg: cfg, region: region, flush: newFlushWorker()}
	s.mapper = genmappers.NewStandard(romData, 0x10000, 0x200000, 0x20FFFF)

	s.vdp = genesis.New(sega32xVDPDivider)
	s.vdp.SetRegion(region == cart.RegionPALEU)
	s.vdp.SetDeinterlace(cfg.Deinterlace)

	s.vdp32x = sega32x.New(sega32xVDPDivider)
	s.vdp32x.GenesisFrame = s.vdp.Frame

	s.fm = ym2612.New(genesisYM2612Divider)
	s.psg = sn76489.New(genesisPSGDivider, sn76489.Sega)
	s.pwm = pwm32x.New(sega32xPWMDivider)
	s.audioUnits = []audio.Unit{s.fm, s.psg, s.pwm}

	s.buildM68KBus()
	s.buildZ80Bus()
	s.buildSHBus(&s.shMasterBus, true)
	s.buildSHBus(&s.shSlaveBus, false)

	s.m68kCPU = m68k.New(s.m68kBus)
	s.m68kHost = cpu.NewHost("m68000", s.m68kCPU)
	s.vdp.RaiseIRQ = func(level int) { s.m68kCPU.AssertInterrupt(level) }
	s.vdp.StallCPU = func(d mclock.Tick) { s.m68kHost.Stall(s.m68kHost.Committed() + d) }
	s.vdp.Read68K = func(addr uint32) uint16 { return s.m68kBus.Read16(addr) }

	s.z80CPU = z80.New(s.z80Bus)
	s.z80Host = cpu.NewHost("z80", mcScaledDecoder{step: s.z80CPU.Step, ratio: mclock.Tick(genesisZ80Divider)})
	s.z80CPU.SetBusGranted(false)

	s.shMaster = sh2.New(s.shMasterBus, true)
	s.shMasterHost = cpu.NewHost("sh2-master", mcScaledDecoder{step: s.shMaster.Step, ratio: mclock.Tick(sega32xSH2Divider)})
	s.shSlave = sh2.New(s.shSlaveBus, false)
	s.shSlaveHost = cpu.NewHost("sh2-slave", mcScaledDecoder{step: s.shSlave.Step, ratio: mclock.Tick(sega32xSH2Divider)})

	s.vdp32x.OnFrame = func(f video.Frame) {
		if s.renderSink != nil {
			s.renderSink.Present(f)
		}
		s.shMaster.AssertInterrupt(sh2IRQVBlank)
		s.shSlave.AssertInterrupt(sh2IRQVBlank)
	}

	s.pwm.RaiseDREQ = func(ch int) {
		if s.pwmClockRef {
			s.shSlave.AssertInterrupt(sh2IRQPWM)
		} else {
			s.shMaster.AssertInterrupt(sh2IRQPWM)
		}
	}

	s.driver = clockdrv.New()
	s.driver.AddProcessor(s.m68kHost)
	s.driver.AddProcessor(s.z80Host)
	s.driver.AddProcessor(s.shMasterHost)
	s.driver.AddProcessor(s.shSlaveHost)
	s.driver.AddDevice(s.vdp)
	s.driver.AddDevice(s.vdp32x)
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.fm, divider: genesisYM2612Divider})
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.psg, divider: genesisPSGDivider})
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.pwm, divider: sega32xPWMDivider})

	return s, nil
}

// buildM68KBus extends the Genesis map's layout with the 32X's own
// windows: the frame-buffer access window, the system/communication
// register block, and the PWM ports, all addressed the way the real
// 32X's 68000-side memory map documents them.
func (s *Sega32X) buildM68KBus() {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "cart-rom", Start: 0x000000, End: 0x3FFFFF,
		Read:  s.mapper.Read,
		Write: s.mapper.Write,
	})
	m.AddRegion(bus.Region{
		Name: "work-ram", Start: 0xFF0000, End: 0xFFFFFF,
		Read:  func(addr uint32) uint8 { return s.workRAM[addr&0xFFFF] },
		Write: func(addr uint32, v uint8) { s.workRAM[addr&0xFFFF] = v },
	})
	m.AddRegion(vdpPortRegion(s.vdp, 0xC00000, 0xC0001F))
	m.AddRegion(bus.Region{
		Name: "z80-bus-request", Start: 0xA11100, End: 0xA11101,
		Read: func(addr uint32) uint8 {
			if s.z80BusRequested {
				return 0
			}
			return 1
		},
		Write: func(addr uint32, v uint8) { s.requestZ80Bus(v&0x01 != 0) },
	})
	m.AddRegion(bus.Region{
		Name: "z80-reset", Start: 0xA11200, End: 0xA11201,
		Write: func(addr uint32, v uint8) { s.resetZ80(v&0x01 == 0) },
	})
	m.AddRegion(bus.Region{
		Name: "ym2612-from-68k", Start: 0xA04000, End: 0xA04003,
		Read: func(addr uint32) uint8 {
			if s.fm.Busy() {
				return 0x80
			}
			return 0
		},
		Write: func(addr uint32, v uint8) {
			port := int((addr - 0xA04000) / 2)
			if (addr-0xA04000)%2 == 0 {
				s.fm.WriteAddr(port, v)
			} else {
				s.fm.WriteData(port, v)
			}
		},
	})
	m.AddRegion(bus.Region{
		Name: "32x-adapter-enable", Start: 0xA15100, End: 0xA15101,
		Read:  func(addr uint32) uint8 { return b2ByteSega(s.adapterEnabled) },
		Write: func(addr uint32, v uint8) { s.adapterEnabled = v&0x01 != 0 },
	})
	m.AddRegion(bus.Region{
		Name: "32x-int-control", Start: 0xA15102, End: 0xA15103,
		Read: func(addr uint32) uint8 {
			return b2ByteSega(s.intCmdTo68K)
		},
		Write: func(addr uint32, v uint8) { s.intCmdTo68K = v&0x01 != 0 },
	})
	m.AddRegion(bus.Region{
		Name: "32x-comm-ports", Start: 0xA15120, End: 0xA1512F,
		Read:  s.readCommPort,
		Write: s.writeCommPort,
	})
	m.AddRegion(bus.Region{
		Name: "32x-framebuffer", Start: 0x840000, End: 0x85FFFF,
		Read:  func(addr uint32) uint8 { return s.vdp32x.ReadFB(uint16(addr - 0x840000)) },
		Write: func(addr uint32, v uint8) { s.vdp32x.WriteFB(uint16(addr-0x840000), v) },
	})
	m.AddRegion(bus.Region{
		Name: "32x-vdp-regs", Start: 0xA15180, End: 0xA1518F,
		Write: func(addr uint32, v uint8) { s.write32XVDPReg(addr-0xA15180, v) },
	})
	m.AddRegion(bus.Region{
		Name: "32x-pwm", Start: 0xA15130, End: 0xA1513F,
		Write: func(addr uint32, v uint8) { s.writePWMReg(addr-0xA15130, v) },
	})
	s.m68kBus = m
}

func (s *Sega32X) buildZ80Bus() {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "z80-ram", Start: 0x0000, End: 0x1FFF,
		Read:  func(addr uint32) uint8 { return s.z80RAM[addr&0x1FFF] },
		Write: func(addr uint32, v uint8) { s.z80RAM[addr&0x1FFF] = v },
	})
	m.AddRegion(bus.Region{
		Name: "ym2612", Start: 0x4000, End: 0x4003,
		Read: func(addr uint32) uint8 {
			if s.fm.Busy() {
				return 0x80
			}
			return 0
		},
		Write: func(addr uint32, v uint8) {
			port := int((addr - 0x4000) / 2)
			if (addr-0x4000)%2 == 0 {
				s.fm.WriteAddr(port, v)
			} else {
				s.fm.WriteData(port, v)
			}
		},
	})
	m.AddRegion(bus.Region{
		Name: "psg", Start: 0x7F11, End: 0x7F11,
		Write: func(addr uint32, v uint8) { s.psg.Write(v) },
	})
	m.AddRegion(vdpPortRegion(s.vdp, 0x6000, 0x601F))
	s.z80Bus = m
}

// buildSHBus lays out an SH-2's own view: the cartridge ROM (the same
// Mapper the 68000 reads, since both sides address the same physical
// ROM chip), the shared 256KB SDRAM both SH-2s and the frame-buffer DMA
// engine can reach, the frame-buffer window, the VDP/PWM register
// blocks, and the communication ports — approximated at the same
// addresses for both SH-2s rather than each CPU's own distinct offset
// into the real hardware's asymmetric master/slave address decode, per
// this module's register-level (not bit-exact address-decode) fidelity
// tier.
func (s *Sega32X) buildSHBus(dst **bus.Map, master bool) {
	m := bus.NewMap()
	m.AddRegion(bus.Region{
		Name: "cart-rom", Start: 0x02000000, End: 0x023FFFFF,
		Read: func(addr uint32) uint8 { return s.mapper.Read(addr - 0x02000000) },
	})
	m.AddRegion(bus.Region{
		Name: "sdram", Start: 0x06000000, End: 0x0603FFFF,
		Read:  func(addr uint32) uint8 { return s.sdram[addr&0x3FFFF] },
		Write: func(addr uint32, v uint8) { s.sdram[addr&0x3FFFF] = v },
	})
	m.AddRegion(bus.Region{
		Name: "framebuffer", Start: 0x04000000, End: 0x0401FFFF,
		Read:  func(addr uint32) uint8 { return s.vdp32x.ReadFB(uint16(addr - 0x04000000)) },
		Write: func(addr uint32, v uint8) { s.vdp32x.WriteFB(uint16(addr-0x04000000), v) },
	})
	m.AddRegion(bus.Region{
		Name: "comm-ports", Start: 0x00004020, End: 0x0000402F,
		Read:  s.readCommPort,
		Write: s.writeCommPort,
	})
	m.AddRegion(bus.Region{
		Name: "vdp-regs", Start: 0x00004100, End: 0x0000410F,
		Write: func(addr uint32, v uint8) { s.write32XVDPReg(addr-0x00004100, v) },
	})
	m.AddRegion(bus.Region{
		Name: "pwm-regs", Start: 0x00004030, End: 0x0000403F,
		Write: func(addr uint32, v uint8) { s.writePWMReg(addr-0x00004030, v) },
	})
	*dst = m
}

func (s *Sega32X) readCommPort(addr uint32) uint8 {
	port := (addr % 0x10) / 2
	v := s.commPorts[port&7]
	if addr%2 == 0 {
		return uint8(v >> 8)
	}
	return uint8(v)
}

func (s *Sega32X) writeCommPort(addr uint32, v uint8) {
	port := (addr % 0x10) / 2
	cur := s.commPorts[port&7]
	if addr%2 == 0 {
		cur = (cur &^ 0xFF00) | uint16(v)<<8
	} else {
		cur = (cur &^ 0x00FF) | uint16(v)
	}
	s.commPorts[port&7] = cur
	if s.intCmdTo68K {
		s.m68kCPU.AssertInterrupt(2)
	}
	if s.intCmdMaster {
		s.shMaster.AssertInterrupt(sh2IRQCmd)
	}
	if s.intCmdSlave {
		s.shSlave.AssertInterrupt(sh2IRQCmd)
	}
}

// write32XVDPReg handles the 32X VDP's own register block: offset $00
// (mode/priority select) and offset $02 (the pwmClockRef field's
// PWM-reference-selection bit). Writes to any other offset, including the
// frame-buffer select and auto-fill length/address/data registers, are
// ignored; nothing on this path calls the VDP's BeginAutoFill.
func (s *Sega32X) write32XVDPReg(off uint32, v byte) {
	switch off {
	case 0x00:
		s.vdp32x.SetMode(int(v & 0x03))
		s.vdp32x.SetPriority(v&0x80 != 0)
	case 0x02:
		s.pwmClockRef = v&0x01 != 0
	}
}

func (s *Sega32X) writePWMReg(off uint32, v byte) {
	switch off {
	case 0x00:
		s.pwm.SetCycle(uint16(v))
	case 0x02:
		s.pwm.SetDREQEnable(0, v&0x01 != 0)
		s.pwm.SetDREQEnable(1, v&0x02 != 0)
	case 0x04:
		s.pwm.Push(0, int16(v)<<4)
	case 0x06:
		s.pwm.Push(1, int16(v)<<4)
	}
}

func b2ByteSega(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// SetSinks attaches the host's video/audio output; nil sinks are legal
// (headless smoke-test mode). The 32X's own composited frame (Genesis
// plane plus 32X frame buffer) is the one presented; the Genesis VDP's
// own OnFrame hook is left unset since its output only reaches the host
// through the composite.
func (s *Sega32X) SetSinks(render RenderSink, sample SampleSink) {
	s.renderSink = render
	s.sampleSink = sample
}

// RunFrame advances the combined machine by one Genesis video frame's
// worth of master-clock ticks and drains the mixed audio into the sample
// sink.
func (s *Sega32X) RunFrame() {
	linesPerFrame := mclock.Tick(262)
	if s.region == cart.RegionPALEU {
		linesPerFrame = 312
	}
	dotsPerLine := mclock.Tick(342)
	frameTicks := linesPerFrame * dotsPerLine * mclock.Tick(sega32xVDPDivider)

	target := s.driver.MC() + frameTicks
	s.driver.RunSlice(target)

	if s.sampleSink != nil {
		frame := mixUnits(s.audioUnits)
		s.sampleSink.Write(frame[:])
	}
}

// Frame exposes the most recently composited frame (32X layer over the
// Genesis VDP's own plane/sprite output) for headless smoke-testing.
func (s *Sega32X) Frame() video.Frame { return s.vdp32x.Frame() }

func (s *Sega32X) requestZ80Bus(requested bool) {
	s.z80BusRequested = requested
	s.driver.Schedule(s.driver.MC(), func() {
		s.z80CPU.SetBusGranted(!requested)
		s.z80Host.SetHalted(requested || s.z80Reset)
	})
}

func (s *Sega32X) resetZ80(held bool) {
	s.z80Reset = held
	s.driver.Schedule(s.driver.MC(), func() {
		s.z80Host.SetHalted(held || s.z80BusRequested)
		s.fm.AssertReset(held)
	})
}

// FlushSRAM queues the cartridge's battery-backed SRAM for a background
// write.
func (s *Sega32X) FlushSRAM(path string) {
	if sram := s.mapper.SRAM(); sram != nil {
		s.flush.FlushSRAM(path, sram)
	}
}

// Close waits for any in-flight background flushes to complete.
func (s *Sega32X) Close() error { return s.flush.Wait() }
