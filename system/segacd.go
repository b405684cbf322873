package system

import (
	"fmt"

	"github.com/retrocore/retrocore/audio"
	"github.com/retrocore/retrocore/audio/rf5c164"
	"github.com/retrocore/retrocore/audio/sn76489"
	"github.com/retrocore/retrocore/audio/ym2612"
	"github.com/retrocore/retrocore/bus"
	"github.com/retrocore/retrocore/cart"
	"github.com/retrocore/retrocore/cdrom"
	"github.com/retrocore/retrocore/clockdrv"
	"github.com/retrocore/retrocore/cpu"
	"github.com/retrocore/retrocore/cpu/m68k"
	"github.com/retrocore/retrocore/cpu/z80"
	"github.com/retrocore/retrocore/mclock"
	"github.com/retrocore/retrocore/video"
	"github.com/retrocore/retrocore/video/genesis"
)

// Sega CD clock dividers and rates. The sub-68000 needs no extra divider:
// cpu/m68k's Step already returns ticks in the MC domain directly
// (system/genesis.go's own 68000 host is wired the same direct way), so
// both 68000s run at the same rate without an mcScaledDecoder wrapper. The
// RF5C164 PCM chip runs at a fixed divider off that same domain, per
// the PCM unit description.
const (
	segaCDPCMDivider mclock.Divider = 384

	// segaCDMCPerSecond is the NTSC master-clock rate System Core wiring
	// uses to convert cdrom.Image's wall-clock SeekLatency into MC ticks,
	// matching the same crystal genesisM68KDivider is derived from.
	segaCDMCPerSecond = 53693175

	prgRAMLen    = 512 * 1024
	wordRAMLen   = 256 * 1024
	backupRAMLen = 8 * 1024
)

// SegaCD is the Sega CD System Core: the Genesis base (68000 + Z80 + VDP +
// YM2612 + SN76489) plus the Sega CD expansion's sub-68000, banked Program
// RAM, shared Word RAM, the RF5C164 PCM chip, a CD drive (cdrom.Image) and
// its gate-array register file, and battery-backed internal backup RAM.
//
// Grounded on system/genesis.go's multi-processor composition, extended
// with a second cpu.Host the way system/sega32x.go added its pair of
// SH-2 hosts; the gate array's register file is this module's own
// register-level (not bit-exact timing) model of segacd-core's
// SegaCdRegisters, per the coprocessor-fidelity tier.
type SegaCD struct {
	cfg Config

	driver *clockdrv.Driver

	mainHost *cpu.Host
	mainCPU  *m68k.CPU
	mainBus  *bus.Map

	subHost *cpu.Host
	subCPU  *m68k.CPU
	subBus  *bus.Map

	z80Host *cpu.Host
	z80CPU  *z80.CPU
	z80Bus  *bus.Map

	vdp *genesis.VDP
	fm  *ym2612.YM2612
	psg *sn76489.PSG
	pcm *rf5c164.PCM

	bios []byte
	disc *cdrom.Image

	region cart.Region

	workRAM   [0x10000]byte
	z80RAM    [0x2000]byte
	prgRAM    [prgRAMLen]byte
	wordRAM   [wordRAMLen]byte
	backupRAM [backupRAMLen]byte

	z80BusRequested bool
	z80Reset        bool

	gate segaCDGateArray

	cdd segaCDDrive

	renderSink RenderSink
	sampleSink SampleSink
	audioUnits []audio.Unit

	flush *flushWorker
}

// segaCDGateArray models the $A12000 (main CPU view) / $FF8000 (sub CPU
// view) shared register file: the same backing fields, addressed through
// two different byte offsets depending on which CPU's bus region reaches
// them.
type segaCDGateArray struct {
	subCPUBusReq bool
	subCPUReset  bool
	ledGreen     bool
	ledRed       bool

	prgRAMWriteProtect byte
	prgRAMBank         byte

	hInterruptVector uint16

	mainCommFlags byte
	subCommFlags  byte
	commCommands  [8]uint16
	commStatuses  [8]uint16

	timerCounter  byte
	timerInterval byte

	cddInterruptEnabled   bool
	cdcInterruptEnabled   bool
	timerInterruptEnabled bool
}

// segaCDDrive is a simplified CDD/CDC model: enough register-visible state
// to satisfy the read_sector/play_audio/seek-latency testable
// properties without reproducing the real gate array's full subcode and
// buffer-manager state machine.
type segaCDDrive struct {
	image *cdrom.Image

	playing    bool
	currentLBA int
	targetLBA  int
	endLBA     int

	seekDeadlineMC mclock.Tick
	seeking        bool

	dataReady bool
	dataPtr   int
	sector    [2352]byte

	command [10]byte
	status  [10]byte
}

// NewSegaCD constructs a Sega CD System Core. bios is the 128KB (or
// region-appropriate) Sega CD BIOS image; disc may be nil for a
// BIOS-only/no-disc boot (the BIOS's own CD-check boot menu).
func NewSegaCD(bios []byte, disc *cdrom.Image, cfg Config) (*SegaCD, error) {
	if len(bios) == 0 {
		return nil, fmt.Errorf("system: Sega CD requires a BIOS image")
	}

	region := cfg.RegionOverride
	if region == cart.RegionUnknown {
		region = cart.RegionNTSCUS
	}

	s := &SegaCD{cfg: cfg, bios: bios, disc: disc, region: region, flush: newFlushWorker()}
	s.gate.subCPUBusReq = true
	s.gate.subCPUReset = true
	s.cdd.image = disc

	s.vdp = genesis.New(genesisDotDivider)
	s.vdp.SetRegion(region == cart.RegionPALEU)
	s.vdp.SetDeinterlace(cfg.Deinterlace)

	s.fm = ym2612.New(genesisYM2612Divider)
	mode := ym2612.BusyFixedCycle
	if cfg.YM2612BusyMode == 1 {
		mode = ym2612.BusyAlwaysClear
	}
	s.fm.SetBusyMode(mode)
	s.psg = sn76489.New(genesisPSGDivider, sn76489.Sega)
	s.pcm = rf5c164.New(segaCDPCMDivider)
	if cfg.AudioInterpolation != 0 {
		s.pcm.SetInterpolation(cfg.AudioInterpolation)
	}
	s.audioUnits = []audio.Unit{s.fm, s.psg, s.pcm}

	s.buildMainBus()
	s.buildSubBus()
	s.buildZ80Bus()

	s.mainCPU = m68k.New(s.mainBus)
	s.mainHost = cpu.NewHost("m68000-main", s.mainCPU)
	s.vdp.RaiseIRQ = func(level int) { s.mainCPU.AssertInterrupt(level) }
	s.vdp.StallCPU = func(d mclock.Tick) { s.mainHost.Stall(s.mainHost.Committed() + d) }
	s.vdp.Read68K = func(addr uint32) uint16 { return s.mainBus.Read16(addr) }

	s.subCPU = m68k.New(s.subBus)
	s.subHost = cpu.NewHost("m68000-sub", s.subCPU)
	s.subHost.SetHalted(true)

	s.z80CPU = z80.New(s.z80Bus)
	s.z80Host = cpu.NewHost("z80", mcScaledDecoder{step: s.z80CPU.Step, ratio: mclock.Tick(genesisZ80Divider)})
	s.z80CPU.SetBusGranted(false)

	s.driver = clockdrv.New()
	s.driver.AddProcessor(s.mainHost)
	s.driver.AddProcessor(s.subHost)
	s.driver.AddProcessor(s.z80Host)
	s.driver.AddDevice(s.vdp)
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.fm, divider: genesisYM2612Divider})
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.psg, divider: genesisPSGDivider})
	s.driver.AddDevice(&audioDeviceAdapter{unit: s.pcm, divider: segaCDPCMDivider})

	return s, nil
}

// buildMainBus lays out the main 68000's view: the BIOS at $000000 (the
// Sega CD has no cartridge ROM slot in play; the BIOS takes the role the
// cartridge plays on a bare Genesis), the 128KB PRG RAM bank window, Word
// RAM, work RAM, the VDP ports, the Z80 bus-arbitration pair, YM2612, and
// the gate array's $A12000 register block.
func (s *SegaCD) buildMainBus() {
	m := bus.NewMap()

	m.AddRegion(bus.Region{
		Name: "bios", Start: 0x000000, End: 0x01FFFF,
		Read: func(addr uint32) uint8 {
			if int(addr) < len(s.bios) {
				return s.bios[addr]
			}
			return 0
		},
	})
	m.AddRegion(bus.Region{
		Name: "prg-ram-window", Start: 0x020000, End: 0x03FFFF,
		Read:  func(addr uint32) uint8 { return s.prgRAM[s.gate.prgRAMAddr(addr-0x020000)] },
		Write: func(addr uint32, v uint8) { s.writePRGRAM(s.gate.prgRAMAddr(addr-0x020000), v) },
	})
	m.AddRegion(bus.Region{
		Name: "word-ram", Start: 0x200000, End: 0x23FFFF,
		Read:  func(addr uint32) uint8 { return s.wordRAM[addr&0x3FFFF] },
		Write: func(addr uint32, v uint8) { s.wordRAM[addr&0x3FFFF] = v },
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
		Name: "ym2612-from-main", Start: 0xA04000, End: 0xA04003,
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
		Name: "gate-array-main", Start: 0xA12000, End: 0xA1203F,
		Read:  func(addr uint32) uint8 { return s.readGateArray(addr - 0xA12000) },
		Write: func(addr uint32, v uint8) { s.writeGateArray(addr-0xA12000, v) },
	})
	s.mainBus = m
}

// buildSubBus lays out the sub-68000's view: the full unbanked 512KB PRG
// RAM, Word RAM, internal backup RAM, the PCM chip's register file, and
// the gate array's $FF8000 mirror of the same registers buildMainBus
// exposes at $A12000.
func (s *SegaCD) buildSubBus() {
	m := bus.NewMap()

	m.AddRegion(bus.Region{
		Name: "prg-ram", Start: 0x000000, End: 0x07FFFF,
		Read:  func(addr uint32) uint8 { return s.prgRAM[addr] },
		Write: func(addr uint32, v uint8) { s.writePRGRAM(addr, v) },
	})
	m.AddRegion(bus.Region{
		Name: "word-ram-sub", Start: 0x080000, End: 0x0BFFFF,
		Read:  func(addr uint32) uint8 { return s.wordRAM[(addr-0x080000)&0x3FFFF] },
		Write: func(addr uint32, v uint8) { s.wordRAM[(addr-0x080000)&0x3FFFF] = v },
	})
	m.AddRegion(bus.Region{
		Name: "backup-ram", Start: 0xFE0000, End: 0xFE1FFF,
		Read:  func(addr uint32) uint8 { return s.backupRAM[addr&0x1FFF] },
		Write: func(addr uint32, v uint8) { s.backupRAM[addr&0x1FFF] = v },
	})
	m.AddRegion(bus.Region{
		Name: "pcm", Start: 0xFF0000, End: 0xFF001F,
		Write: func(addr uint32, v uint8) { s.writePCM(addr-0xFF0000, v) },
	})
	m.AddRegion(bus.Region{
		Name: "gate-array-sub", Start: 0xFF8000, End: 0xFF804B,
		Read:  func(addr uint32) uint8 { return s.readGateArray(addr - 0xFF8000) },
		Write: func(addr uint32, v uint8) { s.writeGateArray(addr-0xFF8000, v) },
	})
	s.subBus = m
}

// buildZ80Bus is identical to system/genesis.go's own: the Sega CD's
// expansion leaves the base Z80/PSG/YM2612 sound path untouched.
func (s *SegaCD) buildZ80Bus() {
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

// prgRAMAddr maps a main-CPU 128KB-window-relative offset into the full
// 512KB PRG RAM through the currently selected bank.
func (g *segaCDGateArray) prgRAMAddr(windowOffset uint32) uint32 {
	return (uint32(g.prgRAMBank)&0x3)<<17 | (windowOffset & 0x1FFFF)
}

// writePRGRAM honors the gate array's write-protect boundary: bytes below
// prgRAMWriteProtect*0x200 are read-only to both CPUs (the main CPU's bank
// window and the sub-CPU's unbanked view both write through here),
// matching the BIOS's own PRG RAM save-data protection convention.
func (s *SegaCD) writePRGRAM(addr uint32, v byte) {
	if addr < uint32(s.gate.prgRAMWriteProtect)*0x200 {
		return
	}
	s.prgRAM[addr&(prgRAMLen-1)] = v
}

func (s *SegaCD) writePCM(off uint32, v byte) {
	switch off {
	case 0x00:
		s.pcm.SelectChannel(int(v))
	case 0x02:
		s.pcm.WriteEnv(v)
	case 0x04:
		s.pcm.WritePan(v)
	case 0x06:
		s.pcm.WriteStepLow(v)
	case 0x08:
		s.pcm.WriteStepHigh(v)
	case 0x0A:
		s.pcm.WriteLoopLow(v)
	case 0x0C:
		s.pcm.WriteLoopHigh(v)
	case 0x0E:
		s.pcm.WriteStart(v)
	case 0x10:
		s.pcm.SetChannelEnable(v&0x80 == 0)
	}
}

// readGateArray/writeGateArray implement the shared register file both
// CPUs' buses dispatch into (offsets here are relative to each CPU's own
// base address, $A12000 or $FF8000).
func (s *SegaCD) readGateArray(off uint32) byte {
	switch off {
	case 0x00:
		var v byte
		if s.gate.subCPUBusReq {
			v |= 0x02
		}
		if s.gate.subCPUReset {
			v |= 0x01
		}
		if s.gate.ledGreen {
			v |= 0x02 << 6
		}
		return v
	case 0x02:
		return s.gate.prgRAMWriteProtect<<3 | s.gate.prgRAMBank&0x3
	case 0x0E:
		return s.gate.mainCommFlags
	case 0x0F:
		return s.gate.subCommFlags
	case 0x30:
		return s.gate.timerCounter
	case 0x04: // CDC status: bit 0 signals a decoded sector is ready to stream
		if s.cdd.dataReady {
			return 0x01
		}
		return 0
	case 0x08: // CDC data port: streams the current sector's bytes in order
		if !s.cdd.dataReady || s.cdd.dataPtr >= len(s.cdd.sector) {
			return 0
		}
		v := s.cdd.sector[s.cdd.dataPtr]
		s.cdd.dataPtr++
		if s.cdd.dataPtr >= len(s.cdd.sector) {
			s.cdd.dataReady = false
			s.cdd.dataPtr = 0
		}
		return v
	default:
		if off >= 0x10 && off < 0x20 {
			i := (off - 0x10) / 2
			word := s.gate.commCommands[i]
			if off%2 == 0 {
				return byte(word >> 8)
			}
			return byte(word)
		}
		if off >= 0x20 && off < 0x30 {
			i := (off - 0x20) / 2
			word := s.gate.commStatuses[i]
			if off%2 == 0 {
				return byte(word >> 8)
			}
			return byte(word)
		}
		if off >= 0x42 && off < 0x4C {
			return s.cdd.command[off-0x42]
		}
		if off >= 0x38 && off < 0x42 {
			return s.cdd.status[off-0x38]
		}
	}
	return 0
}

func (s *SegaCD) writeGateArray(off uint32, v byte) {
	switch off {
	case 0x00:
		s.setSubCPUBusReq(v&0x02 != 0)
		s.setSubCPUReset(v&0x01 == 0)
		s.gate.ledGreen = v&(0x02<<6) != 0
		s.gate.ledRed = v&(0x01<<6) != 0
	case 0x02:
		s.gate.prgRAMWriteProtect = (v >> 3) & 0x1F
		s.gate.prgRAMBank = v & 0x3
	case 0x06:
		s.gate.hInterruptVector = uint16(v)
	case 0x0E:
		s.gate.mainCommFlags = v
	case 0x0F:
		s.gate.subCommFlags = v
	case 0x30:
		s.gate.timerInterval = v
		s.gate.timerCounter = v
	case 0x32:
		s.gate.cddInterruptEnabled = v&0x04 != 0
		s.gate.cdcInterruptEnabled = v&0x02 != 0
		s.gate.timerInterruptEnabled = v&0x40 != 0
	default:
		switch {
		case off >= 0x10 && off < 0x20:
			i := (off - 0x10) / 2
			if off%2 == 0 {
				s.gate.commCommands[i] = uint16(v)<<8 | s.gate.commCommands[i]&0xFF
			} else {
				s.gate.commCommands[i] = s.gate.commCommands[i]&0xFF00 | uint16(v)
			}
		case off >= 0x20 && off < 0x30:
			i := (off - 0x20) / 2
			if off%2 == 0 {
				s.gate.commStatuses[i] = uint16(v)<<8 | s.gate.commStatuses[i]&0xFF
			} else {
				s.gate.commStatuses[i] = s.gate.commStatuses[i]&0xFF00 | uint16(v)
			}
		case off >= 0x42 && off < 0x4C:
			s.cdd.command[off-0x42] = v
			if off == 0x4B {
				s.issueCDDCommand()
			}
		}
	}
}

// setSubCPUBusReq implements the $A12000 BUSREQ bit: the main CPU can
// halt the sub-CPU and access PRG RAM through the bank window itself,
// the same rendezvous pattern system/genesis.go's requestZ80Bus uses for
// the Z80.
func (s *SegaCD) setSubCPUBusReq(requested bool) {
	s.gate.subCPUBusReq = requested
	if s.driver == nil {
		return
	}
	s.driver.Schedule(s.driver.MC(), func() {
		s.subHost.SetHalted(requested || s.gate.subCPUReset)
	})
}

// setSubCPUReset implements the $A12000 RESET bit.
func (s *SegaCD) setSubCPUReset(held bool) {
	wasReset := s.gate.subCPUReset
	s.gate.subCPUReset = held
	if s.driver == nil {
		return
	}
	s.driver.Schedule(s.driver.MC(), func() {
		if wasReset && !held {
			s.subCPU.Reset()
		}
		s.subHost.SetHalted(held || s.gate.subCPUBusReq)
	})
}

// issueCDDCommand dispatches the 10-byte CDD command buffer the sub-CPU
// just latched. A Play/Seek command schedules the drive's first-sector-
// ready deadline, the drive's minimum-seek-time floor, in the future,
// converted from cdrom.Image's wall-clock SeekLatency into this core's MC
// domain.
func (s *SegaCD) issueCDDCommand() {
	if s.cdd.image == nil {
		return
	}
	switch s.cdd.command[0] & 0x0F {
	case 0x3: // Play
		lba := int(s.cdd.command[2])<<16 | int(s.cdd.command[3])<<8 | int(s.cdd.command[4])
		s.cdd.targetLBA = lba
		s.cdd.endLBA = int(s.cdd.command[5])<<16 | int(s.cdd.command[6])<<8 | int(s.cdd.command[7])
		s.beginSeek()
	case 0x4: // Seek (no playback)
		lba := int(s.cdd.command[2])<<16 | int(s.cdd.command[3])<<8 | int(s.cdd.command[4])
		s.cdd.targetLBA = lba
		s.cdd.playing = false
		s.beginSeek()
	case 0x8: // Stop
		s.cdd.playing = false
		s.cdd.seeking = false
	}
}

// updateCDDStatus refreshes the 10-byte CDD status buffer software polls
// after issuing a command: byte 0 is the drive status code (Sony/Sega CDD
// convention: 0x2 playing, 0x3 seeking, 0x9 stopped), bytes 2-4 the
// current absolute LBA, matching the real drive's status-report layout
// closely enough for this module's register-visible model.
func (s *SegaCD) updateCDDStatus() {
	switch {
	case s.cdd.seeking:
		s.cdd.status[0] = 0x3
	case s.cdd.playing:
		s.cdd.status[0] = 0x2
	default:
		s.cdd.status[0] = 0x9
	}
	s.cdd.status[2] = byte(s.cdd.currentLBA >> 16)
	s.cdd.status[3] = byte(s.cdd.currentLBA >> 8)
	s.cdd.status[4] = byte(s.cdd.currentLBA)
}

func (s *SegaCD) beginSeek() {
	latency := s.cdd.image.SeekLatency(s.cdd.targetLBA)
	ticks := mclock.Tick(latency.Seconds() * segaCDMCPerSecond)
	s.cdd.seeking = true
	s.cdd.seekDeadlineMC = s.driver.MC() + ticks
}

// pollCDD is called once per RunFrame to land a completed seek and raise
// the CDD interrupt, since the drive's own sector-boundary timing is
// model-level rather than a clockdrv.Device stepped every tick.
func (s *SegaCD) pollCDD() {
	if !s.cdd.seeking {
		return
	}
	if s.driver.MC() < s.cdd.seekDeadlineMC {
		return
	}
	s.cdd.seeking = false
	s.cdd.currentLBA = s.cdd.targetLBA
	s.cdd.playing = s.cdd.command[0]&0x0F == 0x3
	s.updateCDDStatus()
	sector, err := s.cdd.image.ReadSector(s.cdd.currentLBA)
	if err == nil {
		s.cdd.sector = sector
		s.cdd.dataReady = true
		s.cdd.dataPtr = 0
		if s.gate.cdcInterruptEnabled && !s.subHost.Halted() {
			s.subCPU.AssertInterrupt(5)
		}
	}
	if s.gate.cddInterruptEnabled {
		s.mainCPU.AssertInterrupt(4)
		if !s.subHost.Halted() {
			s.subCPU.AssertInterrupt(4)
		}
	}
	// Advance to the next sector of an in-progress Play range so repeated
	// polling streams audio/data sectors rather than re-reading the same
	// one; once past endLBA the drive falls idle, matching CDD "Play"
	// completing without an explicit Stop command.
	if s.cdd.playing {
		if s.cdd.currentLBA >= s.cdd.endLBA {
			s.cdd.playing = false
			return
		}
		s.cdd.targetLBA = s.cdd.currentLBA + 1
		s.beginSeek()
	}
}

// tickTimer decrements the $FF8030 general-purpose stopwatch once per
// frame: a coarse approximation of the real TIMER_DIVIDER-gated per-cycle
// countdown, reloading from timerInterval and raising the sub-CPU's timer
// interrupt on underflow.
func (s *SegaCD) tickTimer() {
	if s.gate.timerInterval == 0 {
		return
	}
	if s.gate.timerCounter == 0 {
		s.gate.timerCounter = s.gate.timerInterval
		if s.gate.timerInterruptEnabled && !s.subHost.Halted() {
			s.subCPU.AssertInterrupt(3)
		}
		return
	}
	s.gate.timerCounter--
}

// SetSinks attaches the host's video/audio output; nil sinks are legal
// (headless smoke-test mode).
func (s *SegaCD) SetSinks(render RenderSink, sample SampleSink) {
	s.renderSink = render
	s.sampleSink = sample
	if render != nil {
		s.vdp.OnFrame = render.Present
	}
}

// RunFrame advances the Sega CD by one video frame's worth of master-clock
// ticks, polls the CD drive's seek model, and drains mixed audio into the
// sample sink.
func (s *SegaCD) RunFrame() {
	linesPerFrame := mclock.Tick(262)
	if s.region == cart.RegionPALEU {
		linesPerFrame = 312
	}
	dotsPerLine := mclock.Tick(342)
	frameTicks := linesPerFrame * dotsPerLine * mclock.Tick(genesisDotDivider)

	target := s.driver.MC() + frameTicks
	s.driver.RunSlice(target)
	s.pollCDD()
	s.tickTimer()

	if s.sampleSink != nil {
		frame := mixUnits(s.audioUnits)
		s.sampleSink.Write(frame[:])
	}
}

// Frame exposes the most recently completed VDP frame buffer for headless
// smoke-testing (cmd/retrocore's frame-hash mode).
func (s *SegaCD) Frame() video.Frame { return s.vdp.Frame() }

func (s *SegaCD) requestZ80Bus(requested bool) {
	s.z80BusRequested = requested
	s.driver.Schedule(s.driver.MC(), func() {
		s.z80CPU.SetBusGranted(!requested)
		s.z80Host.SetHalted(requested || s.z80Reset)
	})
}

func (s *SegaCD) resetZ80(held bool) {
	s.z80Reset = held
	s.driver.Schedule(s.driver.MC(), func() {
		s.z80Host.SetHalted(held || s.z80BusRequested)
		s.fm.AssertReset(held)
	})
}

// FlushSRAM queues the internal battery-backed backup RAM for a background
// write, the same persistence path cartridge SRAM uses elsewhere in this
// module: the Sega CD's internal backup RAM is treated as the same
// persistence concern as cartridge SRAM.
func (s *SegaCD) FlushSRAM(path string) {
	s.flush.FlushSRAM(path, s.backupRAM[:])
}

// LoadBackupRAM installs a previously flushed backup RAM image, e.g. read
// from the path FlushSRAM writes to at session start.
func (s *SegaCD) LoadBackupRAM(data []byte) {
	n := copy(s.backupRAM[:], data)
	for i := n; i < len(s.backupRAM); i++ {
		s.backupRAM[i] = 0
	}
}

// Close waits for any in-flight background flushes to complete.
func (s *SegaCD) Close() error { return s.flush.Wait() }
