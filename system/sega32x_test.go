package system

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
)

// minimal32XROM returns a cartridge image large enough to satisfy
// cart.DetectGenesisRegion and cart/genmappers.NewStandard, with the
// region field set to NTSC-US.
func minimal32XROM() []byte {
	rom := make([]byte, 0x10000)
	rom[0x1F0] = 'U'
	return rom
}

func TestNewSega32XConstructs(t *testing.T) {
	s, err := NewSega32X(minimal32XROM(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewSega32X: %v", err)
	}
	if s.shMaster == nil || s.shSlave == nil {
		t.Fatalf("expected both SH-2 CPUs to be constructed")
	}
}

func TestSega32XRunFrameAdvancesWithoutSinks(t *testing.T) {
	s, err := NewSega32X(minimal32XROM(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewSega32X: %v", err)
	}
	s.SetSinks(nil, nil)

	for i := 0; i < 2; i++ {
		s.RunFrame()
	}

	frame := s.Frame()
	if frame.Width == 0 || frame.Height == 0 {
		t.Fatalf("composited frame has zero dimension after RunFrame")
	}
}

func TestSega32XCommPortWriteRaisesInterrupts(t *testing.T) {
	s, err := NewSega32X(minimal32XROM(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewSega32X: %v", err)
	}
	s.intCmdMaster = true
	s.intCmdSlave = true

	s.writeCommPort(0xA15120, 0x12)
	s.writeCommPort(0xA15121, 0x34)

	if got := s.commPorts[0]; got != 0x1234 {
		t.Fatalf("commPorts[0] = %#x, want 0x1234", got)
	}
	// Both SH-2s had their command interrupt enabled, so each one's next
	// Step() services it.
	if ticks := s.shMaster.Step(); ticks != 8 {
		t.Fatalf("master Step() after comm write = %d ticks, want 8 (interrupt service)", ticks)
	}
	if ticks := s.shSlave.Step(); ticks != 8 {
		t.Fatalf("slave Step() after comm write = %d ticks, want 8 (interrupt service)", ticks)
	}
}

func TestSega32XPWMDrainRaisesSHInterrupt(t *testing.T) {
	s, err := NewSega32X(minimal32XROM(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewSega32X: %v", err)
	}
	s.pwm.SetDREQEnable(0, true)
	s.pwm.Push(0, 1000)

	// Draining the FIFO fires RaiseDREQ, wired in NewSega32X to assert an
	// interrupt on whichever SH-2 pwmClockRef currently selects (master,
	// by default); the CPU's next Step() services it rather than
	// executing the instruction at its current PC.
	s.pwm.StepTo(mclock.Tick(sega32xPWMDivider))

	if ticks := s.shMaster.Step(); ticks != 8 {
		t.Fatalf("Step() after PWM DREQ = %d ticks, want 8 (interrupt service)", ticks)
	}
}
