package snescoproc

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
)

func TestSuperFXRegisterWriteReadRoundTrip(t *testing.T) {
	s := NewSuperFX(nil)
	s.WriteReg(0x3000, 0x34) // R0 low byte
	s.WriteReg(0x3001, 0x12) // R0 high byte
	if got := s.ReadReg(0x3000); got != 0x34 {
		t.Fatalf("R0 low byte = %#x, want 0x34", got)
	}
	if got := s.ReadReg(0x3001); got != 0x12 {
		t.Fatalf("R0 high byte = %#x, want 0x12", got)
	}
}

func TestSuperFXGBitSelfClearsAfterBudget(t *testing.T) {
	s := NewSuperFX(nil)
	s.WriteReg(0x3030, 0x20) // set the G (go) bit
	if s.ReadReg(0x3030)&0x20 == 0 {
		t.Fatalf("G bit should be set immediately after the write")
	}
	s.RunUntil(mclock.Tick(s.runBudget))
	if s.ReadReg(0x3030)&0x20 != 0 {
		t.Fatalf("G bit should self-clear once the run budget is exhausted")
	}
}

func TestSA1ControlRegisterHaltsOnBit7Clear(t *testing.T) {
	s := NewSA1()
	s.WriteReg(0x2200, 0x80) // bit7 set -> running
	if s.Halted() {
		t.Fatalf("SA-1 should not be halted while the run bit is set")
	}
	s.WriteReg(0x2200, 0x00)
	if !s.Halted() {
		t.Fatalf("clearing the run bit should halt the SA-1 core")
	}
}

func TestDSP1ApproximatesVectorToAngle(t *testing.T) {
	d := NewDSP(1)
	d.WriteReg(0, 10)
	d.WriteReg(0, 20)
	d.WriteReg(0, 0)
	d.WriteReg(0, 0) // fourth byte triggers the approximated op
	if got := d.ReadReg(0); got&0x80 == 0 {
		t.Fatalf("status should report busy right after the command is queued")
	}

	d.RunUntil(1)
	if got := d.ReadReg(0); got&0x80 != 0 {
		t.Fatalf("status should report not-busy once RunUntil has run")
	}
	if out := d.ReadReg(1); out != 30 {
		t.Fatalf("approximated DSP-1 output = %d, want 30 (10+20)", out)
	}
}

func TestSDD1BankRegisters(t *testing.T) {
	s := NewSDD1(nil)
	s.WriteReg(0x4804, 3)
	s.WriteReg(0x4807, 7)
	if got := s.ReadReg(0x4804); got != 3 {
		t.Fatalf("bank register 0 = %d, want 3", got)
	}
	if got := s.ReadReg(0x4807); got != 7 {
		t.Fatalf("bank register 3 = %d, want 7", got)
	}
}

func TestSPC7110DataPortAndRTC(t *testing.T) {
	c := NewSPC7110()
	c.WriteReg(0x4810, 0x55)
	c.WriteReg(0x4840, 0x09)
	if got := c.ReadReg(0x4810); got != 0x55 {
		t.Fatalf("data port byte = %#x, want 0x55", got)
	}
	if got := c.ReadReg(0x4840); got != 0x09 {
		t.Fatalf("RTC digit = %#x, want 0x09", got)
	}
}

func TestST01xEchoesOutputQueue(t *testing.T) {
	s := NewST01x()
	s.WriteReg(0, 5)
	s.output = append(s.output, 42)
	if got := s.ReadReg(0); got != 42 {
		t.Fatalf("ST01x output = %d, want 42", got)
	}
	if len(s.output) != 0 {
		t.Fatalf("ReadReg should dequeue the output value")
	}
}

func TestCX4RAMAndTrigger(t *testing.T) {
	c := NewCX4()
	c.WriteReg(0x0010, 0x77)
	if got := c.ReadReg(0x0010); got != 0x77 {
		t.Fatalf("CX4 RAM byte = %#x, want 0x77", got)
	}
	c.WriteReg(0x0CFF, 1) // trigger address
	if !c.running {
		t.Fatalf("expected the trigger write to start the Cx4 run budget")
	}
}

func TestSRTCModeResetAndDigitSequence(t *testing.T) {
	r := NewSRTC()
	r.WriteReg(0x2800, 0) // mode select, resets the digit index
	r.WriteReg(0x2801, 0x09)
	r.WriteReg(0x2801, 0x03)
	r.WriteReg(0x2800, 0) // reset index again before reading back
	if got := r.ReadReg(0x2801); got != 0x09 {
		t.Fatalf("first digit = %#x, want 0x09", got)
	}
	if got := r.ReadReg(0x2801); got != 0x03 {
		t.Fatalf("second digit = %#x, want 0x03", got)
	}
}
