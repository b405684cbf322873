package sm83

import "testing"

type testBus struct {
	mem [0x10000]uint8
}

func (b *testBus) Read8(addr uint32) uint8         { return b.mem[addr&0xFFFF] }
func (b *testBus) Write8(addr uint32, value uint8) { b.mem[addr&0xFFFF] = value }
func (b *testBus) Read16(addr uint32) uint16 {
	return uint16(b.Read8(addr))<<8 | uint16(b.Read8(addr+1))
}
func (b *testBus) Write16(addr uint32, value uint16) {
	b.Write8(addr, uint8(value>>8))
	b.Write8(addr+1, uint8(value))
}

func TestNewSetsPostBIOSState(t *testing.T) {
	c := New(&testBus{})
	if c.PC != 0x0100 || c.SP != 0xFFFE || c.A != 0x01 || c.F != 0xB0 {
		t.Fatalf("New() = PC=%#x SP=%#x A=%#x F=%#x, want 0x0100/0xFFFE/0x01/0xB0", c.PC, c.SP, c.A, c.F)
	}
}

func TestStepLDAImmediate(t *testing.T) {
	b := &testBus{}
	b.mem[0x0100] = 0x3E
	b.mem[0x0101] = 0x42
	c := New(b)

	ticks := c.Step()

	if c.A != 0x42 {
		t.Fatalf("A = %#x, want 0x42", c.A)
	}
	if ticks != 8 {
		t.Fatalf("ticks = %d, want 8", ticks)
	}
}

func TestStepADDSetsCarryOnOverflow(t *testing.T) {
	b := &testBus{}
	b.mem[0x0100] = 0xC6
	b.mem[0x0101] = 0x01
	c := New(b)
	c.A = 0xFF

	c.Step()

	if c.A != 0x00 {
		t.Fatalf("A = %#x, want 0x00", c.A)
	}
	if c.F&flagC == 0 {
		t.Fatalf("carry flag should be set on overflow past 0xFF")
	}
	if c.F&flagZ == 0 {
		t.Fatalf("zero flag should be set when the result wraps to 0")
	}
}

func TestStepCPSetsZeroFlagOnEqual(t *testing.T) {
	b := &testBus{}
	b.mem[0x0100] = 0xFE
	b.mem[0x0101] = 0x01
	c := New(b)
	c.A = 0x01

	c.Step()

	if c.F&flagZ == 0 {
		t.Fatalf("zero flag should be set when A equals the compared value")
	}
}

func TestStepJRNZBranchesWhenZeroFlagClear(t *testing.T) {
	b := &testBus{}
	b.mem[0x0100] = 0x20
	b.mem[0x0101] = 0x05
	c := New(b)
	c.F &^= flagZ

	c.Step()

	if c.PC != 0x0107 { // PC is 0x0102 after fetching the offset, + 5
		t.Fatalf("PC = %#x, want 0x0107", c.PC)
	}
}

func TestStepJRNZDoesNotBranchWhenZeroFlagSet(t *testing.T) {
	b := &testBus{}
	b.mem[0x0100] = 0x20
	b.mem[0x0101] = 0x05
	c := New(b)
	c.F |= flagZ

	c.Step()

	if c.PC != 0x0102 {
		t.Fatalf("PC = %#x, want 0x0102 (no branch taken)", c.PC)
	}
}

func TestStepCALLPushesReturnAddressAndRETRestoresIt(t *testing.T) {
	b := &testBus{}
	b.mem[0x0100] = 0xCD
	b.mem[0x0101] = 0x00
	b.mem[0x0102] = 0x20
	b.mem[0x2000] = 0xC9
	c := New(b)

	c.Step() // CALL $2000
	if c.PC != 0x2000 {
		t.Fatalf("PC after CALL = %#x, want 0x2000", c.PC)
	}
	if c.SP != 0xFFFC {
		t.Fatalf("SP after CALL = %#x, want 0xFFFC", c.SP)
	}

	c.Step() // RET
	if c.PC != 0x0103 {
		t.Fatalf("PC after RET = %#x, want 0x0103", c.PC)
	}
	if c.SP != 0xFFFE {
		t.Fatalf("SP after RET = %#x, want 0xFFFE", c.SP)
	}
}

func TestStepServicesHighestPriorityInterruptWhenIMEEnabled(t *testing.T) {
	b := &testBus{}
	c := New(b)
	c.PC = 0x1234
	c.IME = true
	c.pendingInterrupts = 0x02
	c.enabledInterrupts = 0x02

	ticks := c.Step()

	if ticks != 20 {
		t.Fatalf("ticks = %d, want 20", ticks)
	}
	if c.PC != 0x48 {
		t.Fatalf("PC = %#x, want 0x48 (the STAT interrupt vector)", c.PC)
	}
	if c.IME {
		t.Fatalf("IME should be cleared once an interrupt is serviced")
	}
	if c.pendingInterrupts != 0 {
		t.Fatalf("pendingInterrupts = %#x, want 0 (the serviced bit cleared)", c.pendingInterrupts)
	}
	if c.SP != 0xFFFC {
		t.Fatalf("SP = %#x, want 0xFFFC after pushing PC", c.SP)
	}
	if b.mem[0xFFFC] != 0x34 || b.mem[0xFFFD] != 0x12 {
		t.Fatalf("pushed PC bytes = %#x,%#x, want 0x34,0x12", b.mem[0xFFFC], b.mem[0xFFFD])
	}
}

func TestStepWakesFromHaltOnPendingInterruptEvenWithIMEDisabled(t *testing.T) {
	c := New(&testBus{})
	c.halted = true
	c.IME = false
	c.pendingInterrupts = 0x01
	c.enabledInterrupts = 0x01
	startPC := c.PC

	ticks := c.Step()

	if c.halted {
		t.Fatalf("a pending enabled interrupt should wake the CPU from HALT even with IME disabled")
	}
	if ticks != 4 {
		t.Fatalf("ticks = %d, want 4 (a NOP fetch, since IME gates servicing)", ticks)
	}
	if c.PC != startPC+1 {
		t.Fatalf("PC = %#x, want %#x (one opcode fetched)", c.PC, startPC+1)
	}
}

func TestStepHaltedWithNoPendingInterruptStaysHalted(t *testing.T) {
	c := New(&testBus{})
	c.halted = true
	startPC := c.PC

	ticks := c.Step()

	if !c.halted {
		t.Fatalf("CPU should remain halted with no pending interrupt")
	}
	if ticks != 4 {
		t.Fatalf("ticks = %d, want 4", ticks)
	}
	if c.PC != startPC {
		t.Fatalf("PC = %#x, want %#x (no opcode fetched while halted)", c.PC, startPC)
	}
}

func TestStepSTOPTogglesDoubleSpeedWhenArmed(t *testing.T) {
	b := &testBus{}
	b.mem[0x0100] = 0x10
	b.mem[0x0101] = 0x00
	c := New(b)
	c.SpeedSwitchArmed = true

	c.Step()

	if !c.DoubleSpeed {
		t.Fatalf("DoubleSpeed should toggle on when SpeedSwitchArmed is set")
	}
	if c.SpeedSwitchArmed {
		t.Fatalf("SpeedSwitchArmed should be consumed by STOP")
	}
	if c.PC != 0x0102 {
		t.Fatalf("PC = %#x, want 0x0102 (opcode plus padding byte consumed)", c.PC)
	}
}
