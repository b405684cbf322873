package vrc7

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
)

func TestWriteDataFnumLowAndHighBytes(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteAddr(0x10)
	v.WriteData(0x34) // low 8 bits
	v.WriteAddr(0x20)
	v.WriteData(0x0B) // bit0 = fnum bit8, bits1-3 = block
	if v.ch[0].fnum != 0x134 {
		t.Fatalf("fnum = %#x, want 0x134", v.ch[0].fnum)
	}
	if v.ch[0].block != 5 { // (0x0B>>1)&0x7 = 5
		t.Fatalf("block = %d, want 5", v.ch[0].block)
	}
}

func TestWriteDataKeyOnRisingEdgeTriggersChannel(t *testing.T) {
	v := New(mclock.Divider(1))
	v.ch[0].op[0].phase = 999
	v.ch[0].op[0].envLevel = 500
	v.WriteAddr(0x20)
	v.WriteData(0x10) // keyOn bit set
	if !v.ch[0].keyOn {
		t.Fatalf("keyOn should be set")
	}
	if v.ch[0].op[0].phase != 0 || v.ch[0].op[0].envLevel != 0 {
		t.Fatalf("a rising key-on edge should reset the channel's operators")
	}
}

func TestWriteDataKeyOffFallingEdgeEntersRelease(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteAddr(0x20)
	v.WriteData(0x10) // key on
	v.WriteData(0x00) // key off
	if v.ch[0].keyOn {
		t.Fatalf("keyOn should clear")
	}
	if v.ch[0].op[0].envMode != envRelease || v.ch[0].op[1].envMode != envRelease {
		t.Fatalf("a falling key-on edge should move both operators to envRelease")
	}
}

func TestWriteDataSustainBit(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteAddr(0x20)
	v.WriteData(0x20) // sustain bit set, key off
	if !v.ch[0].sustainOn {
		t.Fatalf("sustainOn should be set by bit 0x20")
	}
}

func TestWriteDataInstrumentAndVolume(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteAddr(0x30)
	v.WriteData(0x5C) // instrument 5, volume 0xC
	if v.ch[0].instrument != 5 {
		t.Fatalf("instrument = %d, want 5", v.ch[0].instrument)
	}
	if v.ch[0].volume != 0xC {
		t.Fatalf("volume = %#x, want 0xC", v.ch[0].volume)
	}
}

func TestWriteCustomAppliesToEveryChannel(t *testing.T) {
	v := New(mclock.Divider(1))
	v.WriteAddr(0x06)
	v.WriteData(0x2A) // totalLv register
	for i := range v.ch {
		if v.ch[i].custom.totalLv != 0x2A {
			t.Fatalf("channel %d custom.totalLv = %#x, want 0x2A (custom registers are global)", i, v.ch[i].custom.totalLv)
		}
	}
}

func TestActivePatchUsesCustomWhenInstrumentZero(t *testing.T) {
	v := New(mclock.Divider(1))
	v.ch[0].custom.totalLv = 42
	v.ch[0].instrument = 0
	p := v.activePatch(&v.ch[0])
	if p.totalLv != 42 {
		t.Fatalf("expected the custom patch, got totalLv=%d", p.totalLv)
	}
}

func TestActivePatchUsesBuiltInTableWhenInstrumentNonzero(t *testing.T) {
	v := New(mclock.Divider(1))
	v.ch[0].instrument = 2 // Guitar
	p := v.activePatch(&v.ch[0])
	if p.totalLv != builtInPatches[2].totalLv {
		t.Fatalf("expected builtInPatches[2], got totalLv=%d", p.totalLv)
	}
}

func TestFnumToStepShiftsByBlock(t *testing.T) {
	if got := fnumToStep(0x100, 2); got != 0x400 {
		t.Fatalf("fnumToStep(0x100, 2) = %#x, want 0x400", got)
	}
}

func TestStepOnceSkipsIdleChannel(t *testing.T) {
	v := New(mclock.Divider(1))
	// zero-value channel: keyOn false, op[0].envMode == envAttack (0) != envRelease
	v.stepOnce()
	if v.ch[0].op[0].phase != 0 {
		t.Fatalf("an idle channel's phase should not advance, got %d", v.ch[0].op[0].phase)
	}
}

func TestStepOnceAdvancesKeyedOnChannel(t *testing.T) {
	v := New(mclock.Divider(1))
	v.ch[0].keyOn = true
	v.ch[0].fnum = 0x100
	v.stepOnce()
	if v.ch[0].op[0].phase == 0 {
		t.Fatalf("a keyed-on channel's phase should advance")
	}
}

func TestAdvanceEnvelopeAttackSaturatesThenDecays(t *testing.T) {
	op := &operator{envMode: envAttack, envLevel: 0x3F0}
	advanceEnvelope(op, false)
	if op.envLevel != 0x3FF {
		t.Fatalf("envLevel should saturate at 0x3FF, got %#x", op.envLevel)
	}
	if op.envMode != envDecay {
		t.Fatalf("envMode should move to envDecay once saturated")
	}
}

func TestAdvanceEnvelopeDecayHoldsAtSustainFloorWithSustainOn(t *testing.T) {
	op := &operator{envMode: envDecay, envLevel: 0x201}
	advanceEnvelope(op, true)
	if op.envMode != envSustain {
		t.Fatalf("sustainOn should force a transition to envSustain")
	}
	if op.envLevel < 0x200 {
		t.Fatalf("envLevel should not be allowed below the sustain floor, got %#x", op.envLevel)
	}
}

func TestAdvanceEnvelopeReleaseClampsAtZero(t *testing.T) {
	op := &operator{envMode: envRelease, envLevel: 2}
	advanceEnvelope(op, false)
	if op.envLevel != 0 {
		t.Fatalf("envLevel = %d, want 0 (clamped)", op.envLevel)
	}
}

func TestSampleZeroWhenAllChannelsIdle(t *testing.T) {
	v := New(mclock.Divider(1))
	out := v.Sample()
	if len(out) != 1 {
		t.Fatalf("Sample() returned %d values, want 1 (mono)", len(out))
	}
	if out[0] != 0 {
		t.Fatalf("Sample() with all channels idle = %v, want 0", out[0])
	}
}

func TestSinApproxZeroAtZeroPhase(t *testing.T) {
	if got := sinApprox(0); got != 0 {
		t.Fatalf("sinApprox(0) = %v, want 0", got)
	}
}
