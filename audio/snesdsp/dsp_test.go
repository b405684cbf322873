package snesdsp

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
)

func TestWriteVoiceSetsPitchAcrossTwoRegisters(t *testing.T) {
	d := New(mclock.Divider(1))
	d.WriteVoice(0, 2, 0x34) // PITCHL
	d.WriteVoice(0, 3, 0x05) // PITCHH, top 2 bits of the byte ignored
	if d.voices[0].pitch != 0x534 {
		t.Fatalf("pitch = %#x, want 0x534", d.voices[0].pitch)
	}
}

func TestWriteVoiceVolumeAndSRCN(t *testing.T) {
	d := New(mclock.Divider(1))
	d.WriteVoice(1, 0, 0x60)
	d.WriteVoice(1, 1, 0x9A) // negative as int8
	d.WriteVoice(1, 4, 7)
	if d.voices[1].volL != 0x60 {
		t.Fatalf("volL = %d, want 0x60", d.voices[1].volL)
	}
	if d.voices[1].volR != -102 { // 0x9A as a signed byte
		t.Fatalf("volR = %d, want %d", d.voices[1].volR, -102)
	}
	if d.voices[1].srcn != 7 {
		t.Fatalf("srcn = %d, want 7", d.voices[1].srcn)
	}
}

func TestKeyOnReadsSampleDirectoryEntry(t *testing.T) {
	d := New(mclock.Divider(1))
	d.SetDirPage(0x02) // dirPage = 0x0200
	d.voices[0].srcn = 1
	entry := d.dirPage + 1*4
	d.RAM[entry] = 0x00
	d.RAM[entry+1] = 0x10 // startAddr = 0x1000
	d.RAM[entry+2] = 0x00
	d.RAM[entry+3] = 0x20 // loopAddr = 0x2000

	d.KeyOn(0x01)
	v := &d.voices[0]
	if !v.enabled {
		t.Fatalf("KeyOn should enable the selected voice")
	}
	if v.envMode != envAttack {
		t.Fatalf("envMode after KeyOn = %d, want envAttack", v.envMode)
	}
	if v.brrAddr != 0x1000 {
		t.Fatalf("brrAddr = %#x, want 0x1000", v.brrAddr)
	}
	if v.loopAddr != 0x2000 {
		t.Fatalf("loopAddr = %#x, want 0x2000", v.loopAddr)
	}
}

func TestKeyOffMovesSelectedVoiceToRelease(t *testing.T) {
	d := New(mclock.Divider(1))
	d.voices[2].enabled = true
	d.voices[2].envMode = envSustain
	d.KeyOff(0x04)
	if d.voices[2].envMode != envRelease {
		t.Fatalf("envMode after KeyOff = %d, want envRelease", d.voices[2].envMode)
	}
}

func TestWriteRegDispatchesVoiceRegistersByRow(t *testing.T) {
	d := New(mclock.Divider(1))
	d.WriteReg(0x14, 0x7F) // voice 1, reg 4 (SRCN)
	if d.voices[1].srcn != 0x7F {
		t.Fatalf("srcn via WriteReg = %#x, want 0x7F", d.voices[1].srcn)
	}
}

func TestWriteRegMasterVolumeAndEchoFeedback(t *testing.T) {
	d := New(mclock.Divider(1))
	d.WriteReg(0x0C, 0x40)
	d.WriteReg(0x1C, 0xF6) // -10 as a signed byte
	d.WriteReg(0x0D, 0xEC) // -20 as a signed byte
	if d.masterVolL != 0x40 {
		t.Fatalf("masterVolL = %d, want 0x40", d.masterVolL)
	}
	if d.masterVolR != -10 {
		t.Fatalf("masterVolR = %d, want -10", d.masterVolR)
	}
	if d.echoFeedback != -20 {
		t.Fatalf("echoFeedback = %d, want -20", d.echoFeedback)
	}
}

func TestWriteRegKeyOnAndKeyOff(t *testing.T) {
	d := New(mclock.Divider(1))
	d.WriteReg(0x4C, 0x01)
	if !d.voices[0].enabled {
		t.Fatalf("writing KON should enable voice 0")
	}
	d.WriteReg(0x5C, 0x01)
	if d.voices[0].envMode != envRelease {
		t.Fatalf("writing KOFF should move voice 0 to release")
	}
}

func TestWriteRegENDXClearsAfterLatching(t *testing.T) {
	d := New(mclock.Divider(1))
	d.WriteReg(0x7C, 0xFF)
	if d.regs[0x7C] != 0 {
		t.Fatalf("ENDX should read back as 0 after any write, got %#x", d.regs[0x7C])
	}
}

func TestWriteRegDirPageAndEchoDelay(t *testing.T) {
	d := New(mclock.Divider(1))
	d.WriteReg(0x5D, 0x04)
	if d.dirPage != 0x0400 {
		t.Fatalf("dirPage = %#x, want 0x0400", d.dirPage)
	}
	d.WriteReg(0x7D, 0x02)
	if !d.echoEnable {
		t.Fatalf("a nonzero EDL write should enable echo")
	}
}

func TestAdvanceEnvelopeAttackSaturatesAndTransitions(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &voice{envMode: envAttack, envLevel: 0x7F0}
	d.advanceEnvelope(v)
	if v.envLevel != 0x7FF {
		t.Fatalf("envLevel should saturate at 0x7FF, got %#x", v.envLevel)
	}
	if v.envMode != envDecay {
		t.Fatalf("envMode should move to envDecay once saturated")
	}
}

func TestAdvanceEnvelopeDecayStepsOnceThenSustains(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &voice{envMode: envDecay, envLevel: 256}
	d.advanceEnvelope(v)
	if v.envLevel != 255 { // 256 - (256>>8) = 256 - 1
		t.Fatalf("envLevel after one decay step = %d, want 255", v.envLevel)
	}
	if v.envMode != envSustain {
		t.Fatalf("envMode after a decay step should become envSustain")
	}
}

func TestAdvanceEnvelopeReleaseDisablesVoiceAtZero(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &voice{envMode: envRelease, envLevel: 5, enabled: true}
	d.advanceEnvelope(v)
	if v.envLevel != 0 {
		t.Fatalf("envLevel should clamp to 0, got %d", v.envLevel)
	}
	if v.enabled {
		t.Fatalf("voice should disable once it reaches envOff")
	}
}

func TestDecodeNextBRRBlockAppliesFilterZeroDirectly(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &d.voices[0]
	v.brrAddr = 0
	d.RAM[0] = 0x00 // shift 0, filter 0, no loop, no end
	for i := uint16(1); i <= 8; i++ {
		d.RAM[i] = 0x12
	}
	d.decodeNextBRRBlock(v)
	if v.decoded[0] != 1 {
		t.Fatalf("decoded[0] = %d, want 1", v.decoded[0])
	}
	if v.decoded[1] != 2 {
		t.Fatalf("decoded[1] = %d, want 2", v.decoded[1])
	}
	if v.blockPos != 1 {
		t.Fatalf("blockPos = %d, want 1", v.blockPos)
	}
	if v.brrAddr != 9 {
		t.Fatalf("brrAddr should advance by 9 to the next block, got %d", v.brrAddr)
	}
}

func TestDecodeNextBRRBlockLoopsOnEndWithLoopFlag(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &d.voices[0]
	v.brrAddr = 0
	v.loopAddr = 0x2000
	v.enabled = true
	d.RAM[0] = 0x03 // loop=1, end=1
	d.decodeNextBRRBlock(v)
	if v.brrAddr != 0x2000 {
		t.Fatalf("brrAddr should jump to loopAddr, got %#x", v.brrAddr)
	}
	if !v.enabled {
		t.Fatalf("a looping end block should leave the voice enabled")
	}
}

func TestDecodeNextBRRBlockDisablesVoiceOnEndWithoutLoop(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &d.voices[0]
	v.enabled = true
	v.brrAddr = 0
	d.RAM[0] = 0x01 // loop=0, end=1
	d.decodeNextBRRBlock(v)
	if v.enabled {
		t.Fatalf("a non-looping end block should disable the voice")
	}
}

func TestDecodeNextBRRBlockSkipsWhenNoiseEnabled(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &d.voices[0]
	v.noiseEnable = true
	v.brrAddr = 0x123
	d.decodeNextBRRBlock(v)
	if v.brrAddr != 0x123 {
		t.Fatalf("a noise voice should not consume BRR data, brrAddr changed to %#x", v.brrAddr)
	}
}

func TestBRRFilterOneAddsScaledPreviousSample(t *testing.T) {
	got := brrFilter(1, 100, 16, 0)
	want := int32(100 + (16*15)>>4)
	if got != want {
		t.Fatalf("brrFilter(1,...) = %d, want %d", got, want)
	}
}

func TestBRRFilterTwoBlendsTwoHistorySamples(t *testing.T) {
	got := brrFilter(2, 0, 32, 16)
	want := int32(0 + (32*61)>>5 - (16*15)>>4)
	if got != want {
		t.Fatalf("brrFilter(2,...) = %d, want %d", got, want)
	}
}

func TestInterpolatedNoiseVoiceUsesLFSRNotBRR(t *testing.T) {
	d := New(mclock.Divider(1)) // New seeds noiseLFSR = 0x4000
	v := &d.voices[0]
	v.noiseEnable = true
	got := d.interpolated(v)
	if got != 0 {
		t.Fatalf("interpolated noise sample = %d, want 0 (0x4000-0x4000)", got)
	}
}

func TestSampleSilentWithNoEnabledVoices(t *testing.T) {
	d := New(mclock.Divider(1))
	d.SetMasterVolume(127, 127)
	out := d.Sample()
	if out[0] != 0 || out[1] != 0 {
		t.Fatalf("Sample() with no enabled voices = %v, want [0 0]", out)
	}
}

func TestSampleMixesEnabledVoiceThroughMasterVolume(t *testing.T) {
	d := New(mclock.Divider(1))
	v := &d.voices[0]
	v.enabled = true
	v.envLevel = 0x7FF
	v.volL, v.volR = 127, 127
	v.decoded[0] = 10000
	d.SetMasterVolume(127, 127)

	out := d.Sample()
	if out[0] <= 0 || out[1] <= 0 {
		t.Fatalf("expected a positive stereo sample, got %v", out)
	}
}

func TestClampI32BoundsToInt16Range(t *testing.T) {
	if clampI32(100000) != 32767 {
		t.Fatalf("clampI32 should clamp large positives to 32767")
	}
	if clampI32(-100000) != -32768 {
		t.Fatalf("clampI32 should clamp large negatives to -32768")
	}
}
