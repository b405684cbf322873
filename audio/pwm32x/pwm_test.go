package pwm32x

import (
	"testing"

	"github.com/retrocore/retrocore/mclock"
)

func TestPushFillsFIFOAndStopsAtDepth(t *testing.T) {
	p := New(mclock.Divider(10))
	for i := 0; i < fifoDepth+2; i++ {
		p.Push(0, int16(i+1))
	}
	if !p.FIFOFull(0) {
		t.Fatalf("expected channel 0's FIFO to report full")
	}
	if p.ch[0].fifoLen != fifoDepth {
		t.Fatalf("fifoLen = %d, want %d (extra pushes should be dropped)", p.ch[0].fifoLen, fifoDepth)
	}
}

func TestFIFOEmptyInitially(t *testing.T) {
	p := New(mclock.Divider(10))
	if !p.FIFOEmpty(0) || !p.FIFOEmpty(1) {
		t.Fatalf("both channels should start with empty FIFOs")
	}
}

func TestStepToDrainsOneSamplePerCycle(t *testing.T) {
	p := New(mclock.Divider(4))
	p.Push(0, 100)
	p.Push(0, 200)

	p.StepTo(4) // exactly one PWM cycle elapses
	if p.ch[0].current != 100 {
		t.Fatalf("current after one cycle = %d, want 100", p.ch[0].current)
	}
	if p.ch[0].fifoLen != 1 {
		t.Fatalf("fifoLen after one cycle = %d, want 1", p.ch[0].fifoLen)
	}

	p.StepTo(8)
	if p.ch[0].current != 200 {
		t.Fatalf("current after two cycles = %d, want 200", p.ch[0].current)
	}
}

func TestStepToRaisesDREQWhenEnabled(t *testing.T) {
	p := New(mclock.Divider(4))
	p.Push(1, 50)
	var raised int = -1
	p.RaiseDREQ = func(ch int) { raised = ch }
	p.SetDREQEnable(1, true)

	p.StepTo(4)
	if raised != 1 {
		t.Fatalf("expected RaiseDREQ(1) to fire, got raised=%d", raised)
	}
}

func TestStepToDoesNotRaiseDREQWhenDisabled(t *testing.T) {
	p := New(mclock.Divider(4))
	p.Push(0, 50)
	called := false
	p.RaiseDREQ = func(ch int) { called = true }

	p.StepTo(4)
	if called {
		t.Fatalf("RaiseDREQ should not fire when DREQ is not enabled for the channel")
	}
}

func TestSampleScalesToFullScale(t *testing.T) {
	p := New(mclock.Divider(4))
	p.Push(0, 1<<11)
	p.StepTo(4)

	out := p.Sample()
	if len(out) != 2 {
		t.Fatalf("Sample() returned %d channels, want 2", len(out))
	}
	if out[0] != 1.0 {
		t.Fatalf("left sample = %v, want 1.0 at full-scale input", out[0])
	}
}

func TestNextDeadlineAdvancesByOneCyclePeriod(t *testing.T) {
	p := New(mclock.Divider(4))
	p.StepTo(4)
	if got := p.NextDeadline(); got != 8 {
		t.Fatalf("NextDeadline() = %d, want 8", got)
	}
}
