// Package cpu provides the architecture-independent processor host that
// every concrete CPU (68000, Z80, SH-2, 6502, 65C816, SPC700, SM83) is
// built from: register file and cycle-budget bookkeeping are generic, but
// this package treats the actual instruction decoder as an external,
// independently-tested collaborator, assumed to exist as pure functions
// over a bus. This package defines the Decoder seam the host
// drives and implements the run-until/budget/halt machinery around it.
//
// Generalizes the common per-CPU StepOne/ExecuteInstruction loop shape
// from three hand-written, architecture-specific loops into one host
// shared by every architecture.
package cpu

import "github.com/retrocore/retrocore/mclock"

// Decoder executes exactly one instruction's worth of work starting at the
// architecture's current PC and returns the number of MC ticks it consumed.
// A Decoder owns the register file; the Host only owns scheduling state
// (budget, halt, interrupt latch).
//
// Decoder implementations are out of this package's own correctness
// scope: it ships reference decoders (one per architecture, in the
// cpu/<arch> subpackages) sufficient to drive this module's own tests and
// the cmd/retrocore smoke harness, not to pass an exhaustive per-opcode
// hardware test suite.
type Decoder interface {
	// Step executes one instruction and returns the MC ticks it consumed.
	// Implementations must check their own pending-interrupt state at an
	// instruction boundary before fetching the next opcode.
	Step() mclock.Tick
}

// InterruptSource is implemented by decoders that can be interrupted; the
// Host calls AssertInterrupt when a device raises one and the decoder is
// responsible for honoring it at its own instruction boundary: the target
// CPU observes it on the first instruction boundary at or after the tick
// it was raised, modulo per-CPU delay rules.
type InterruptSource interface {
	AssertInterrupt(level int)
}

// Host schedules one Decoder against the master clock. It implements
// clockdrv.Processor.
type Host struct {
	Name    string
	decoder Decoder

	committed mclock.Tick
	// budget is the signed cycle budget: it may go slightly negative after
	// an overshooting instruction and is repaid by simply starting the
	// next RunUntil call already behind.
	budget int64

	halted  bool
	stopped bool // power-down / STOP, distinct from HALT-on-bus-error where applicable

	// stallUntil models a DMA-style time advance that stalls this
	// processor without executing instructions. Bus/DMA code calls Stall
	// directly on the host.
	stallUntil mclock.Tick
}

// NewHost creates a processor host around a concrete decoder.
func NewHost(name string, d Decoder) *Host {
	return &Host{Name: name, decoder: d}
}

// Committed implements clockdrv.Processor.
func (h *Host) Committed() mclock.Tick { return h.committed }

// Halted implements clockdrv.Processor.
func (h *Host) Halted() bool { return h.halted || h.stopped }

// SetHalted marks the processor HALTed (e.g. 68000 double bus fault, SM83
// HALT instruction). A halted host still advances its committed MC to the
// slice deadline so other processors never wait on it.
func (h *Host) SetHalted(v bool) { h.halted = v }

// SetStopped marks the processor STOPped (power-down). Distinct flag so a
// decoder can implement both HALT (wake on any pending interrupt) and
// STOP (wake only on the architecture's designated wake source).
func (h *Host) SetStopped(v bool) { h.stopped = v }

// Stall advances the host's committed MC to `until` without running any
// instructions, modeling a DMA engine or bus-arbitration grant that steals
// cycles from this CPU. If `until` is not ahead of the current commitment
// it is a no-op.
func (h *Host) Stall(until mclock.Tick) {
	if until > h.stallUntil {
		h.stallUntil = until
	}
}

// RunUntil implements clockdrv.Processor. It executes whole instructions
// (or burns stalled time) until the host's committed MC reaches or exceeds
// deadline, then returns the actual MC reached. The final instruction may
// overshoot deadline; the overshoot becomes a negative budget repaid by the
// next call, matching the cycle-budget invariant.
func (h *Host) RunUntil(deadline mclock.Tick) mclock.Tick {
	if h.stallUntil > h.committed {
		stallTo := h.stallUntil
		if stallTo > deadline {
			stallTo = deadline
		}
		h.committed = stallTo
		if h.committed >= h.stallUntil {
			h.stallUntil = 0
		}
		if h.committed >= deadline {
			return h.committed
		}
	}

	if h.Halted() {
		h.committed = deadline
		return h.committed
	}

	h.budget = int64(deadline) - int64(h.committed)
	for h.committed < deadline {
		if h.halted || h.stopped {
			h.committed = deadline
			return h.committed
		}
		ticks := h.decoder.Step()
		if ticks == 0 {
			// A decoder that makes no progress (e.g. a STOP instruction
			// just executed) must flip a halt flag; guard against an
			// infinite loop if it didn't.
			h.committed = deadline
			return h.committed
		}
		h.committed += ticks
		h.budget -= int64(ticks)
	}
	return h.committed
}

// Budget returns the signed cycle budget. Mostly useful for tests
// asserting overshoot accounting.
func (h *Host) Budget() int64 { return h.budget }
