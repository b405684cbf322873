// Package clockdrv implements the outer loop that advances every processor
// and device of a System Core in a single time order, in MC-tick slices
// bounded by the next cross-boundary event, and enforces that no CPU
// observes a shared-state change before the MC tick at which it was
// committed.
//
// The scheduling shape builds on a cooperative single-thread CPU loop
// (StepOne/ExecuteInstruction), generalized here into a run-until
// contract in place of a goroutine-per-coprocessor worker model, which
// is the wrong shape for a single-thread, no-shared-memory-concurrency
// design.
package clockdrv

import "github.com/retrocore/retrocore/mclock"

// Processor is the contract every CPU host implements. RunUntil executes
// whole instructions until the host's committed MC reaches or passes
// deadline, then returns the MC it actually reached. It may overshoot by at
// most the length of the final instruction; the Driver accounts the
// overshoot against the host's next call automatically.
type Processor interface {
	// RunUntil advances the processor, returning the MC tick it actually
	// reached. Implementations must not execute any instruction whose first
	// bus cycle starts at or after deadline; the Driver never hands out a
	// deadline past the next pending sync point registered with Schedule.
	RunUntil(deadline mclock.Tick) mclock.Tick

	// Committed returns the MC tick this processor has advanced to as of
	// its last RunUntil call (or session start).
	Committed() mclock.Tick

	// Halted reports whether the processor is parked (HALT/STOP) and so
	// contributes no further bus activity until an interrupt wakes it;
	// the Driver still advances its committed MC to the slice deadline.
	Halted() bool
}

// Device is a non-CPU component stepped in MC-tick deltas: a video unit,
// an audio unit, or a DMA engine. NextDeadline reports the absolute MC tick
// of its next internally-significant event (end of scanline, end of
// sample period, end of DMA), so the Driver can include it in slice
// computation without the device polling every tick.
type Device interface {
	StepTo(mc mclock.Tick)
	NextDeadline() mclock.Tick
}

// SyncPoint is a cross-CPU rendezvous the Driver must not let any processor
// run past without pausing: a bus-arbitration change, a shared-register
// write, or a DMA begin/end. Components register these by calling
// Driver.Schedule.
type SyncPoint struct {
	At      mclock.Tick
	Apply   func()
	Pending bool
}

// Driver is the Clock Driver for one System Core. It owns no knowledge of
// what a "Genesis" or "NES" is; it is handed a set of Processors and
// Devices by the system composition layer (package system) and schedules
// them per the ordering guarantees below.
type Driver struct {
	procs   []Processor
	devices []Device
	sync    []*SyncPoint

	mc mclock.Tick

	// stopped is set by Halt and checked between slices; an in-flight
	// slice always completes before it takes effect.
	stopped bool
}

// New creates a Clock Driver with no processors or devices attached yet.
func New() *Driver {
	return &Driver{}
}

// AddProcessor registers a CPU host. Processors are scheduled by lowest
// committed MC first.
func (d *Driver) AddProcessor(p Processor) { d.procs = append(d.procs, p) }

// AddDevice registers a non-CPU device stepped to the slice deadline.
func (d *Driver) AddDevice(dev Device) { d.devices = append(d.devices, dev) }

// Schedule registers a future synchronization point. The Driver guarantees
// no processor's RunUntil call will be given a deadline that runs past At
// without first returning control so the point's Apply can run and every
// processor can observe it before continuing.
func (d *Driver) Schedule(at mclock.Tick, apply func()) *SyncPoint {
	sp := &SyncPoint{At: at, Apply: apply, Pending: true}
	d.sync = append(d.sync, sp)
	return sp
}

// MC returns the Driver's current committed master-clock tick: the MC
// every processor and device has been advanced to at least.
func (d *Driver) MC() mclock.Tick { return d.mc }

// Halt requests the loop stop after the in-flight slice completes. Safe to
// call from outside the emulation thread's call stack only via a slice
// boundary; callers inside RunSlice must not call Halt re-entrantly.
func (d *Driver) Halt() { d.stopped = true }

// Stopped reports whether Halt has been requested.
func (d *Driver) Stopped() bool { return d.stopped }

// nextBoundary computes the MC tick of the next cross-boundary event: the
// earliest pending sync point or device deadline, capped at hardLimit so a
// single RunSlice call never runs further than the caller asked for (e.g.
// "one video frame" or "until audio ring needs refilling").
func (d *Driver) nextBoundary(hardLimit mclock.Tick) mclock.Tick {
	next := hardLimit
	for _, sp := range d.sync {
		if sp.Pending && sp.At < next {
			next = sp.At
		}
	}
	for _, dev := range d.devices {
		if dl := dev.NextDeadline(); dl < next {
			next = dl
		}
	}
	return next
}

// RunSlice advances the whole System Core from the Driver's current MC up
// to (not necessarily including) hardLimit, computing one or more internal
// slices bounded by sync points and device deadlines.
// Each slice:
//  1. picks the processor with the lowest committed MC and runs it up to
//     the slice deadline (or until it itself reaches a sync point, which it
//     cannot see but the deadline already accounts for);
//  2. repeats until every processor has committed at least to the slice
//     deadline;
//  3. steps every device to the slice deadline;
//  4. applies and clears any sync point whose At has been reached.
func (d *Driver) RunSlice(hardLimit mclock.Tick) {
	for d.mc < hardLimit && !d.stopped {
		deadline := d.nextBoundary(hardLimit)
		if deadline <= d.mc {
			// A sync point landed exactly on the current MC (or the driver
			// has no processors yet); apply it and nudge forward by one
			// boundary scan so we make progress.
			d.applyDueSyncPoints()
			if deadline <= d.mc {
				deadline = hardLimit
			}
		}

		d.runProcessorsTo(deadline)

		for _, dev := range d.devices {
			dev.StepTo(deadline)
		}

		d.mc = deadline
		d.applyDueSyncPoints()
	}
}

// runProcessorsTo repeatedly advances whichever attached processor has the
// lowest committed MC until every processor has reached deadline,
// generalized to N processors and to pure device-only systems (N=0).
func (d *Driver) runProcessorsTo(deadline mclock.Tick) {
	if len(d.procs) == 0 {
		return
	}
	for {
		lowest := -1
		var lowestMC mclock.Tick
		for i, p := range d.procs {
			c := p.Committed()
			if lowest == -1 || c < lowestMC {
				lowest = i
				lowestMC = c
			}
		}
		if lowestMC >= deadline {
			return
		}
		d.procs[lowest].RunUntil(deadline)
	}
}

func (d *Driver) applyDueSyncPoints() {
	for _, sp := range d.sync {
		if sp.Pending && sp.At <= d.mc {
			sp.Pending = false
			if sp.Apply != nil {
				sp.Apply()
			}
		}
	}
	d.compactSyncPoints()
}

func (d *Driver) compactSyncPoints() {
	kept := d.sync[:0]
	for _, sp := range d.sync {
		if sp.Pending {
			kept = append(kept, sp)
		}
	}
	d.sync = kept
}
