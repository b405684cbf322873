package system

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/retrocore/retrocore/savestate"
)

// flushWorker is the "queued to a worker" boundary for SRAM/save-state
// persistence: the emulation thread never blocks on disk I/O mid-slice,
// it enqueues a snapshot and the worker writes it out on its own
// goroutine, joined with errgroup so a write failure surfaces on the
// next Close/Wait rather than being silently dropped.
//
// Follows a SaveSnapshotToFile call shape, moved off the emulation
// thread and onto a worker per this module's single-thread-emulation /
// background-I/O split.
type flushWorker struct {
	group *errgroup.Group
	ctx   context.Context
}

func newFlushWorker() *flushWorker {
	g, ctx := errgroup.WithContext(context.Background())
	return &flushWorker{group: g, ctx: ctx}
}

// FlushSRAM enqueues a write of data to path: the battery-backed SRAM/
// EEPROM persistence is queued to a worker, not synchronous with the
// emulation thread.
func (w *flushWorker) FlushSRAM(path string, data []byte) {
	if len(data) == 0 {
		return
	}
	snapshot := append([]byte(nil), data...)
	w.group.Go(func() error {
		return os.WriteFile(path, snapshot, 0o644)
	})
}

// FlushSaveState enqueues a save-state write built from the given named
// sections, using the same background-worker boundary as SRAM flushes.
func (w *flushWorker) FlushSaveState(path string, sections []savestate.Section) {
	container := &savestate.Container{Sections: sections}
	w.group.Go(func() error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return savestate.Save(f, container)
	})
}

// Wait blocks until every enqueued flush has completed, returning the
// first error encountered (if any). System Cores call this from Close.
func (w *flushWorker) Wait() error {
	err := w.group.Wait()
	w.group, w.ctx = errgroup.WithContext(context.Background())
	return err
}
