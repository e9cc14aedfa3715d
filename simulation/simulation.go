// Package simulation assembles a whole simulated machine: physical memory,
// the virtual memory manager, the image loader, the trap table, the
// scheduler, and the process lifecycle core, plus recording and monitoring
// around them.
package simulation

import (
	"github.com/xdsb/airix/datarecording"
	"github.com/xdsb/airix/loader"
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
	"github.com/xdsb/airix/monitoring"
	"github.com/xdsb/airix/proc"
	"github.com/xdsb/airix/sched"
	"github.com/xdsb/airix/trap"
	"github.com/xdsb/airix/tracing"
)

// A Simulation holds one assembled machine.
type Simulation struct {
	id string

	frames    *pmm.Allocator
	spaces    *vmm.Manager
	loader    *loader.Loader
	traps     *trap.Table
	scheduler *sched.RoundRobin
	kernel    *proc.Comp

	dataRecorder datarecording.DataRecorder
	tracer       *tracing.LifecycleTracer
	monitor      *monitoring.Monitor
}

// ID returns the unique id of this run.
func (s *Simulation) ID() string {
	return s.id
}

// Kernel returns the process lifecycle controller.
func (s *Simulation) Kernel() *proc.Comp {
	return s.kernel
}

// FrameAllocator returns the physical memory of the machine.
func (s *Simulation) FrameAllocator() *pmm.Allocator {
	return s.frames
}

// SpaceManager returns the virtual memory manager of the machine.
func (s *Simulation) SpaceManager() *vmm.Manager {
	return s.spaces
}

// Loader returns the executable-image loader of the machine.
func (s *Simulation) Loader() *loader.Loader {
	return s.loader
}

// TrapTable returns the interrupt-vector table of the machine.
func (s *Simulation) TrapTable() *trap.Table {
	return s.traps
}

// Scheduler returns the scheduler of the machine.
func (s *Simulation) Scheduler() *sched.RoundRobin {
	return s.scheduler
}

// DataRecorder returns the recorder this run writes to.
func (s *Simulation) DataRecorder() datarecording.DataRecorder {
	return s.dataRecorder
}

// Monitor returns the monitor of the simulation, or nil when monitoring is
// disabled.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// DestroyRetired reaps the processes the scheduler has retired and
// destroys each of them.
func (s *Simulation) DestroyRetired() int {
	retired := s.scheduler.ReapRetired()
	for _, p := range retired {
		s.kernel.Destroy(p)
	}

	return len(retired)
}

// Terminate flushes the recorder.
func (s *Simulation) Terminate() {
	s.dataRecorder.Flush()
}
