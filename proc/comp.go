package proc

import (
	"fmt"

	"github.com/xdsb/airix/hooking"
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
	"github.com/xdsb/airix/trap"
)

// A Scheduler accepts runnable processes and decides what runs next.
type Scheduler interface {
	// Add registers a completed, runnable record. The scheduler owns the
	// record from this point on.
	Add(p *Process)

	// Yield transfers control away from the calling process.
	Yield()
}

// An ImageLoader maps an executable image into an address space and
// reports the entry address. The frame count must be accurate even when
// loading fails partway, so the caller can reclaim what was mapped.
type ImageLoader interface {
	Load(image []byte, dir *vmm.Directory) (entry uint32, frames int, err error)
}

// A SpaceManager provides the address-space primitives the lifecycle paths
// are built on.
type SpaceManager interface {
	AllocSpace() (*vmm.Directory, error)
	FreeSpace(dir *vmm.Directory)
	AllocTable() (*vmm.Table, error)
	FreeTable(table *vmm.Table)
	Map(dir *vmm.Directory, vaddr uint32, paddr pmm.PAddr, flag vmm.Flag) (
		extraFrames int, err error)
	CopyKernelSpace(dir *vmm.Directory)
}

// Hook positions of the lifecycle controller. The hook item is always the
// *Process involved.
var (
	HookPosProcExec    = &hooking.HookPos{Name: "ProcExec"}
	HookPosProcClone   = &hooking.HookPos{Name: "ProcClone"}
	HookPosProcExit    = &hooking.HookPos{Name: "ProcExit"}
	HookPosProcDestroy = &hooking.HookPos{Name: "ProcDestroy"}
	HookPosSyscall     = &hooking.HookPos{Name: "Syscall"}
)

// Comp is the process lifecycle controller. It ties the PID allocator, the
// record pool, and the address-space construction and reclamation paths
// together, and hands completed records to the scheduler.
//
// The controller assumes a single logical thread of kernel control: none
// of its operations are internally synchronized, and an address-space walk
// must never be interleaved with another mutation of the same structures.
type Comp struct {
	hooking.HookableBase

	name      string
	frames    *pmm.Allocator
	spaces    SpaceManager
	loader    ImageLoader
	scheduler Scheduler
	traps     *trap.Table

	pool *pool

	syscallInstalled bool
}

// Name returns the name of the controller.
func (c *Comp) Name() string {
	return c.name
}

// Exec creates a process from an executable image, marks it running, and
// registers it with the scheduler. The first successful call installs the
// syscall trap vector. On failure everything built so far is reclaimed and
// no record stays live.
func (c *Comp) Exec(image []byte) error {
	p, err := c.pool.acquire()
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	if err := c.buildFromImage(p, image); err != nil {
		c.Destroy(p)
		return fmt.Errorf("exec: %w", err)
	}

	c.installSyscallEntry()

	p.State = StateRunning

	c.InvokeHook(hooking.HookCtx{
		Domain: c, Pos: HookPosProcExec, Item: p,
	})

	c.scheduler.Add(p)

	return nil
}

// Clone forks a running process into a child whose address space is a
// deep, page-for-page copy of the parent's user space. On success the
// child inherits the parent's context, entry point, and stack addresses,
// records the parent, and is handed to the scheduler.
func (c *Comp) Clone(p *Process) (*Process, error) {
	clone, err := c.pool.acquire()
	if err != nil {
		return nil, fmt.Errorf("clone proc(%d): %w", p.PID, err)
	}

	if err := c.cloneFrom(clone, p); err != nil {
		c.Destroy(clone)
		return nil, fmt.Errorf("clone proc(%d): %w", p.PID, err)
	}

	if clone.OwnedFrames != p.OwnedFrames {
		panic(fmt.Sprintf(
			"%s: cloned proc(%d) owns %d frames, source proc(%d) owns %d",
			c.name, clone.PID, clone.OwnedFrames, p.PID, p.OwnedFrames))
	}

	clone.State = StateRunning
	clone.Context = p.Context
	clone.Entry = p.Entry
	clone.KernelStackTop = p.KernelStackTop
	clone.UserStackTop = p.UserStackTop
	clone.ParentPID = p.PID

	c.InvokeHook(hooking.HookCtx{
		Domain: c, Pos: HookPosProcClone, Item: clone, Detail: p,
	})

	c.scheduler.Add(clone)

	return clone, nil
}

// Exit terminates a process. The record stays with the scheduler until it
// is retired; only then may it be destroyed. In the real machine control
// never returns to the exiting process's instruction stream.
func (c *Comp) Exit(p *Process, status int) {
	p.Status = status
	p.State = StateDead

	c.InvokeHook(hooking.HookCtx{
		Domain: c, Pos: HookPosProcExit, Item: p,
	})

	c.scheduler.Yield()
}

// Destroy reclaims a process's address space and returns its record and
// PID to their pools. The process must no longer be referenced by the
// scheduler. Destroy is safe on half-built records: the frame count always
// reflects exactly what was allocated.
func (c *Comp) Destroy(p *Process) {
	c.InvokeHook(hooking.HookCtx{
		Domain: c, Pos: HookPosProcDestroy, Item: p,
	})

	if p.Space != nil {
		c.reclaimSpace(p)
	}

	c.pool.release(p)
}

// Lookup finds a live process by PID. Parent references must be resolved
// through this guarded lookup, since a parent may be destroyed while its
// children still point at it.
func (c *Comp) Lookup(pid PID) (*Process, bool) {
	return c.pool.lookup(pid)
}

// LiveProcesses returns every record currently checked out of the pool, in
// no particular order.
func (c *Comp) LiveProcesses() []*Process {
	return c.pool.live()
}

func (c *Comp) installSyscallEntry() {
	if c.syscallInstalled || c.traps == nil {
		return
	}

	c.traps.Register(trap.SyscallVector, c.handleSyscall)
	c.syscallInstalled = true
}

func (c *Comp) handleSyscall(ctx interface{}) {
	c.InvokeHook(hooking.HookCtx{
		Domain: c, Pos: HookPosSyscall, Item: ctx,
	})
}
