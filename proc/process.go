// Package proc implements the process-lifecycle core of the simulated
// kernel: creating a process from an executable image, forking a running
// process into a child with a fully copied address space, and tearing down
// a process's memory and identity when it exits.
//
// The package keeps an exact count of the physical frames each process
// owns. The count must reach zero when a process is destroyed; anything
// else means the kernel's memory bookkeeping is no longer trustworthy, and
// the simulation halts.
package proc

import (
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
)

// A PID is a process identifier, unique among simultaneously live
// processes.
type PID int32

// InvalidPID marks a record with no assigned identifier.
const InvalidPID PID = -1

// A State is the lifecycle state of a process.
type State int

// Process lifecycle states. This core only moves records between
// StateRunning and StateDead; a scheduler extension may add more.
const (
	StateUninitialized State = iota
	StateRunning
	StateDead
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Virtual addresses of the process stacks. The two ranges must not share a
// directory slot, so an overflow in one cannot corrupt the mapping
// structure of the other.
const (
	KernelStackTop = vmm.KernelBase - 16*pmm.PageSize
	UserStackTop   = vmm.KernelBase - 1024*pmm.PageSize
)

// A RegContext is the machine-register snapshot of a process. It is copied
// verbatim on clone and otherwise mutated only by the context-switch path.
type RegContext struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP, ESP uint32
	EIP, EFLAGS        uint32
}

// A Process is the unit the kernel schedules and accounts for.
type Process struct {
	PID    PID
	State  State
	Status int

	// Space is the exclusively owned top-level directory of the process.
	// It is nil until construction succeeds and nil again after the
	// address space is reclaimed.
	Space *vmm.Directory

	// OwnedFrames counts every physical frame the process owns: the
	// directory, the user-half page tables, and the data and stack pages.
	OwnedFrames int

	Entry          uint32
	KernelStackTop uint32
	UserStackTop   uint32

	Context RegContext

	// ParentPID is a non-owning reference to the process this one was
	// cloned from. InvalidPID means the process was created from an image.
	// The parent may die first, so any dereference must go through a
	// liveness-checked lookup.
	ParentPID PID

	poolIndex int
}
