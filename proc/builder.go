package proc

import (
	"fmt"

	"github.com/xdsb/airix/hooking"
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/trap"
)

// DefaultProcMax is the default size of the PID universe and the record
// pool.
const DefaultProcMax = 1024

// A Builder can build process lifecycle controllers.
type Builder struct {
	procMax   int
	frames    *pmm.Allocator
	spaces    SpaceManager
	loader    ImageLoader
	scheduler Scheduler
	traps     *trap.Table
}

// MakeBuilder creates a new builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		procMax: DefaultProcMax,
	}
}

// WithProcMax sets the number of processes that can be simultaneously
// live.
func (b Builder) WithProcMax(n int) Builder {
	b.procMax = n
	return b
}

// WithFrameAllocator sets the physical frame allocator.
func (b Builder) WithFrameAllocator(a *pmm.Allocator) Builder {
	b.frames = a
	return b
}

// WithSpaceManager sets the address-space manager.
func (b Builder) WithSpaceManager(m SpaceManager) Builder {
	b.spaces = m
	return b
}

// WithLoader sets the executable-image loader.
func (b Builder) WithLoader(l ImageLoader) Builder {
	b.loader = l
	return b
}

// WithScheduler sets the scheduler that receives runnable records.
func (b Builder) WithScheduler(s Scheduler) Builder {
	b.scheduler = s
	return b
}

// WithTrapTable sets the trap table where the syscall vector is installed
// on the first Exec. Without a trap table no vector is installed.
func (b Builder) WithTrapTable(t *trap.Table) Builder {
	b.traps = t
	return b
}

// Build returns a newly created lifecycle controller.
func (b Builder) Build(name string) *Comp {
	b.parametersMustBeValid(name)

	c := &Comp{
		HookableBase: *hooking.NewHookableBase(),
		name:         name,
		frames:       b.frames,
		spaces:       b.spaces,
		loader:       b.loader,
		scheduler:    b.scheduler,
		traps:        b.traps,
		pool:         newPool(name, b.procMax),
	}

	return c
}

func (b Builder) parametersMustBeValid(name string) {
	if b.procMax <= 0 {
		panic(fmt.Sprintf("proc %s: proc max must be positive", name))
	}

	if b.frames == nil || b.spaces == nil ||
		b.loader == nil || b.scheduler == nil {
		panic(fmt.Sprintf(
			"proc %s: a frame allocator, a space manager, a loader, "+
				"and a scheduler are required", name))
	}
}
