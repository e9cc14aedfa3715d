package vmm

import (
	"fmt"

	"github.com/xdsb/airix/mem/pmm"
)

// A Builder can build address-space managers.
type Builder struct {
	frames *pmm.Allocator
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithFrameAllocator sets the frame allocator that backs all address-space
// structures.
func (b Builder) WithFrameAllocator(a *pmm.Allocator) Builder {
	b.frames = a
	return b
}

// Build returns a newly created manager. It allocates the kernel-shared
// page tables that map the whole physical memory at KernelBase. These
// frames belong to the kernel, not to any process.
func (b Builder) Build(name string) *Manager {
	if b.frames == nil {
		panic(fmt.Sprintf("vmm %s: a frame allocator is required", name))
	}

	m := &Manager{
		name:   name,
		frames: b.frames,
	}

	b.createKernelWindow(m)

	return m
}

func (b Builder) createKernelWindow(m *Manager) {
	bytesPerTable := NumTableEntries * pmm.PageSize
	memoryBytes := (b.frames.TotalPageCount() + 1) * pmm.PageSize
	numTables := (memoryBytes + bytesPerTable - 1) / bytesPerTable

	if numTables > NumDirEntries-UserDirEntries {
		numTables = NumDirEntries - UserDirEntries
	}

	for i := 0; i < numTables; i++ {
		table, err := m.AllocTable()
		if err != nil {
			panic(fmt.Sprintf(
				"vmm %s: cannot allocate kernel window: %v", m.name, err))
		}

		// Identity map: KernelBase+p resolves to physical address p. The
		// reserved null frame stays unmapped.
		numFrames := memoryBytes / pmm.PageSize
		for slot := 0; slot < NumTableEntries; slot++ {
			frame := i*NumTableEntries + slot
			if frame >= numFrames {
				break
			}
			if frame == 0 {
				continue
			}
			table.pages[slot] = pmm.PAddr(frame * pmm.PageSize)
			table.flags[slot] = FlagPresent | FlagWritable
		}

		m.kernelTables = append(m.kernelTables, table)
		m.kernelFrames++
	}
}
