package proc

import (
	"github.com/xdsb/airix/mem/vmm"
)

// reclaimSpace walks the user half of a process's address space and frees
// every frame the process owns: data and stack pages first, then each
// emptied page table, then the directory itself. Kernel-shared mappings
// are aliases owned by the kernel and are left alone. When the walk is
// done the process's frame count must be zero; the pool asserts that on
// release.
func (c *Comp) reclaimSpace(p *Process) {
	dir := p.Space

	for slot := 0; slot < vmm.UserDirEntries; slot++ {
		table := dir.UnmapTable(slot)
		if table == nil {
			continue
		}

		for pte := 0; pte < vmm.NumTableEntries; pte++ {
			paddr := table.UnmapPage(pte)
			if paddr.Valid() {
				c.frames.FreePage(paddr)
				p.OwnedFrames--
			}
		}

		c.spaces.FreeTable(table)
		p.OwnedFrames--
	}

	c.spaces.FreeSpace(dir)
	p.OwnedFrames--

	p.Space = nil
}
