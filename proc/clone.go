package proc

import (
	"github.com/xdsb/airix/mem/vmm"
)

// cloneFrom populates a fresh record with a deep copy of the source's user
// address space: for every mapped user page, a new frame holding an
// identical byte-for-byte copy, mapped at the same slot with the same
// flags. Kernel-space mappings are not copied page by page; they are
// re-established through the shared kernel window.
func (c *Comp) cloneFrom(clone, src *Process) error {
	dir, err := c.spaces.AllocSpace()
	if err != nil {
		return err
	}
	clone.Space = dir
	clone.OwnedFrames++

	for slot := 0; slot < vmm.UserDirEntries; slot++ {
		srcTable, tableFlag := src.Space.Table(slot)
		if srcTable == nil {
			continue
		}

		if err := c.cloneTable(clone, srcTable, slot, tableFlag); err != nil {
			return err
		}
	}

	c.spaces.CopyKernelSpace(dir)

	return nil
}

func (c *Comp) cloneTable(
	clone *Process,
	srcTable *vmm.Table,
	slot int,
	tableFlag vmm.Flag,
) error {
	cloneTable, err := c.spaces.AllocTable()
	if err != nil {
		return err
	}

	clone.Space.MapTable(slot, cloneTable, tableFlag)
	clone.OwnedFrames++

	for pte := 0; pte < vmm.NumTableEntries; pte++ {
		srcPage, pageFlag := srcTable.Page(pte)
		if !srcPage.Valid() {
			continue
		}

		clonePage, err := c.frames.AllocPage()
		if err != nil {
			return err
		}

		copy(c.frames.PageBytes(clonePage), c.frames.PageBytes(srcPage))

		cloneTable.MapPage(pte, clonePage, pageFlag)
		clone.OwnedFrames++
	}

	return nil
}
