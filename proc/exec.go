package proc

import (
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
)

// buildFromImage populates a fresh record from an executable image. Each
// step is a hard dependency on the previous one succeeding. On failure the
// record's frame count still reflects everything allocated so far, so the
// caller can reclaim by destroying the half-built record.
func (c *Comp) buildFromImage(p *Process, image []byte) error {
	dir, err := c.spaces.AllocSpace()
	if err != nil {
		return err
	}
	p.Space = dir
	p.OwnedFrames++

	entry, frames, err := c.loader.Load(image, dir)
	p.OwnedFrames += frames
	if err != nil {
		return err
	}
	p.Entry = entry

	if err := c.allocStacks(p); err != nil {
		return err
	}

	c.spaces.CopyKernelSpace(dir)

	return nil
}

// allocStacks maps one frame of kernel stack and one frame of user stack
// at their fixed reserved ranges. The ranges live in different directory
// slots so a fault in one stack cannot corrupt the other's mappings.
func (c *Comp) allocStacks(p *Process) error {
	if err := c.mapStackPage(
		p, KernelStackTop-pmm.PageSize, vmm.FlagWritable); err != nil {
		return err
	}

	if err := c.mapStackPage(
		p, UserStackTop-pmm.PageSize, vmm.FlagWritable|vmm.FlagUser); err != nil {
		return err
	}

	p.KernelStackTop = KernelStackTop
	p.UserStackTop = UserStackTop

	return nil
}

func (c *Comp) mapStackPage(p *Process, vaddr uint32, flag vmm.Flag) error {
	paddr, err := c.frames.AllocPage()
	if err != nil {
		return err
	}

	extra, err := c.spaces.Map(p.Space, vaddr, paddr, flag)
	if err != nil {
		// The frame never became reachable from the address space, so the
		// reclaimer would miss it.
		c.frames.FreePage(paddr)
		return err
	}

	p.OwnedFrames += extra + 1

	return nil
}
