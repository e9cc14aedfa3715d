// Package vmm implements the virtual memory primitives of the simulated
// machine. An address space is a two-level tree in the 32-bit x86 layout:
// a directory of 1024 slots, each slot pointing to a table of 1024 page
// mappings. The directory and every table each occupy one physical frame.
package vmm

import (
	"github.com/xdsb/airix/mem/pmm"
)

// A Flag carries the permission bits of a mapping.
type Flag uint32

// Permission bits of a mapping.
const (
	FlagPresent Flag = 1 << iota
	FlagWritable
	FlagUser
)

const (
	// NumDirEntries is the number of slots in a directory.
	NumDirEntries = 1024

	// NumTableEntries is the number of page slots in a table.
	NumTableEntries = 1024

	// KernelBase is the virtual address where the kernel window starts.
	KernelBase uint32 = 0xC0000000

	// UserDirEntries is the number of directory slots that belong to user
	// space. Slots at or above this index hold kernel-shared mappings.
	UserDirEntries = int(KernelBase >> 22)
)

// A Table is one frame-backed page table. It owns the frame that backs it,
// but not the frames its entries point to.
type Table struct {
	frame pmm.PAddr
	pages [NumTableEntries]pmm.PAddr
	flags [NumTableEntries]Flag
}

// Frame returns the physical frame backing the table.
func (t *Table) Frame() pmm.PAddr {
	return t.frame
}

// Page returns the mapping at a slot. The address is NullPAddr if the slot
// is empty.
func (t *Table) Page(slot int) (pmm.PAddr, Flag) {
	return t.pages[slot], t.flags[slot]
}

// MapPage maps one page at a slot.
func (t *Table) MapPage(slot int, paddr pmm.PAddr, flag Flag) {
	t.slotMustBeEmpty(slot)
	t.pages[slot] = paddr
	t.flags[slot] = flag | FlagPresent
}

// UnmapPage clears a slot and returns the address that was mapped there.
func (t *Table) UnmapPage(slot int) pmm.PAddr {
	paddr := t.pages[slot]
	t.pages[slot] = pmm.NullPAddr
	t.flags[slot] = 0
	return paddr
}

func (t *Table) slotMustBeEmpty(slot int) {
	if t.pages[slot].Valid() {
		panic("page slot is already mapped")
	}
}

// A Directory is the top level of an address space. It owns its backing
// frame and the user-half tables mapped into it. Kernel-half slots alias
// tables owned by the kernel and are never freed with the directory.
type Directory struct {
	frame  pmm.PAddr
	tables [NumDirEntries]*Table
	flags  [NumDirEntries]Flag
}

// Frame returns the physical frame backing the directory.
func (d *Directory) Frame() pmm.PAddr {
	return d.frame
}

// Table returns the table mapped at a slot, or nil if the slot is empty.
func (d *Directory) Table(slot int) (*Table, Flag) {
	return d.tables[slot], d.flags[slot]
}

// MapTable mounts a table at a slot.
func (d *Directory) MapTable(slot int, table *Table, flag Flag) {
	if d.tables[slot] != nil {
		panic("directory slot is already mapped")
	}

	d.tables[slot] = table
	d.flags[slot] = flag | FlagPresent
}

// UnmapTable clears a slot and returns the table that was mounted there.
func (d *Directory) UnmapTable(slot int) *Table {
	table := d.tables[slot]
	d.tables[slot] = nil
	d.flags[slot] = 0
	return table
}

// DirSlot returns the directory slot that covers a virtual address.
func DirSlot(vaddr uint32) int {
	return int(vaddr >> 22)
}

// TableSlot returns the table slot that covers a virtual address.
func TableSlot(vaddr uint32) int {
	return int(vaddr>>pmm.Log2PageSize) & (NumTableEntries - 1)
}
