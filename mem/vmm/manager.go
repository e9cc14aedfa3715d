package vmm

import (
	"errors"
	"fmt"

	"github.com/xdsb/airix/mem/pmm"
)

// ErrAlreadyMapped is returned when a mapping request targets a virtual
// page that already resolves to a frame.
var ErrAlreadyMapped = errors.New("virtual page is already mapped")

// A Manager creates and destroys address-space structures. It charges every
// directory and table to the frame allocator, so the caller can account for
// them the same way it accounts for data frames. The manager is owned by a
// single logical thread of kernel control and performs no internal locking.
type Manager struct {
	name   string
	frames *pmm.Allocator

	// Kernel-shared tables, indexed from slot UserDirEntries upward. Owned
	// by the kernel, aliased into every address space, never freed with a
	// process.
	kernelTables []*Table
	kernelFrames int
}

// Name returns the name of the manager.
func (m *Manager) Name() string {
	return m.name
}

// AllocSpace allocates an empty directory. It consumes one frame.
func (m *Manager) AllocSpace() (*Directory, error) {
	frame, err := m.frames.AllocPage()
	if err != nil {
		return nil, fmt.Errorf("alloc address space: %w", err)
	}

	return &Directory{frame: frame}, nil
}

// FreeSpace releases the frame backing a directory. The caller must have
// emptied and freed the user-half tables first.
func (m *Manager) FreeSpace(dir *Directory) {
	m.frames.FreePage(dir.frame)
	dir.frame = pmm.NullPAddr
}

// AllocTable allocates an empty page table. It consumes one frame.
func (m *Manager) AllocTable() (*Table, error) {
	frame, err := m.frames.AllocPage()
	if err != nil {
		return nil, fmt.Errorf("alloc page table: %w", err)
	}

	return &Table{frame: frame}, nil
}

// FreeTable releases the frame backing a table.
func (m *Manager) FreeTable(table *Table) {
	m.frames.FreePage(table.frame)
	table.frame = pmm.NullPAddr
}

// Map establishes a mapping from a virtual page to a physical frame,
// creating the covering page table if the directory slot is still empty.
// It returns the number of extra frames consumed for new page-table
// structures, which is 1 when a table had to be created and 0 otherwise.
// Mapping a page that is already mapped returns ErrAlreadyMapped without
// consuming anything; callers decide whether a collision is recoverable.
func (m *Manager) Map(
	dir *Directory,
	vaddr uint32,
	paddr pmm.PAddr,
	flag Flag,
) (extraFrames int, err error) {
	dirSlot := DirSlot(vaddr)
	table, _ := dir.Table(dirSlot)

	if table != nil {
		if page, _ := table.Page(TableSlot(vaddr)); page.Valid() {
			return 0, fmt.Errorf("%w: %#x", ErrAlreadyMapped, vaddr)
		}
	} else {
		table, err = m.AllocTable()
		if err != nil {
			return 0, err
		}

		tableFlag := FlagWritable
		if flag&FlagUser != 0 {
			tableFlag |= FlagUser
		}
		dir.MapTable(dirSlot, table, tableFlag)
		extraFrames = 1
	}

	table.MapPage(TableSlot(vaddr), paddr, flag)

	return extraFrames, nil
}

// Translate walks an address space and returns the physical address and
// flags that a virtual address resolves to.
func (m *Manager) Translate(dir *Directory, vaddr uint32) (pmm.PAddr, Flag, bool) {
	table, _ := dir.Table(DirSlot(vaddr))
	if table == nil {
		return pmm.NullPAddr, 0, false
	}

	paddr, flag := table.Page(TableSlot(vaddr))
	if !paddr.Valid() {
		return pmm.NullPAddr, 0, false
	}

	offset := vaddr & (pmm.PageSize - 1)
	return paddr + pmm.PAddr(offset), flag, true
}

// PageBytes exposes the frame a physical address belongs to through the
// identity-mapped kernel window.
func (m *Manager) PageBytes(paddr pmm.PAddr) []byte {
	return m.frames.PageBytes(paddr)
}

// CopyKernelSpace aliases the kernel-shared tables into the upper half of
// an address space, so a process can trap into kernel code without any
// further mapping step. The aliased tables are not owned by the process.
func (m *Manager) CopyKernelSpace(dir *Directory) {
	for i, table := range m.kernelTables {
		slot := UserDirEntries + i
		if dir.tables[slot] != nil {
			continue
		}

		dir.MapTable(slot, table, FlagWritable)
	}
}

// KernelFrameCount returns the number of frames permanently held by the
// kernel-shared mappings.
func (m *Manager) KernelFrameCount() int {
	return m.kernelFrames
}
