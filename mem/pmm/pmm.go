// Package pmm implements the physical memory manager. It owns a fixed pool
// of page-sized frames backed by simulated physical memory and hands them
// out one at a time.
package pmm

import (
	"errors"
	"fmt"
)

// A PAddr is a 32-bit physical address.
type PAddr uint32

const (
	// Log2PageSize is the number of bits of the in-page offset.
	Log2PageSize = 12

	// PageSize is the number of bytes in one frame.
	PageSize = 1 << Log2PageSize
)

// NullPAddr is returned by the allocator when it fails to reserve a frame.
// Frame 0 is permanently reserved so that the null address never aliases a
// real frame.
const NullPAddr PAddr = 0

// Valid returns true if the address refers to a real frame.
func (a PAddr) Valid() bool {
	return a != NullPAddr
}

// FrameIndex returns the index of the frame that holds the address.
func (a PAddr) FrameIndex() uint32 {
	return uint32(a) >> Log2PageSize
}

// ErrOutOfMemory is returned when no free frame is left.
var ErrOutOfMemory = errors.New("out of physical memory")

// An Allocator hands out physical frames from a fixed-size simulated
// physical memory. It is owned by a single logical thread of kernel control
// and performs no internal locking.
type Allocator struct {
	name      string
	memory    []byte
	freeList  []uint32
	allocated []bool
	numFrames int
}

// Name returns the name of the allocator.
func (a *Allocator) Name() string {
	return a.name
}

// AllocPage reserves one frame and returns its physical address. The frame
// content is zeroed.
func (a *Allocator) AllocPage() (PAddr, error) {
	if len(a.freeList) == 0 {
		return NullPAddr, ErrOutOfMemory
	}

	frame := a.freeList[len(a.freeList)-1]
	a.freeList = a.freeList[:len(a.freeList)-1]
	a.allocated[frame] = true

	paddr := PAddr(frame << Log2PageSize)
	page := a.PageBytes(paddr)
	for i := range page {
		page[i] = 0
	}

	return paddr, nil
}

// FreePage returns a frame to the allocator. Freeing an address that is not
// the base of a live frame means the kernel's frame bookkeeping is broken,
// so it halts the simulation.
func (a *Allocator) FreePage(paddr PAddr) {
	frame := a.frameMustBeLive(paddr)

	a.allocated[frame] = false
	a.freeList = append(a.freeList, frame)
}

// PageBytes exposes the frame content through the identity-mapped kernel
// window, as one page-sized slice.
func (a *Allocator) PageBytes(paddr PAddr) []byte {
	frame := a.frameMustBeLive(paddr)

	start := int(frame) << Log2PageSize
	return a.memory[start : start+PageSize]
}

// FreePageCount returns the number of frames currently available.
func (a *Allocator) FreePageCount() int {
	return len(a.freeList)
}

// TotalPageCount returns the number of allocatable frames.
func (a *Allocator) TotalPageCount() int {
	return a.numFrames - 1
}

func (a *Allocator) frameMustBeLive(paddr PAddr) uint32 {
	if uint32(paddr)%PageSize != 0 {
		panic(fmt.Sprintf("pmm %s: address %#x is not frame aligned",
			a.name, uint32(paddr)))
	}

	frame := paddr.FrameIndex()
	if frame == 0 || int(frame) >= a.numFrames {
		panic(fmt.Sprintf("pmm %s: address %#x is outside physical memory",
			a.name, uint32(paddr)))
	}

	if !a.allocated[frame] {
		panic(fmt.Sprintf("pmm %s: frame %d is not allocated",
			a.name, frame))
	}

	return frame
}
