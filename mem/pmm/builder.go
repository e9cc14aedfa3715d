package pmm

import "fmt"

// A Builder can build frame allocators.
type Builder struct {
	numFrames int
}

// MakeBuilder creates a new builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numFrames: 4096,
	}
}

// WithNumFrames sets the number of frames of the simulated physical memory,
// including the reserved null frame.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// Build returns a newly created frame allocator.
func (b Builder) Build(name string) *Allocator {
	if b.numFrames < 2 {
		panic(fmt.Sprintf(
			"pmm %s: at least 2 frames are required, got %d",
			name, b.numFrames))
	}

	a := &Allocator{
		name:      name,
		memory:    make([]byte, b.numFrames*PageSize),
		allocated: make([]bool, b.numFrames),
		numFrames: b.numFrames,
	}

	// Frame 0 stays reserved. Frames are pushed in reverse so that low
	// frames are handed out first.
	a.freeList = make([]uint32, 0, b.numFrames-1)
	for frame := b.numFrames - 1; frame >= 1; frame-- {
		a.freeList = append(a.freeList, uint32(frame))
	}

	return a
}
