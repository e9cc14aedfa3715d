package loader

import (
	"encoding/binary"
	"fmt"

	"github.com/xdsb/airix/mem/pmm"
)

// An ImageBuilder assembles AXI images.
type ImageBuilder struct {
	entry    uint32
	segments []Segment
}

// MakeImageBuilder creates a new image builder.
func MakeImageBuilder() ImageBuilder {
	return ImageBuilder{}
}

// WithEntry sets the entry address of the image.
func (b ImageBuilder) WithEntry(entry uint32) ImageBuilder {
	b.entry = entry
	return b
}

// WithSegment appends a segment to the image.
func (b ImageBuilder) WithSegment(seg Segment) ImageBuilder {
	b.segments = append(b.segments, seg)
	return b
}

// Build serializes the image.
func (b ImageBuilder) Build() []byte {
	raw := make([]byte, 0, headerSize)
	raw = append(raw, Magic...)
	raw = binary.LittleEndian.AppendUint32(raw, b.entry)
	raw = binary.LittleEndian.AppendUint32(raw, uint32(len(b.segments)))

	for i, seg := range b.segments {
		memSize := seg.MemSize
		if memSize == 0 {
			memSize = pageAlignUp(uint32(len(seg.Data)))
		}

		if err := validateSegment(
			Segment{
				VAddr:   seg.VAddr,
				MemSize: memSize,
			},
			uint32(len(seg.Data)),
			uint32(i),
		); err != nil {
			panic(fmt.Sprintf("image builder: %v", err))
		}

		flags := uint32(0)
		if seg.Writable {
			flags |= segFlagWritable
		}

		raw = binary.LittleEndian.AppendUint32(raw, seg.VAddr)
		raw = binary.LittleEndian.AppendUint32(raw, memSize)
		raw = binary.LittleEndian.AppendUint32(raw, uint32(len(seg.Data)))
		raw = binary.LittleEndian.AppendUint32(raw, flags)
		raw = append(raw, seg.Data...)
	}

	return raw
}

func pageAlignUp(n uint32) uint32 {
	return (n + pmm.PageSize - 1) &^ (pmm.PageSize - 1)
}
