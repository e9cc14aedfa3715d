// Package loader parses executable images and maps their segments into an
// address space. The AXI format is a flat little-endian container: a header
// carrying the entry address, followed by page-aligned segments.
package loader

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
)

// Magic identifies an AXI image.
const Magic = "AXI1"

const (
	headerSize  = 12
	segmentSize = 16
)

// Segment flag bits.
const (
	segFlagWritable uint32 = 1 << iota
)

// ErrBadImage is returned when an image cannot be parsed.
var ErrBadImage = errors.New("bad executable image")

// A Segment is one contiguous region of an image. Data fills the start of
// the region; the rest, up to MemSize, is zeroed.
type Segment struct {
	VAddr    uint32
	MemSize  uint32
	Data     []byte
	Writable bool
}

type image struct {
	entry    uint32
	segments []Segment
}

func parseImage(raw []byte) (*image, error) {
	if len(raw) < headerSize || string(raw[0:4]) != Magic {
		return nil, fmt.Errorf("%w: missing magic", ErrBadImage)
	}

	img := &image{
		entry: binary.LittleEndian.Uint32(raw[4:8]),
	}
	numSegments := binary.LittleEndian.Uint32(raw[8:12])

	offset := headerSize
	for i := uint32(0); i < numSegments; i++ {
		if len(raw) < offset+segmentSize {
			return nil, fmt.Errorf(
				"%w: truncated segment header %d", ErrBadImage, i)
		}

		seg := Segment{
			VAddr:   binary.LittleEndian.Uint32(raw[offset : offset+4]),
			MemSize: binary.LittleEndian.Uint32(raw[offset+4 : offset+8]),
		}
		fileSize := binary.LittleEndian.Uint32(raw[offset+8 : offset+12])
		flags := binary.LittleEndian.Uint32(raw[offset+12 : offset+16])
		seg.Writable = flags&segFlagWritable != 0
		offset += segmentSize

		if err := validateSegment(seg, fileSize, i); err != nil {
			return nil, err
		}
		if len(raw) < offset+int(fileSize) {
			return nil, fmt.Errorf(
				"%w: truncated segment payload %d", ErrBadImage, i)
		}

		seg.Data = raw[offset : offset+int(fileSize)]
		offset += int(fileSize)

		img.segments = append(img.segments, seg)
	}

	return img, nil
}

func validateSegment(seg Segment, fileSize, index uint32) error {
	if seg.VAddr%pmm.PageSize != 0 {
		return fmt.Errorf(
			"%w: segment %d is not page aligned", ErrBadImage, index)
	}

	if seg.MemSize == 0 || fileSize > seg.MemSize {
		return fmt.Errorf(
			"%w: segment %d has invalid sizes", ErrBadImage, index)
	}

	end := uint64(seg.VAddr) + uint64(seg.MemSize)
	if end > uint64(vmm.KernelBase) {
		return fmt.Errorf(
			"%w: segment %d reaches into kernel space", ErrBadImage, index)
	}

	return nil
}
