package loader

import (
	"errors"
	"fmt"

	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
)

// A Loader maps executable images into address spaces.
type Loader struct {
	name   string
	frames *pmm.Allocator
	spaces *vmm.Manager
}

// Name returns the name of the loader.
func (l *Loader) Name() string {
	return l.name
}

// Load parses an image and maps its segments into an address space, page by
// page. It returns the entry address and the number of frames consumed.
// The frame count is accurate even when Load fails partway, so the caller
// can charge the frames to the process and reclaim them with the rest of
// the address space.
func (l *Loader) Load(
	raw []byte,
	dir *vmm.Directory,
) (entry uint32, frames int, err error) {
	img, err := parseImage(raw)
	if err != nil {
		return 0, 0, err
	}

	for _, seg := range img.segments {
		consumed, err := l.loadSegment(seg, dir)
		frames += consumed
		if err != nil {
			return 0, frames, err
		}
	}

	return img.entry, frames, nil
}

func (l *Loader) loadSegment(seg Segment, dir *vmm.Directory) (int, error) {
	flag := vmm.FlagUser
	if seg.Writable {
		flag |= vmm.FlagWritable
	}

	frames := 0
	for offset := uint32(0); offset < seg.MemSize; offset += pmm.PageSize {
		paddr, err := l.frames.AllocPage()
		if err != nil {
			return frames, err
		}
		frames++

		l.copyPagePayload(seg, offset, paddr)

		extra, err := l.spaces.Map(dir, seg.VAddr+offset, paddr, flag)
		frames += extra
		if err != nil {
			// The frame is not reachable from the tree yet, so it must be
			// returned here rather than by the address-space reclaimer.
			l.frames.FreePage(paddr)
			frames--

			// A page collision means the segments of the image overlap,
			// which is the image's fault, not the kernel's.
			if errors.Is(err, vmm.ErrAlreadyMapped) {
				err = fmt.Errorf("%w: segments overlap at %#x",
					ErrBadImage, seg.VAddr+offset)
			}

			return frames, err
		}
	}

	return frames, nil
}

func (l *Loader) copyPagePayload(seg Segment, offset uint32, paddr pmm.PAddr) {
	if offset >= uint32(len(seg.Data)) {
		return
	}

	payload := seg.Data[offset:]
	if len(payload) > pmm.PageSize {
		payload = payload[:pmm.PageSize]
	}

	copy(l.frames.PageBytes(paddr), payload)
}

// A Builder can build loaders.
type Builder struct {
	frames *pmm.Allocator
	spaces *vmm.Manager
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithFrameAllocator sets the frame allocator that provides segment frames.
func (b Builder) WithFrameAllocator(a *pmm.Allocator) Builder {
	b.frames = a
	return b
}

// WithSpaceManager sets the address-space manager used to map segments.
func (b Builder) WithSpaceManager(m *vmm.Manager) Builder {
	b.spaces = m
	return b
}

// Build returns a newly created loader.
func (b Builder) Build(name string) *Loader {
	if b.frames == nil || b.spaces == nil {
		panic("loader: a frame allocator and a space manager are required")
	}

	return &Loader{
		name:   name,
		frames: b.frames,
		spaces: b.spaces,
	}
}
