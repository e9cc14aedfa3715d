package proc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/xdsb/airix/loader"
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
	"github.com/xdsb/airix/trap"
)

const (
	testCodeVAddr = 0x08048000
	testDataVAddr = 0x08049000
)

func testImage() []byte {
	return loader.MakeImageBuilder().
		WithEntry(testCodeVAddr).
		WithSegment(loader.Segment{
			VAddr: testCodeVAddr,
			Data:  []byte{0x90, 0x90, 0xc3},
		}).
		WithSegment(loader.Segment{
			VAddr:    testDataVAddr,
			Data:     []byte("hello airix"),
			Writable: true,
		}).
		Build()
}

var _ = Describe("Lifecycle Controller", func() {
	var (
		mockCtrl  *gomock.Controller
		scheduler *MockScheduler
		frames    *pmm.Allocator
		spaces    *vmm.Manager
		idt       *trap.Table
		kernel    *Comp
		added     []*Process
	)

	makeKernel := func(numFrames, procMax int) {
		frames = pmm.MakeBuilder().
			WithNumFrames(numFrames).
			Build("PMM")
		spaces = vmm.MakeBuilder().
			WithFrameAllocator(frames).
			Build("VMM")
		ld := loader.MakeBuilder().
			WithFrameAllocator(frames).
			WithSpaceManager(spaces).
			Build("Loader")
		idt = trap.NewTable("IDT")
		kernel = MakeBuilder().
			WithProcMax(procMax).
			WithFrameAllocator(frames).
			WithSpaceManager(spaces).
			WithLoader(ld).
			WithScheduler(scheduler).
			WithTrapTable(idt).
			Build("Proc")
	}

	expectAdds := func() {
		scheduler.EXPECT().
			Add(gomock.Any()).
			Do(func(p *Process) { added = append(added, p) }).
			AnyTimes()
	}

	readUserPage := func(p *Process, vaddr uint32) []byte {
		paddr, _, found := spaces.Translate(p.Space, vaddr)
		Expect(found).To(BeTrue())
		return frames.PageBytes(paddr)
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		scheduler = NewMockScheduler(mockCtrl)
		added = nil
		makeKernel(256, 8)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	Context("exec", func() {
		It("should create a running process from an image", func() {
			expectAdds()

			err := kernel.Exec(testImage())

			Expect(err).ToNot(HaveOccurred())
			Expect(added).To(HaveLen(1))

			p := added[0]
			Expect(p.State).To(Equal(StateRunning))
			Expect(p.Entry).To(Equal(uint32(testCodeVAddr)))
			Expect(p.OwnedFrames).To(BeNumerically(">", 0))
			Expect(p.KernelStackTop).To(Equal(uint32(KernelStackTop)))
			Expect(p.UserStackTop).To(Equal(uint32(UserStackTop)))
			Expect(p.ParentPID).To(Equal(InvalidPID))
		})

		It("should charge the directory, tables, pages, and stacks", func() {
			expectAdds()
			before := frames.FreePageCount()

			err := kernel.Exec(testImage())

			Expect(err).ToNot(HaveOccurred())
			// 1 directory, 1 image table, 2 image pages, 2 stack tables,
			// 2 stack pages.
			Expect(added[0].OwnedFrames).To(Equal(8))
			Expect(before - frames.FreePageCount()).To(Equal(8))
		})

		It("should map the stacks in different directory slots", func() {
			Expect(vmm.DirSlot(KernelStackTop - pmm.PageSize)).ToNot(
				Equal(vmm.DirSlot(UserStackTop - pmm.PageSize)))
		})

		It("should install the syscall vector exactly once", func() {
			expectAdds()

			Expect(idt.Installed(trap.SyscallVector)).To(BeFalse())

			Expect(kernel.Exec(testImage())).To(Succeed())
			Expect(idt.Installed(trap.SyscallVector)).To(BeTrue())

			// A second exec must not install the vector again.
			Expect(kernel.Exec(testImage())).To(Succeed())
		})

		It("should reject a bad image without consuming frames", func() {
			before := frames.FreePageCount()

			err := kernel.Exec([]byte("not an image"))

			Expect(err).To(MatchError(loader.ErrBadImage))
			Expect(frames.FreePageCount()).To(Equal(before))
			Expect(kernel.LiveProcesses()).To(BeEmpty())
			Expect(idt.Installed(trap.SyscallVector)).To(BeFalse())
		})

		It("should survive an image whose segments overlap", func() {
			before := frames.FreePageCount()

			image := loader.MakeImageBuilder().
				WithEntry(testCodeVAddr).
				WithSegment(loader.Segment{
					VAddr: testCodeVAddr,
					Data:  []byte{0x90},
				}).
				WithSegment(loader.Segment{
					VAddr: testCodeVAddr,
					Data:  []byte{0xc3},
				}).
				Build()

			var err error
			Expect(func() { err = kernel.Exec(image) }).ToNot(Panic())

			Expect(err).To(MatchError(loader.ErrBadImage))
			Expect(frames.FreePageCount()).To(Equal(before))
			Expect(kernel.LiveProcesses()).To(BeEmpty())
		})

		It("should survive an image that overlays the stack ranges", func() {
			before := frames.FreePageCount()

			image := loader.MakeImageBuilder().
				WithEntry(testCodeVAddr).
				WithSegment(loader.Segment{
					VAddr: UserStackTop - pmm.PageSize,
					Data:  []byte{0x90},
				}).
				Build()

			var err error
			Expect(func() { err = kernel.Exec(image) }).ToNot(Panic())

			Expect(err).To(MatchError(vmm.ErrAlreadyMapped))
			Expect(frames.FreePageCount()).To(Equal(before))
			Expect(kernel.LiveProcesses()).To(BeEmpty())
		})

		It("should fail once every PID is in use, consuming nothing", func() {
			expectAdds()
			makeKernel(256, 2)

			Expect(kernel.Exec(testImage())).To(Succeed())
			Expect(kernel.Exec(testImage())).To(Succeed())

			before := frames.FreePageCount()
			err := kernel.Exec(testImage())

			Expect(err).To(HaveOccurred())
			Expect(frames.FreePageCount()).To(Equal(before))
			Expect(kernel.LiveProcesses()).To(HaveLen(2))
		})

		It("should reclaim every frame when a build fails at any step", func() {
			expectAdds()

			for numFrames := 2; ; numFrames++ {
				makeKernel(numFrames, 8)

				before := frames.FreePageCount()
				err := kernel.Exec(testImage())

				if err == nil {
					break
				}

				Expect(frames.FreePageCount()).To(Equal(before))
				Expect(kernel.LiveProcesses()).To(BeEmpty())
			}
		})
	})

	Context("clone", func() {
		var parent *Process

		BeforeEach(func() {
			expectAdds()
			Expect(kernel.Exec(testImage())).To(Succeed())
			parent = added[0]
		})

		It("should deep copy the parent's user space", func() {
			parent.Context.EAX = 0xdeadbeef

			clone, err := kernel.Clone(parent)

			Expect(err).ToNot(HaveOccurred())
			Expect(clone.OwnedFrames).To(Equal(parent.OwnedFrames))
			Expect(clone.State).To(Equal(StateRunning))
			Expect(clone.ParentPID).To(Equal(parent.PID))
			Expect(clone.PID).ToNot(Equal(parent.PID))
			Expect(clone.Entry).To(Equal(parent.Entry))
			Expect(clone.KernelStackTop).To(Equal(parent.KernelStackTop))
			Expect(clone.UserStackTop).To(Equal(parent.UserStackTop))
			Expect(clone.Context).To(Equal(parent.Context))
			Expect(added).To(HaveLen(2))
		})

		It("should copy pages byte for byte with identical flags", func() {
			clone, err := kernel.Clone(parent)
			Expect(err).ToNot(HaveOccurred())

			parentPAddr, parentFlag, _ := spaces.Translate(
				parent.Space, testDataVAddr)
			clonePAddr, cloneFlag, _ := spaces.Translate(
				clone.Space, testDataVAddr)

			Expect(clonePAddr).ToNot(Equal(parentPAddr))
			Expect(cloneFlag).To(Equal(parentFlag))
			Expect(readUserPage(clone, testDataVAddr)).To(
				Equal(readUserPage(parent, testDataVAddr)))
		})

		It("should keep the copies independent", func() {
			clone, err := kernel.Clone(parent)
			Expect(err).ToNot(HaveOccurred())

			readUserPage(clone, testDataVAddr)[0] = 'H'

			Expect(readUserPage(parent, testDataVAddr)[0]).To(
				Equal(byte('h')))

			readUserPage(parent, testDataVAddr)[1] = 'E'

			Expect(readUserPage(clone, testDataVAddr)[1]).To(
				Equal(byte('e')))
		})

		It("should fail cleanly when memory runs out mid copy", func() {
			// 14 frames: null frame, kernel window table, 8 for the
			// parent, and 4 left, which is not enough for a clone.
			makeKernel(14, 8)
			Expect(kernel.Exec(testImage())).To(Succeed())
			parent = added[len(added)-1]

			before := frames.FreePageCount()
			parentFrames := parent.OwnedFrames

			clone, err := kernel.Clone(parent)

			Expect(err).To(MatchError(pmm.ErrOutOfMemory))
			Expect(clone).To(BeNil())
			Expect(frames.FreePageCount()).To(Equal(before))
			Expect(parent.OwnedFrames).To(Equal(parentFrames))
			Expect(readUserPage(parent, testDataVAddr)[:11]).To(
				Equal([]byte("hello airix")))
		})

		It("should halt on a frame-count mismatch with the source", func() {
			parent.OwnedFrames++

			Expect(func() { kernel.Clone(parent) }).To(Panic())
		})
	})

	Context("exit and destroy", func() {
		var p *Process

		BeforeEach(func() {
			expectAdds()
			Expect(kernel.Exec(testImage())).To(Succeed())
			p = added[0]
		})

		It("should mark the process dead and yield", func() {
			scheduler.EXPECT().Yield()

			kernel.Exit(p, 42)

			Expect(p.State).To(Equal(StateDead))
			Expect(p.Status).To(Equal(42))
		})

		It("should free exactly the frames the process owned", func() {
			scheduler.EXPECT().Yield()

			used := p.OwnedFrames
			free := frames.FreePageCount()

			kernel.Exit(p, 0)
			kernel.Destroy(p)

			Expect(frames.FreePageCount()).To(Equal(free + used))
			Expect(kernel.LiveProcesses()).To(BeEmpty())
		})

		It("should recycle the PID after destruction", func() {
			scheduler.EXPECT().Yield()

			pid := p.PID
			kernel.Exit(p, 0)
			kernel.Destroy(p)

			_, found := kernel.Lookup(pid)
			Expect(found).To(BeFalse())
		})

		It("should halt when a destroyed process leaks frames", func() {
			scheduler.EXPECT().Yield()
			kernel.Exit(p, 0)

			p.OwnedFrames++

			Expect(func() { kernel.Destroy(p) }).To(Panic())
		})

		It("should leave a clone intact when its parent dies", func() {
			scheduler.EXPECT().Yield()

			clone, err := kernel.Clone(p)
			Expect(err).ToNot(HaveOccurred())

			cloneFrames := clone.OwnedFrames
			cloneCtx := clone.Context

			kernel.Exit(p, 0)
			kernel.Destroy(p)

			Expect(clone.OwnedFrames).To(Equal(cloneFrames))
			Expect(clone.Context).To(Equal(cloneCtx))
			Expect(readUserPage(clone, testDataVAddr)[:11]).To(
				Equal([]byte("hello airix")))

			_, parentAlive := kernel.Lookup(clone.ParentPID)
			Expect(parentAlive).To(BeFalse())
		})
	})
})

var _ = Describe("PID Allocator", func() {
	It("should issue unique PIDs until the universe is exhausted", func() {
		a := newPIDAllocator(16)

		seen := make(map[PID]bool)
		for i := 0; i < 16; i++ {
			pid := a.allocate()
			Expect(pid).ToNot(Equal(InvalidPID))
			Expect(seen[pid]).To(BeFalse())
			seen[pid] = true
		}

		Expect(a.allocate()).To(Equal(InvalidPID))
	})

	It("should reuse released PIDs round-robin, not lowest-first", func() {
		a := newPIDAllocator(4)

		Expect(a.allocate()).To(Equal(PID(0)))
		Expect(a.allocate()).To(Equal(PID(1)))
		Expect(a.allocate()).To(Equal(PID(2)))

		a.release(1)

		// The cursor is at 3, so 3 comes before the freed 1.
		Expect(a.allocate()).To(Equal(PID(3)))
		Expect(a.allocate()).To(Equal(PID(1)))
		Expect(a.allocate()).To(Equal(InvalidPID))
	})
})
