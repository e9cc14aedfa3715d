package simulation

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xdsb/airix/loader"
	"github.com/xdsb/airix/trap"
)

func helloImage() []byte {
	return loader.MakeImageBuilder().
		WithEntry(0x08048000).
		WithSegment(loader.Segment{
			VAddr: 0x08048000,
			Data:  []byte{0x90, 0x90, 0xc3},
		}).
		Build()
}

var _ = Describe("Simulation", func() {
	var simulation *Simulation

	BeforeEach(func() {
		simulation = MakeBuilder().
			WithNumFrames(256).
			WithoutMonitoring().
			Build()
	})

	AfterEach(func() {
		simulation.Terminate()

		os.Remove("airix_run_" + simulation.ID() + ".sqlite3")
	})

	It("should assemble a whole machine", func() {
		Expect(simulation.Kernel()).ToNot(BeNil())
		Expect(simulation.FrameAllocator()).ToNot(BeNil())
		Expect(simulation.SpaceManager()).ToNot(BeNil())
		Expect(simulation.Loader()).ToNot(BeNil())
		Expect(simulation.Scheduler()).ToNot(BeNil())
		Expect(simulation.DataRecorder()).ToNot(BeNil())
		Expect(simulation.Monitor()).To(BeNil())
	})

	It("should install the syscall vector on the first exec", func() {
		Expect(simulation.TrapTable().Installed(trap.SyscallVector)).
			To(BeFalse())

		Expect(simulation.Kernel().Exec(helloImage())).To(Succeed())

		Expect(simulation.TrapTable().Installed(trap.SyscallVector)).
			To(BeTrue())
	})

	It("should run a fork-exit lifecycle without losing frames", func() {
		framesBefore := simulation.FrameAllocator().FreePageCount()

		kernel := simulation.Kernel()
		Expect(kernel.Exec(helloImage())).To(Succeed())

		simulation.Scheduler().Yield()
		parent := simulation.Scheduler().Current()
		Expect(parent).ToNot(BeNil())

		child, err := kernel.Clone(parent)
		Expect(err).To(BeNil())
		Expect(child.OwnedFrames).To(Equal(parent.OwnedFrames))

		kernel.Exit(parent, 0)
		kernel.Exit(child, 0)
		Expect(kernel.LiveProcesses()).To(HaveLen(2))

		Expect(simulation.DestroyRetired()).To(Equal(2))
		Expect(kernel.LiveProcesses()).To(BeEmpty())
		Expect(simulation.FrameAllocator().FreePageCount()).
			To(Equal(framesBefore))
	})

	Context("Builder with custom output file", func() {
		var customSim *Simulation

		AfterEach(func() {
			if customSim != nil {
				customSim.Terminate()
				os.Remove("test_custom_output.sqlite3")
				customSim = nil
			}
		})

		It("should allow a custom output file to be set", func() {
			customSim = MakeBuilder().
				WithNumFrames(64).
				WithoutMonitoring().
				WithOutputFileName("test_custom_output").
				Build()

			Expect(customSim).ToNot(BeNil())
			Expect(customSim.DataRecorder()).ToNot(BeNil())
		})
	})

	It("should refuse a monitor port without monitoring", func() {
		Expect(func() {
			MakeBuilder().
				WithoutMonitoring().
				WithMonitorPort(8080).
				Build()
		}).To(Panic())
	})
})
