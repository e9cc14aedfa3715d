package monitoring

import (
	"encoding/json"
	"net/http/httptest"
	"strconv"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xdsb/airix/loader"
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
	"github.com/xdsb/airix/proc"
	"github.com/xdsb/airix/sched"
	"github.com/xdsb/airix/trap"
)

func sampleImage() []byte {
	return loader.MakeImageBuilder().
		WithEntry(0x08048000).
		WithSegment(loader.Segment{
			VAddr: 0x08048000,
			Data:  []byte{0x90, 0xc3},
		}).
		Build()
}

var _ = Describe("Monitor", func() {
	var (
		frames    *pmm.Allocator
		scheduler *sched.RoundRobin
		kernel    *proc.Comp
		m         *Monitor
	)

	BeforeEach(func() {
		frames = pmm.MakeBuilder().WithNumFrames(64).Build("PMM")
		spaces := vmm.MakeBuilder().WithFrameAllocator(frames).Build("VMM")
		imageLoader := loader.MakeBuilder().
			WithFrameAllocator(frames).
			WithSpaceManager(spaces).
			Build("Loader")
		scheduler = sched.NewRoundRobin("Sched")
		kernel = proc.MakeBuilder().
			WithFrameAllocator(frames).
			WithSpaceManager(spaces).
			WithLoader(imageLoader).
			WithScheduler(scheduler).
			WithTrapTable(trap.NewTable("IDT")).
			Build("Kernel")

		m = NewMonitor()
		m.RegisterKernel(kernel)
		m.RegisterFrameAllocator(frames)
		m.RegisterScheduler(scheduler)
	})

	It("should list live processes", func() {
		Expect(kernel.Exec(sampleImage())).To(Succeed())

		w := httptest.NewRecorder()
		m.listProcs(w, httptest.NewRequest("GET", "/api/procs", nil))

		var rsp []procRsp
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(HaveLen(1))
		Expect(rsp[0].State).To(Equal("running"))
		Expect(rsp[0].Entry).To(Equal(uint32(0x08048000)))
	})

	It("should describe one process", func() {
		Expect(kernel.Exec(sampleImage())).To(Succeed())
		p := kernel.LiveProcesses()[0]

		r := httptest.NewRequest(
			"GET", "/api/proc/"+strconv.Itoa(int(p.PID)), nil)
		w := httptest.NewRecorder()
		m.router().ServeHTTP(w, r)

		var rsp procRsp
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.PID).To(Equal(int32(p.PID)))
		Expect(rsp.OwnedFrames).To(Equal(p.OwnedFrames))
	})

	It("should report 404 for unknown processes", func() {
		r := httptest.NewRequest("GET", "/api/proc/42", nil)
		w := httptest.NewRecorder()
		m.router().ServeHTTP(w, r)

		Expect(w.Code).To(Equal(404))
	})

	It("should report frame accounting", func() {
		w := httptest.NewRecorder()
		m.frameStats(w, httptest.NewRequest("GET", "/api/frames", nil))

		var rsp frameRsp
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.TotalPages).To(Equal(frames.TotalPageCount()))
		Expect(rsp.FreePages).To(Equal(frames.FreePageCount()))
	})

	It("should report the run queue", func() {
		Expect(kernel.Exec(sampleImage())).To(Succeed())
		Expect(kernel.Exec(sampleImage())).To(Succeed())
		scheduler.Yield()

		w := httptest.NewRecorder()
		m.runQueue(w, httptest.NewRequest("GET", "/api/runqueue", nil))

		var rsp runQueueRsp
		Expect(json.Unmarshal(w.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.PIDs).To(HaveLen(2))
		Expect(rsp.Switches).To(Equal(1))
	})
})
