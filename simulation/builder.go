package simulation

import (
	"github.com/rs/xid"

	"github.com/xdsb/airix/datarecording"
	"github.com/xdsb/airix/loader"
	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/mem/vmm"
	"github.com/xdsb/airix/monitoring"
	"github.com/xdsb/airix/proc"
	"github.com/xdsb/airix/sched"
	"github.com/xdsb/airix/trap"
	"github.com/xdsb/airix/tracing"
)

// A Builder can build a simulation.
type Builder struct {
	numFrames      int
	procMax        int
	monitorOn      bool
	monitorPort    int
	outputFileName string
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		numFrames: 4096,
		procMax:   proc.DefaultProcMax,
		monitorOn: true,
	}
}

// WithNumFrames sets the size of the simulated physical memory, in frames.
func (b Builder) WithNumFrames(n int) Builder {
	b.numFrames = n
	return b
}

// WithProcMax sets the number of processes that can be simultaneously
// live.
func (b Builder) WithProcMax(n int) Builder {
	b.procMax = n
	return b
}

// WithoutMonitoring sets the simulation to not use monitoring.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithOutputFileName sets the custom output file name for the data
// recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
}

// Build builds the simulation. The machine it assembles runs on a single
// logical thread of control; running kernel operations from multiple
// goroutines requires external locking that this design does not provide.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		id: xid.New().String(),
	}

	outputPath := b.outputFileName
	if outputPath == "" {
		outputPath = "airix_run_" + s.id
	}
	s.dataRecorder = datarecording.NewRecorder(outputPath)

	s.frames = pmm.MakeBuilder().
		WithNumFrames(b.numFrames).
		Build("PMM")
	s.spaces = vmm.MakeBuilder().
		WithFrameAllocator(s.frames).
		Build("VMM")
	s.loader = loader.MakeBuilder().
		WithFrameAllocator(s.frames).
		WithSpaceManager(s.spaces).
		Build("Loader")
	s.traps = trap.NewTable("IDT")
	s.scheduler = sched.NewRoundRobin("Sched")

	s.kernel = proc.MakeBuilder().
		WithProcMax(b.procMax).
		WithFrameAllocator(s.frames).
		WithSpaceManager(s.spaces).
		WithLoader(s.loader).
		WithScheduler(s.scheduler).
		WithTrapTable(s.traps).
		Build("Proc")

	s.tracer = tracing.NewLifecycleTracer(s.dataRecorder)
	s.tracer.AttachTo(s.kernel)

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterKernel(s.kernel)
		s.monitor.RegisterFrameAllocator(s.frames)
		s.monitor.RegisterScheduler(s.scheduler)
		s.monitor.StartServer()
	}

	return s
}
