package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xdsb/airix/loader"
	"github.com/xdsb/airix/simulation"
)

var runFlags struct {
	numFrames   int
	procMax     int
	numForks    int
	monitorPort int
	noMonitor   bool
	openBrowser bool
	output      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an exec/fork/exit scenario on the simulated kernel.",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runScenario()
	},
}

func init() {
	runCmd.Flags().IntVar(&runFlags.numFrames, "frames",
		envInt("AIRIX_FRAMES", 4096),
		"number of physical frames of the simulated machine")
	runCmd.Flags().IntVar(&runFlags.procMax, "procs",
		envInt("AIRIX_PROCS", 1024),
		"maximum number of simultaneously live processes")
	runCmd.Flags().IntVar(&runFlags.numForks, "forks", 3,
		"number of times the first process forks")
	runCmd.Flags().IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"port of the monitoring server, 0 picks a random port")
	runCmd.Flags().BoolVar(&runFlags.noMonitor, "no-monitor", false,
		"disable the monitoring server")
	runCmd.Flags().BoolVar(&runFlags.openBrowser, "open-browser", false,
		"open the monitoring dashboard in the default browser")
	runCmd.Flags().StringVar(&runFlags.output, "output", "",
		"output file name of the run recording")

	rootCmd.AddCommand(runCmd)
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func runScenario() error {
	builder := simulation.MakeBuilder().
		WithNumFrames(runFlags.numFrames).
		WithProcMax(runFlags.procMax).
		WithOutputFileName(runFlags.output)

	if runFlags.noMonitor {
		builder = builder.WithoutMonitoring()
	} else if runFlags.monitorPort > 0 {
		builder = builder.WithMonitorPort(runFlags.monitorPort)
	}

	s := builder.Build()
	defer s.Terminate()

	if runFlags.openBrowser && s.Monitor() != nil {
		s.Monitor().OpenDashboard()
	}

	kernel := s.Kernel()
	freeBefore := s.FrameAllocator().FreePageCount()

	image := demoImage()
	if err := kernel.Exec(image); err != nil {
		return fmt.Errorf("exec demo image: %w", err)
	}

	s.Scheduler().Yield()
	parent := s.Scheduler().Current()
	fmt.Printf("exec: proc(%d) running with %d frames, entry %#x\n",
		parent.PID, parent.OwnedFrames, parent.Entry)

	for i := 0; i < runFlags.numForks; i++ {
		child, err := kernel.Clone(parent)
		if err != nil {
			return fmt.Errorf("fork %d: %w", i, err)
		}
		fmt.Printf("fork: proc(%d) -> proc(%d), %d frames each\n",
			parent.PID, child.PID, child.OwnedFrames)
	}

	kernel.Exit(parent, 0)
	fmt.Printf("exit: proc(%d) status 0\n", parent.PID)

	// Drain the children the same way.
	for s.Scheduler().Current() != nil {
		kernel.Exit(s.Scheduler().Current(), 0)
	}

	destroyed := s.DestroyRetired()
	freeAfter := s.FrameAllocator().FreePageCount()

	fmt.Printf("destroyed %d processes; free frames %d -> %d\n",
		destroyed, freeBefore, freeAfter)
	if freeBefore != freeAfter {
		return fmt.Errorf(
			"frame accounting mismatch: %d before, %d after",
			freeBefore, freeAfter)
	}

	return nil
}

// demoImage assembles a minimal two-segment image: one read-only code
// page and one writable data page.
func demoImage() []byte {
	code := make([]byte, 64)
	for i := range code {
		code[i] = 0x90 // nop
	}

	return loader.MakeImageBuilder().
		WithEntry(0x08048000).
		WithSegment(loader.Segment{
			VAddr: 0x08048000,
			Data:  code,
		}).
		WithSegment(loader.Segment{
			VAddr:    0x08049000,
			Data:     []byte("airix demo data"),
			Writable: true,
		}).
		Build()
}
