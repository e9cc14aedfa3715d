// Package monitoring turns a running simulated kernel into a small web
// server, so the live process table and frame accounting can be inspected
// from a browser while a run is in progress.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/pkg/browser"
	"github.com/shirou/gopsutil/process"

	"github.com/xdsb/airix/mem/pmm"
	"github.com/xdsb/airix/proc"
	"github.com/xdsb/airix/sched"
)

// Monitor exposes a running kernel over HTTP.
type Monitor struct {
	kernel     *proc.Comp
	frames     *pmm.Allocator
	scheduler  *sched.RoundRobin
	portNumber int
	url        string
}

// NewMonitor creates a new Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n",
			portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterKernel registers the lifecycle controller to be monitored.
func (m *Monitor) RegisterKernel(k *proc.Comp) {
	m.kernel = k
}

// RegisterFrameAllocator registers the physical memory to be monitored.
func (m *Monitor) RegisterFrameAllocator(a *pmm.Allocator) {
	m.frames = a
}

// RegisterScheduler registers the scheduler to be monitored.
func (m *Monitor) RegisterScheduler(s *sched.RoundRobin) {
	m.scheduler = s
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/procs", m.listProcs)
	r.HandleFunc("/api/proc/{pid}", m.procDetails)
	r.HandleFunc("/api/frames", m.frameStats)
	r.HandleFunc("/api/runqueue", m.runQueue)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.HandleFunc("/", m.index)

	return r
}

// StartServer starts the monitor as a web server.
func (m *Monitor) StartServer() {
	http.Handle("/", m.router())

	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	m.url = fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring kernel with %s\n", m.url)

	go func() {
		err = http.Serve(listener, nil)
		dieOnErr(err)
	}()
}

// OpenDashboard opens the monitor page in the default browser.
func (m *Monitor) OpenDashboard() {
	if m.url == "" {
		return
	}

	err := browser.OpenURL(m.url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open browser: %v\n", err)
	}
}

type procRsp struct {
	PID         int32  `json:"pid"`
	State       string `json:"state"`
	Status      int    `json:"status"`
	ParentPID   int32  `json:"parent_pid"`
	OwnedFrames int    `json:"owned_frames"`
	Entry       uint32 `json:"entry"`
}

func procToRsp(p *proc.Process) procRsp {
	return procRsp{
		PID:         int32(p.PID),
		State:       p.State.String(),
		Status:      p.Status,
		ParentPID:   int32(p.ParentPID),
		OwnedFrames: p.OwnedFrames,
		Entry:       p.Entry,
	}
}

func (m *Monitor) listProcs(w http.ResponseWriter, _ *http.Request) {
	rsp := make([]procRsp, 0)
	for _, p := range m.kernel.LiveProcesses() {
		rsp = append(rsp, procToRsp(p))
	}

	writeJSON(w, rsp)
}

func (m *Monitor) procDetails(w http.ResponseWriter, r *http.Request) {
	pid, err := strconv.Atoi(mux.Vars(r)["pid"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	p, found := m.kernel.Lookup(proc.PID(pid))
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(w, procToRsp(p))
}

type frameRsp struct {
	TotalPages int `json:"total_pages"`
	FreePages  int `json:"free_pages"`
}

func (m *Monitor) frameStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, frameRsp{
		TotalPages: m.frames.TotalPageCount(),
		FreePages:  m.frames.FreePageCount(),
	})
}

type runQueueRsp struct {
	PIDs     []proc.PID `json:"pids"`
	Switches int        `json:"switches"`
}

func (m *Monitor) runQueue(w http.ResponseWriter, _ *http.Request) {
	if m.scheduler == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	writeJSON(w, runQueueRsp{
		PIDs:     m.scheduler.Snapshot(),
		Switches: m.scheduler.Switches(),
	})
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	self, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := self.CPUPercent()
	dieOnErr(err)

	memorySize, err := self.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	dieOnErr(err)

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	rsp, err := json.Marshal(prof)
	dieOnErr(err)

	_, err = w.Write(rsp)
	dieOnErr(err)
}

func (m *Monitor) index(w http.ResponseWriter, _ *http.Request) {
	fmt.Fprint(w, `<html><body>
<h1>Airix Kernel Monitor</h1>
<ul>
<li><a href="/api/procs">Process table</a></li>
<li><a href="/api/frames">Frame accounting</a></li>
<li><a href="/api/runqueue">Run queue</a></li>
<li><a href="/api/resource">Host resources</a></li>
</ul>
</body></html>`)
}

func writeJSON(w http.ResponseWriter, rsp any) {
	data, err := json.Marshal(rsp)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
