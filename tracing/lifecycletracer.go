// Package tracing records process lifecycle events through the data
// recorder, one row per exec, clone, exit, and destroy.
package tracing

import (
	"time"

	"github.com/xdsb/airix/datarecording"
	"github.com/xdsb/airix/hooking"
	"github.com/xdsb/airix/proc"
)

const lifecycleTable = "proc_lifecycle"

type lifecycleEntry struct {
	TimeNS      int64
	Event       string
	PID         int32
	ParentPID   int32
	State       string
	Status      int
	OwnedFrames int
	Entry       uint32
}

// A LifecycleTracer is a hook that persists every lifecycle transition of
// the kernel it is attached to.
type LifecycleTracer struct {
	backend datarecording.DataRecorder
}

// NewLifecycleTracer creates a tracer writing to the given backend and
// creates its table.
func NewLifecycleTracer(backend datarecording.DataRecorder) *LifecycleTracer {
	backend.CreateTable(lifecycleTable, lifecycleEntry{})

	return &LifecycleTracer{backend: backend}
}

// AttachTo registers the tracer on a lifecycle controller.
func (t *LifecycleTracer) AttachTo(kernel *proc.Comp) {
	kernel.AcceptHook(t)
}

// Func records one lifecycle event.
func (t *LifecycleTracer) Func(ctx hooking.HookCtx) {
	p, ok := ctx.Item.(*proc.Process)
	if !ok {
		return
	}

	t.backend.InsertData(lifecycleTable, lifecycleEntry{
		TimeNS:      time.Now().UnixNano(),
		Event:       ctx.Pos.Name,
		PID:         int32(p.PID),
		ParentPID:   int32(p.ParentPID),
		State:       p.State.String(),
		Status:      p.Status,
		OwnedFrames: p.OwnedFrames,
		Entry:       p.Entry,
	})
}
