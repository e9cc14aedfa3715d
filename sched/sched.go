// Package sched implements a round-robin scheduler for the simulated
// kernel. It owns runnable process records from the moment the lifecycle
// controller hands them over until they die and are reaped for destruction.
package sched

import (
	"github.com/xdsb/airix/proc"
)

// A RoundRobin scheduler rotates through its run queue. It assumes a single
// core of control: Add and Yield are never called concurrently.
type RoundRobin struct {
	name string

	queue   []*proc.Process
	current *proc.Process
	retired []*proc.Process

	switches int
}

// NewRoundRobin creates an empty scheduler.
func NewRoundRobin(name string) *RoundRobin {
	return &RoundRobin{name: name}
}

// Name returns the name of the scheduler.
func (s *RoundRobin) Name() string {
	return s.name
}

// Add puts a runnable process at the tail of the run queue.
func (s *RoundRobin) Add(p *proc.Process) {
	s.queue = append(s.queue, p)
}

// Yield performs a context switch to the next runnable process. Dead
// processes encountered while rotating are moved to the retired list and
// never scheduled again.
func (s *RoundRobin) Yield() {
	if s.current != nil && s.current.State == proc.StateRunning {
		s.queue = append(s.queue, s.current)
	} else if s.current != nil {
		s.retired = append(s.retired, s.current)
	}
	s.current = nil

	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]

		if next.State != proc.StateRunning {
			s.retired = append(s.retired, next)
			continue
		}

		s.current = next
		s.switches++
		return
	}
}

// Current returns the process that holds the core, or nil when the core is
// idle.
func (s *RoundRobin) Current() *proc.Process {
	return s.current
}

// ReapRetired hands back the dead processes the scheduler will never run
// again, clearing its retired list. The caller is expected to destroy them.
func (s *RoundRobin) ReapRetired() []*proc.Process {
	retired := s.retired
	s.retired = nil
	return retired
}

// Len returns the number of processes waiting in the run queue, not
// counting the current one.
func (s *RoundRobin) Len() int {
	return len(s.queue)
}

// Switches returns the number of context switches performed.
func (s *RoundRobin) Switches() int {
	return s.switches
}

// Snapshot returns the PIDs of the current process and every queued
// process, in scheduling order.
func (s *RoundRobin) Snapshot() []proc.PID {
	pids := make([]proc.PID, 0, len(s.queue)+1)
	if s.current != nil {
		pids = append(pids, s.current.PID)
	}
	for _, p := range s.queue {
		pids = append(pids, p.PID)
	}
	return pids
}
