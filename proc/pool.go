package proc

import (
	"errors"
	"fmt"
)

// ErrNoPID is returned when every process identifier is in use.
var ErrNoPID = errors.New("out of process identifiers")

// ErrPoolExhausted is returned when every process record is in use.
var ErrPoolExhausted = errors.New("process record pool exhausted")

// A pool recycles a fixed number of process records. Records leave the pool
// zeroed and holding a freshly assigned PID; they come back only after
// their address space is fully reclaimed.
type pool struct {
	name    string
	records []Process
	free    []int
	inUse   []bool
	pids    *pidAllocator
}

func newPool(name string, procMax int) *pool {
	p := &pool{
		name:    name,
		records: make([]Process, procMax),
		inUse:   make([]bool, procMax),
		pids:    newPIDAllocator(procMax),
	}

	p.free = make([]int, 0, procMax)
	for i := procMax - 1; i >= 0; i-- {
		p.free = append(p.free, i)
	}

	return p
}

// acquire hands out a zeroed record with a fresh PID. If PID allocation
// fails the record goes straight back, so a record is never exposed with an
// invalid PID.
func (p *pool) acquire() (*Process, error) {
	if len(p.free) == 0 {
		return nil, ErrPoolExhausted
	}

	index := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.inUse[index] = true

	record := &p.records[index]
	*record = Process{
		PID:       InvalidPID,
		ParentPID: InvalidPID,
		poolIndex: index,
	}

	record.PID = p.pids.allocate()
	if record.PID == InvalidPID {
		p.release(record)
		return nil, ErrNoPID
	}

	return record, nil
}

// release returns a record to the pool. A record that still owns frames or
// an address space is unreachable memory from here on, so the simulation
// halts instead of leaking.
func (p *pool) release(record *Process) {
	if record.Space != nil {
		panic(fmt.Sprintf(
			"%s: releasing proc(%d) with a live address space",
			p.name, record.PID))
	}

	if record.OwnedFrames != 0 {
		panic(fmt.Sprintf(
			"%s: releasing proc(%d) leaks %d frames",
			p.name, record.PID, record.OwnedFrames))
	}

	if record.PID != InvalidPID {
		p.pids.release(record.PID)
	}

	record.State = StateUninitialized
	record.PID = InvalidPID

	p.inUse[record.poolIndex] = false
	p.free = append(p.free, record.poolIndex)
}

// lookup finds the live record holding a PID.
func (p *pool) lookup(pid PID) (*Process, bool) {
	if pid == InvalidPID {
		return nil, false
	}

	for i := range p.records {
		if p.inUse[i] && p.records[i].PID == pid {
			return &p.records[i], true
		}
	}

	return nil, false
}

// live returns every record currently checked out of the pool.
func (p *pool) live() []*Process {
	var records []*Process
	for i := range p.records {
		if p.inUse[i] {
			records = append(records, &p.records[i])
		}
	}
	return records
}
