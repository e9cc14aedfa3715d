package proc

// A pidAllocator issues unique PIDs from a fixed universe of procMax
// identifiers. A rotating cursor remembers the next candidate, so released
// PIDs are reused round-robin rather than lowest-first, which reduces
// identifier aliasing between short-lived processes.
type pidAllocator struct {
	bitmap  []byte
	cursor  PID
	procMax int
}

func newPIDAllocator(procMax int) *pidAllocator {
	return &pidAllocator{
		bitmap:  make([]byte, (procMax+7)/8),
		procMax: procMax,
	}
}

// allocate returns the first free PID at or after the cursor, or InvalidPID
// when every PID is in use.
func (a *pidAllocator) allocate() PID {
	for i := 0; i < a.procMax; i++ {
		pid := a.cursor
		a.cursor = (a.cursor + 1) % PID(a.procMax)

		if a.bitmap[pid/8]&(1<<(pid%8)) == 0 {
			a.bitmap[pid/8] |= 1 << (pid % 8)
			return pid
		}
	}

	return InvalidPID
}

// release clears a PID. Callers must not release a PID that is not
// assigned; no double-release check is performed.
func (a *pidAllocator) release(pid PID) {
	a.bitmap[pid/8] &^= 1 << (pid % 8)
}
