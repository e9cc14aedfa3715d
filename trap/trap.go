// Package trap models the interrupt-descriptor table of the simulated
// machine. Kernel subsystems install handlers on vectors once; dispatching
// a vector runs the installed handler.
package trap

import "fmt"

// NumVectors is the number of interrupt vectors.
const NumVectors = 256

// SyscallVector is the vector user processes use to enter the kernel.
const SyscallVector = 0x80

// A Handler services one trap. The context argument is the register
// snapshot of the interrupted code.
type Handler func(ctx interface{})

// A Table routes trap vectors to handlers.
type Table struct {
	name     string
	handlers [NumVectors]Handler
}

// NewTable creates an empty trap table.
func NewTable(name string) *Table {
	return &Table{name: name}
}

// Name returns the name of the table.
func (t *Table) Name() string {
	return t.name
}

// Register installs a handler on a vector. Vectors are installed once at
// subsystem initialization; a second install on the same vector is a
// programming fault.
func (t *Table) Register(vector int, h Handler) {
	if t.handlers[vector] != nil {
		panic(fmt.Sprintf(
			"trap %s: vector %#x is already installed", t.name, vector))
	}

	t.handlers[vector] = h
}

// Installed reports whether a vector has a handler.
func (t *Table) Installed(vector int) bool {
	return t.handlers[vector] != nil
}

// Dispatch runs the handler of a vector.
func (t *Table) Dispatch(vector int, ctx interface{}) {
	h := t.handlers[vector]
	if h == nil {
		panic(fmt.Sprintf(
			"trap %s: vector %#x has no handler", t.name, vector))
	}

	h(ctx)
}
