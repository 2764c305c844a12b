// Package ustack builds the initial user stack image for a freshly
// exec'd process: argv strings, the 16-byte alignment padding, the argv
// pointer array, and the fake return address, grounded on
// userprog/process.c's setup_stack()/set_userstack() (the #else VM
// variant, which lazily allocates the first stack page) from
// original_source/.
package ustack

import (
	"encoding/binary"

	"defs"
	"mem"
	"pgtbl"
	"spt"
)

/// Built describes the constructed stack: the initial stack pointer to
/// load into rsp and argc/argv's location for the process entry ABI.
type Built struct {
	Rsp  uintptr
	Argc int
	Argv uintptr
}

/// Build lazily maps the top stack page into table and lays out argv on
/// it, the equivalent of setup_stack followed by set_userstack.
//
// The reference implementation's set_userstack pushes the fake return
// address without re-aligning afterward, leaving rsp misaligned for the
// callee's prologue; that is corrected here by computing the 16-byte
// alignment once the fake return address is already accounted for.
func Build(table *spt.Spt_t, argv []string) (*Built, defs.Err_t) {
	stackPageVa := pgtbl.USER_STACK - uintptr(mem.PGSIZE)
	if !table.AllocAnonPage(stackPageVa, true) {
		return nil, defs.ENOMEM
	}
	if !table.ClaimPage(stackPageVa) {
		return nil, defs.ENOMEM
	}
	kpage := table.KPage(stackPageVa)
	if kpage == nil {
		return nil, defs.ENOMEM
	}

	sp := pgtbl.USER_STACK
	write := func(n int) []byte {
		sp -= uintptr(n)
		off := sp - stackPageVa
		return kpage[off : off+uintptr(n)]
	}

	argPtrs := make([]uintptr, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		n := len(s) + 1
		buf := write(n)
		copy(buf, s)
		buf[n-1] = 0
		argPtrs[i] = sp
	}

	// word-align before the argv pointer array so the array itself, and
	// everything pushed after it, sits on a natural boundary.
	for sp%8 != 0 {
		sp--
	}

	// NULL sentinel terminates argv.
	binary.LittleEndian.PutUint64(write(8), 0)

	for i := len(argPtrs) - 1; i >= 0; i-- {
		binary.LittleEndian.PutUint64(write(8), uint64(argPtrs[i]))
	}
	argvAt := sp

	// pad before pushing the fake return address so that rsp is 16-byte
	// aligned once that 8-byte slot has been pushed.
	for (sp-8)%16 != 0 {
		sp--
	}
	binary.LittleEndian.PutUint64(write(8), 0)

	return &Built{Rsp: sp, Argc: len(argv), Argv: argvAt}, 0
}
