// Package diag renders fault diagnostics for a page fault or protection
// fault that reaches the kernel with no handler: a one-line fault report
// and, when the bytes of the faulting instruction are available, its
// disassembly. The register dump (proc.DumpIntrFrame) and the call chain
// (caller.Callerdump) are not produced here. Grounded on userprog/exception.c's
// page_fault handler from original_source/, which prints the faulting
// address, the instruction pointer and whether the access was a write
// before killing the process.
package diag

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

/// FaultReport describes one unhandled fault for the panic path.
type FaultReport struct {
	FaultAddr uintptr
	Rip       uintptr
	Write     bool
	Present   bool
}

/// String renders the report the way page_fault's printf does, adapted to
/// the register names this kernel uses.
func (r FaultReport) String() string {
	kind := "read"
	if r.Write {
		kind = "write"
	}
	return fmt.Sprintf("fault: %s access to %#x at rip %#x (present=%v)",
		kind, r.FaultAddr, r.Rip, r.Present)
}

/// Disassemble decodes the single instruction at the start of code (the
/// bytes found at Rip when the kernel page containing it is still
/// mapped), the equivalent of examining the faulting instruction by hand
/// in a debugger. It returns a placeholder string rather than an error
/// when code is empty or does not decode, since this is a best-effort
/// diagnostic, never something callers branch on.
func Disassemble(code []byte, pc uint64) string {
	if len(code) == 0 {
		return "<no instruction bytes available>"
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("<undecodable: %v>", err)
	}
	return x86asm.GNUSyntax(inst, pc, nil)
}
