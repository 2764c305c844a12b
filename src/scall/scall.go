// Package scall is the syscall dispatcher, grounded on
// userprog/syscall.c's syscall_handler from original_source/: one switch
// on the syscall number carried in Rax, each case validating its user
// pointers with check_address before touching them. There is no ring3
// trap here: a syscall is driven by building a proc.IntrFrame and calling
// Dispatch directly.
//
// Several corrections are folded in relative to the reference kernel:
// every case below writes its result back into f.Rax (the reference
// kernel's syscall_handler has a fallthrough case that prints
// "system call!" and kills the thread instead of returning a value; that
// dead code is not reproduced), write() reports the byte count the
// descriptor's Write actually wrote, and read() on fd 0 actually pulls bytes from the
// console instead of being a stub.
package scall

import (
	"strings"

	"defs"
	"mem"
	"pgtbl"
	"proc"
	"spt"
)

// Syscall numbers, matching the reference kernel's enum in syscall-nr.h.
const (
	SYS_HALT = iota
	SYS_EXIT
	SYS_FORK
	SYS_EXEC
	SYS_WAIT
	SYS_CREATE
	SYS_REMOVE
	SYS_OPEN
	SYS_FILESIZE
	SYS_READ
	SYS_WRITE
	SYS_SEEK
	SYS_TELL
	SYS_CLOSE
	SYS_MMAP
	SYS_MUNMAP
	SYS_GETRUSAGE
)

const maxPath = 512

// neg1 is the 64-bit two's-complement encoding of -1, the conventional
// failure return for syscalls that hand an int back to userspace.
const neg1 = ^uint64(0)

/// checkAddress validates a user buffer [addr, addr+size), the equivalent
/// of check_address: it must not be NULL, must not reach into the kernel
/// half, and must not wrap around the address space (the addr+size
/// straddle case at addr+size).
func checkAddress(addr uintptr, size int) defs.Err_t {
	if addr == 0 {
		return defs.EFAULT
	}
	end := addr + uintptr(size)
	if end < addr {
		return defs.EFAULT
	}
	if end > pgtbl.KERN_BASE {
		return defs.EFAULT
	}
	return 0
}

func copyIn(p *proc.Proc_t, addr uintptr, out []byte) defs.Err_t {
	if err := checkAddress(addr, len(out)); err != 0 {
		return err
	}
	done := 0
	for done < len(out) {
		va := addr + uintptr(done)
		pageVa := va &^ (uintptr(mem.PGSIZE) - 1)
		kpage := p.Spt.KPage(pageVa)
		if kpage == nil {
			if ferr := p.Spt.HandleFault(va, p.EntryRsp, false); ferr != 0 {
				return defs.EFAULT
			}
			kpage = p.Spt.KPage(pageVa)
			if kpage == nil {
				return defs.EFAULT
			}
		}
		off := va - pageVa
		n := copy(out[done:], kpage[off:])
		done += n
	}
	return 0
}

func copyOut(p *proc.Proc_t, addr uintptr, in []byte) defs.Err_t {
	if err := checkAddress(addr, len(in)); err != 0 {
		return err
	}
	done := 0
	for done < len(in) {
		va := addr + uintptr(done)
		pageVa := va &^ (uintptr(mem.PGSIZE) - 1)
		if p.Spt.KPage(pageVa) == nil {
			if ferr := p.Spt.HandleFault(va, p.EntryRsp, true); ferr != 0 {
				return defs.EFAULT
			}
		}
		if !p.Pml4.IsWritable(pageVa) {
			return defs.EFAULT
		}
		kpage := p.Spt.KPage(pageVa)
		off := va - pageVa
		n := copy(kpage[off:], in[done:])
		p.Pml4.SetDirty(pageVa, true)
		done += n
	}
	return 0
}

func readCString(p *proc.Proc_t, addr uintptr) (string, defs.Err_t) {
	if err := checkAddress(addr, 1); err != 0 {
		return "", err
	}
	var b strings.Builder
	for i := 0; i < maxPath; i++ {
		var c [1]byte
		if err := copyIn(p, addr+uintptr(i), c[:]); err != 0 {
			return "", err
		}
		if c[0] == 0 {
			return b.String(), 0
		}
		b.WriteByte(c[0])
	}
	return "", defs.ENAMETOOLONG
}

type sizer interface {
	Length() int64
	Seek(int64)
	Tell() int64
}

/// Dispatch executes the syscall named by f.Rax, with its arguments in
/// f.Rdi/Rsi/Rdx/R10/R8/R9, and writes the result back into f.Rax. The
/// equivalent of syscall_handler.
func Dispatch(k *proc.Kernel, p *proc.Proc_t, f *proc.IntrFrame) {
	start := p.Accnt.Now()
	defer func() { p.Accnt.Systadd(p.Accnt.Now() - start) }()
	switch f.Rax {
	case SYS_HALT:
		// no real power-off exists in this simulation; halting a
		// multi-process kernel out from under other live processes is
		// out of scope (no SMP, no shutdown sequencing in this kernel).
	case SYS_EXIT:
		p.Exit(int(int32(f.Rdi)))
	case SYS_FORK:
		tid, err := proc.Fork(k, p)
		if err != 0 {
			f.Rax = neg1
		} else {
			f.Rax = uint64(tid)
		}
	case SYS_EXEC:
		cmdline, err := readCString(p, uintptr(f.Rdi))
		if err != 0 {
			f.Rax = neg1
			return
		}
		argv := strings.Fields(cmdline)
		if len(argv) == 0 {
			f.Rax = neg1
			return
		}
		if err := proc.Exec(k, p, argv[0], argv); err != 0 {
			f.Rax = neg1
			return
		}
		f.Rax = 0
	case SYS_WAIT:
		code, err := proc.Wait(p, defs.Tid_t(int32(f.Rdi)))
		if err != 0 {
			f.Rax = neg1
		} else {
			f.Rax = uint64(int64(int32(code)))
		}
	case SYS_CREATE:
		name, err := readCString(p, uintptr(f.Rdi))
		if err != 0 {
			f.Rax = 0
			return
		}
		if k.FS.Create(name, int64(f.Rsi)) != 0 {
			f.Rax = 0
		} else {
			f.Rax = 1
		}
	case SYS_REMOVE:
		name, err := readCString(p, uintptr(f.Rdi))
		if err != 0 {
			f.Rax = 0
			return
		}
		if k.FS.Remove(name) != 0 {
			f.Rax = 0
		} else {
			f.Rax = 1
		}
	case SYS_OPEN:
		name, err := readCString(p, uintptr(f.Rdi))
		if err != 0 {
			f.Rax = neg1
			return
		}
		file, ferr := k.FS.Open(name)
		if ferr != 0 {
			f.Rax = neg1
			return
		}
		fdn, aerr := p.Fdt.Alloc(file.AsFdops())
		if aerr != 0 {
			file.Close()
			f.Rax = neg1
			return
		}
		f.Rax = uint64(int64(fdn))
	case SYS_FILESIZE:
		entry, err := p.Fdt.Get(int(int32(f.Rdi)))
		if err != 0 {
			f.Rax = 0
			return
		}
		sz, ok := entry.Fops.(sizer)
		if !ok {
			f.Rax = 0
			return
		}
		f.Rax = uint64(sz.Length())
	case SYS_READ:
		fdn := int(int32(f.Rdi))
		buf := make([]byte, f.Rdx)
		entry, gerr := p.Fdt.Get(fdn)
		if gerr != 0 {
			f.Rax = neg1
			return
		}
		n, rerr := entry.Fops.Read(buf)
		if rerr != 0 {
			f.Rax = neg1
			return
		}
		if err := copyOut(p, uintptr(f.Rsi), buf[:n]); err != 0 {
			f.Rax = neg1
			return
		}
		f.Rax = uint64(n)
	case SYS_WRITE:
		fdn := int(int32(f.Rdi))
		entry, gerr := p.Fdt.Get(fdn)
		if gerr != 0 {
			f.Rax = neg1
			return
		}
		buf := make([]byte, f.Rdx)
		if err := copyIn(p, uintptr(f.Rsi), buf); err != 0 {
			f.Rax = neg1
			return
		}
		n, werr := entry.Fops.Write(buf)
		if werr != 0 {
			f.Rax = neg1
			return
		}
		f.Rax = uint64(n)
	case SYS_SEEK:
		entry, gerr := p.Fdt.Get(int(int32(f.Rdi)))
		if gerr != 0 {
			return
		}
		if sz, ok := entry.Fops.(sizer); ok {
			sz.Seek(int64(f.Rsi))
		}
	case SYS_TELL:
		entry, gerr := p.Fdt.Get(int(int32(f.Rdi)))
		if gerr != 0 {
			f.Rax = neg1
			return
		}
		if sz, ok := entry.Fops.(sizer); ok {
			f.Rax = uint64(sz.Tell())
		} else {
			f.Rax = neg1
		}
	case SYS_CLOSE:
		p.Fdt.Close(int(int32(f.Rdi)))
	case SYS_MMAP:
		entry, gerr := p.Fdt.Get(int(int32(f.R10)))
		if gerr != 0 {
			f.Rax = neg1
			return
		}
		file, ok := entry.Fops.(spt.FileOps)
		if !ok {
			f.Rax = neg1
			return
		}
		writable := f.Rdx != 0
		addr, merr := p.Spt.Mmap(uintptr(f.Rdi), int(f.Rsi), writable, file, int64(f.R8))
		if merr != 0 {
			f.Rax = neg1
			return
		}
		f.Rax = uint64(addr)
	case SYS_MUNMAP:
		p.Spt.Munmap(uintptr(f.Rdi))
	case SYS_GETRUSAGE:
		ru := p.Accnt.Fetch()
		if err := copyOut(p, uintptr(f.Rdi), ru); err != 0 {
			f.Rax = neg1
			return
		}
		f.Rax = 0
	}
}
