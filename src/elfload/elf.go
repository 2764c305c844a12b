// Package elfload loads a user ELF64 executable into an address space,
// grounded on userprog/process.c's load()/validate_segment()/
// load_segment() from original_source/, but parsing the binary with the
// standard library's debug/elf instead of hand-rolled ELF64_hdr/
// ELF64_PHDR structs, the way biscuit/src/kernel/chentry.go already uses
// debug/elf for its own ELF surgery.
package elfload

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"defs"
	"mem"
	"pgtbl"
	"spt"
)

// Raw ELF64 header field sizes/offsets debug/elf does not expose through
// elf.FileHeader, read directly off the first ehdrSize bytes so e_version/
// e_phentsize/e_phnum can be checked against validate_segment's own
// rejections (original_source/userprog/process.c:413-419).
const (
	ehdrSize      = 64
	ehdrPhentSize = 54
	ehdrPhnum     = 56
	ehdrVersion   = 20
	phdrSize      = 56
	maxPhnum      = 1024
)

// sizer is the optional extra a Binary may implement to report its total
// length, used to bounds-check a PT_LOAD segment's file offset; a Binary
// that does not implement it skips that one check.
type sizer interface {
	Length() int64
}

/// Binary is the narrow read contract elfload needs from a backing file;
/// satisfied structurally by fs.File.
type Binary = spt.FileOps

// readerAt adapts a Binary's Err_t-returning ReadAt to the io.ReaderAt
// debug/elf expects.
type readerAt struct {
	bin Binary
}

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.bin.ReadAt(p, off)
	if err != 0 {
		return n, fmt.Errorf("elfload: read error %d", err)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

/// Loaded describes a successfully loaded executable: where execution
/// starts, the equivalent of the entry value load() hands back to
/// process_exec for the initial instruction pointer.
type Loaded struct {
	Entry uintptr
}

/// validateSegment rejects program headers the reference kernel's
/// validate_segment would reject: misaligned, outside the user address
/// range, wrapping, overlapping the kernel half, landing on page zero, or
/// whose file offset doesn't fall on the same intra-page boundary as its
/// virtual address (original_source/userprog/process.c:500-535).
/// fileSize is the backing file's total length; pass haveSize false when
/// it can't be determined and the file-bounds check is skipped.
func validateSegment(ph *elf.Prog, fileSize int64, haveSize bool) bool {
	if ph.Filesz > ph.Memsz {
		return false
	}
	end := ph.Vaddr + ph.Memsz
	if end < ph.Vaddr {
		return false
	}
	if end > uint64(pgtbl.KERN_BASE) {
		return false
	}
	if ph.Vaddr < uint64(mem.PGSIZE) {
		return false
	}
	pgmask := uint64(mem.PGSIZE - 1)
	if ph.Off&pgmask != ph.Vaddr&pgmask {
		return false
	}
	if haveSize {
		if ph.Off > uint64(fileSize) {
			return false
		}
		if ph.Off+ph.Filesz > uint64(fileSize) {
			return false
		}
	}
	return true
}

/// Load parses an ELF64 executable out of bin and installs its PT_LOAD
/// segments into table as lazily-faulted ANON pages backed by the file,
/// the equivalent of load()'s segment-walking loop with VM defined
/// (lazy_load_segment), which is the only path taken here (demand paging
/// throughout).
func Load(bin Binary, table *spt.Spt_t) (*Loaded, defs.Err_t) {
	f, err := elf.NewFile(readerAt{bin})
	if err != nil {
		return nil, defs.ENOEXEC
	}
	if f.Class != elf.ELFCLASS64 || f.Type != elf.ET_EXEC || f.Machine != elf.EM_X86_64 {
		return nil, defs.ENOEXEC
	}

	hdr := make([]byte, ehdrSize)
	if n, rerr := bin.ReadAt(hdr, 0); rerr != 0 || n < ehdrSize {
		return nil, defs.ENOEXEC
	}
	if binary.LittleEndian.Uint32(hdr[ehdrVersion:ehdrVersion+4]) != uint32(elf.EV_CURRENT) {
		return nil, defs.ENOEXEC
	}
	if binary.LittleEndian.Uint16(hdr[ehdrPhentSize:ehdrPhentSize+2]) != phdrSize {
		return nil, defs.ENOEXEC
	}
	if binary.LittleEndian.Uint16(hdr[ehdrPhnum:ehdrPhnum+2]) > maxPhnum {
		return nil, defs.ENOEXEC
	}
	if len(f.Progs) > maxPhnum {
		return nil, defs.ENOEXEC
	}

	var fileSize int64
	haveSize := false
	if sz, ok := bin.(sizer); ok {
		fileSize = sz.Length()
		haveSize = true
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if !validateSegment(prog, fileSize, haveSize) {
			return nil, defs.ENOEXEC
		}
		if err := loadSegment(bin, table, prog); err != 0 {
			return nil, err
		}
	}

	return &Loaded{Entry: uintptr(f.Entry)}, 0
}

// loadSegment registers the lazily-faulted ANON pages backing one PT_LOAD
// program header, mirroring load_segment's page-by-page accounting of
// read_bytes/zero_bytes via lazy_load_segment. These resolve to KindAnon,
// not KindFile: the executable is only ever read, never written back.
func loadSegment(bin Binary, table *spt.Spt_t, prog *elf.Prog) defs.Err_t {
	writable := prog.Flags&elf.PF_W != 0

	vaddr := uintptr(prog.Vaddr)
	pageVa := vaddr &^ (uintptr(mem.PGSIZE) - 1)
	skew := int(vaddr - pageVa)

	fileOfs := int64(prog.Off) - int64(skew)
	remainingFile := int64(prog.Filesz) + int64(skew)
	remainingMem := int64(prog.Memsz) + int64(skew)

	for remainingMem > 0 {
		readBytes := 0
		if remainingFile > 0 {
			readBytes = mem.PGSIZE
			if int64(readBytes) > remainingFile {
				readBytes = int(remainingFile)
			}
		}
		zeroBytes := mem.PGSIZE - readBytes

		if !table.AllocExecSegmentPage(pageVa, writable, bin, fileOfs, readBytes, zeroBytes) {
			return defs.ENOMEM
		}

		pageVa += uintptr(mem.PGSIZE)
		fileOfs += int64(readBytes)
		remainingFile -= int64(readBytes)
		remainingMem -= mem.PGSIZE
	}
	return 0
}
