package spt

import (
	"defs"
	"mem"
)

/// Mmap registers length bytes of file starting at ofs as a private
/// file-backed mapping at addr, one lazily-loaded Page per 4 KiB chunk,
/// the equivalent of do_mmap. addr must be page-aligned and not overlap
/// any existing mapping; shared mappings are not supported (no
/// shared-memory IPC in this kernel), so every page is a private copy
/// written back to file only on its own munmap/exit.
func (s *Spt_t) Mmap(addr uintptr, length int, writable bool, file FileOps, ofs int64) (uintptr, defs.Err_t) {
	if addr == 0 || length <= 0 || pageAlign(addr) != addr {
		return 0, defs.EINVAL
	}
	if ofs < 0 || ofs%int64(mem.PGSIZE) != 0 {
		return 0, defs.EINVAL
	}
	if sz, ok := file.(interface{ Length() int64 }); ok && sz.Length() == 0 {
		return 0, defs.EINVAL
	}
	pageCount := (length + mem.PGSIZE - 1) / mem.PGSIZE
	vas := make([]uintptr, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		va := addr + uintptr(i*mem.PGSIZE)
		if s.FindPage(va) != nil {
			return 0, defs.EINVAL
		}
		vas = append(vas, va)
	}

	remaining := length
	curOfs := ofs
	for _, va := range vas {
		readBytes := mem.PGSIZE
		if remaining < mem.PGSIZE {
			readBytes = remaining
		}
		zeroBytes := mem.PGSIZE - readBytes
		if !s.AllocFilePage(va, writable, file, curOfs, readBytes, zeroBytes) {
			s.unmapRange(vas)
			return 0, defs.ENOMEM
		}
		remaining -= readBytes
		curOfs += int64(readBytes)
	}

	s.mu.Lock()
	s.mmaps[addr] = vas
	s.mu.Unlock()
	return addr, 0
}

/// Munmap tears down the mapping that Mmap returned as addr, writing back
/// any page whose dirty bit is set, the equivalent of do_munmap.
func (s *Spt_t) Munmap(addr uintptr) defs.Err_t {
	s.mu.Lock()
	vas, ok := s.mmaps[addr]
	delete(s.mmaps, addr)
	s.mu.Unlock()
	if !ok {
		return defs.EINVAL
	}
	s.unmapRange(vas)
	return 0
}

func (s *Spt_t) unmapRange(vas []uintptr) {
	for _, va := range vas {
		if page := s.FindPage(va); page != nil {
			s.destroyPage(page)
			s.RemovePage(va)
		}
	}
}
