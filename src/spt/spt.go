// Package spt implements the supplemental page table: the tagged-union
// page descriptor (UNINIT/ANON/FILE), the frame table, and the
// page-fault policy (lazy load, stack growth, illegal-access
// termination). Grounded on vm/vm.c and vm/uninit.c's uninit_new/
// vm_do_claim_page shape from original_source/, adapted to a simulated
// mem.Physmem_t and pgtbl.Pml4_t instead of a real MMU.
package spt

import (
	"sync"

	"defs"
	"mem"
	"pgtbl"
	"stats"
)

// faultCounters tracks page-fault outcomes system-wide, the Go-side
// replacement for biscuit/src/stats's Counter_t fields on a *_stats_t
// struct; enabled only when stats.Stats is flipped on, matching that
// package's own zero-cost-when-off contract.
var faultCounters struct {
	Faults        stats.Counter_t
	StackGrowths  stats.Counter_t
	LazyResolves  stats.Counter_t
}

/// Stats renders the accumulated fault counters, empty when stats.Stats is
/// false, the equivalent of Stats2String(kernel_stats).
func Stats() string {
	return stats.Stats2String(faultCounters)
}

/// Kind tags which variant of the page-descriptor union a Page currently is.
type Kind int

const (
	KindUninit Kind = iota
	KindAnon
	KindFile
)

/// Initializer lazily populates a freshly-allocated physical frame the
/// first time a page is faulted in, the Go analog of uninit.init +
/// page_initializer from the reference kernel. It returns false on
/// failure (e.g. a read error loading an ELF segment).
type Initializer func(kpage *mem.Bytepg_t, aux interface{}) bool

/// FileOps is the narrow file contract spt needs for file-backed pages;
/// satisfied structurally by fs.File without either package importing the
/// other.
type FileOps interface {
	ReadAt(buf []byte, ofs int64) (int, defs.Err_t)
	WriteAt(buf []byte, ofs int64) (int, defs.Err_t)
}

/// FileBackedAux records how a FILE page maps onto its backing file,
/// mirroring the reference kernel's struct file_page.
type FileBackedAux struct {
	File      FileOps
	Ofs       int64
	ReadBytes int
	ZeroBytes int
}

/// Page is one supplemental-page-table entry: a virtual page plus enough
/// state to fault it in, mirroring struct page's anonymous union of
/// uninit/anon/file_page.
type Page struct {
	mu sync.Mutex

	Va       uintptr
	Writable bool
	Kind     Kind
	Frame    mem.Pa_t

	init    Initializer
	initAux interface{}
	File    *FileBackedAux
}

func anonInit(kpage *mem.Bytepg_t, aux interface{}) bool {
	*kpage = mem.Bytepg_t{}
	return true
}

func fileInit(kpage *mem.Bytepg_t, aux interface{}) bool {
	fa := aux.(*FileBackedAux)
	for i := fa.ReadBytes; i < len(kpage); i++ {
		kpage[i] = 0
	}
	if fa.ReadBytes == 0 {
		return true
	}
	n, err := fa.File.ReadAt(kpage[:fa.ReadBytes], fa.Ofs)
	return err == 0 && n == fa.ReadBytes
}

/// Spt_t is one address space's supplemental page table.
type Spt_t struct {
	mu    sync.Mutex
	pages map[uintptr]*Page
	mmaps map[uintptr][]uintptr

	pml4 *pgtbl.Pml4_t
	pm   *mem.Physmem_t
}

func pageAlign(va uintptr) uintptr {
	return va &^ (uintptr(mem.PGSIZE) - 1)
}

/// New creates an empty supplemental page table bound to pml4 and the
/// system frame pool, the equivalent of supplemental_page_table_init.
func New(pml4 *pgtbl.Pml4_t, pm *mem.Physmem_t) *Spt_t {
	return &Spt_t{
		pages: make(map[uintptr]*Page),
		mmaps: make(map[uintptr][]uintptr),
		pml4:  pml4,
		pm:    pm,
	}
}

/// FindPage returns the page covering va, or nil, the equivalent of
/// spt_find_page.
func (s *Spt_t) FindPage(va uintptr) *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[pageAlign(va)]
}

/// InsertPage registers p, failing if its address is already claimed by
/// another page, the equivalent of spt_insert_page.
func (s *Spt_t) InsertPage(p *Page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	va := pageAlign(p.Va)
	if _, ok := s.pages[va]; ok {
		return false
	}
	s.pages[va] = p
	return true
}

/// RemovePage drops the bookkeeping entry for va without touching any
/// frame it owns; callers that need the frame released call destroyPage
/// first.
func (s *Spt_t) RemovePage(va uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pages, pageAlign(va))
}

/// AllocPageWithInitializer registers a lazily-loaded page at va: it
/// starts KindUninit and resolves to its target kind on first fault, the
/// equivalent of vm_alloc_page_with_initializer.
func (s *Spt_t) AllocPageWithInitializer(va uintptr, writable bool, init Initializer, aux interface{}, file *FileBackedAux) bool {
	p := &Page{
		Va:       pageAlign(va),
		Writable: writable,
		Kind:     KindUninit,
		init:     init,
		initAux:  aux,
		File:     file,
	}
	return s.InsertPage(p)
}

/// AllocAnonPage registers an immediately-resolvable zero-fill anonymous
/// page (stack growth, bss), the equivalent of vm_alloc_page(VM_ANON, ...).
func (s *Spt_t) AllocAnonPage(va uintptr, writable bool) bool {
	return s.AllocPageWithInitializer(va, writable, anonInit, nil, nil)
}

/// AllocFilePage registers a lazily file-backed page (mmap), the
/// equivalent of vm_alloc_page_with_initializer(VM_FILE, ..., lazy_load_segment, aux):
/// a dirty writable page is written back to file on teardown.
func (s *Spt_t) AllocFilePage(va uintptr, writable bool, file FileOps, ofs int64, readBytes, zeroBytes int) bool {
	fa := &FileBackedAux{File: file, Ofs: ofs, ReadBytes: readBytes, ZeroBytes: zeroBytes}
	return s.AllocPageWithInitializer(va, writable, fileInit, fa, fa)
}

/// AllocExecSegmentPage registers a lazily-loaded page whose initial
/// content is read from file once on first fault, the equivalent of
/// load_segment's vm_alloc_page_with_initializer(VM_ANON, ..., lazy_load_segment, aux).
/// Unlike AllocFilePage it resolves to KindAnon (file left nil), so
/// destroyPage never write-backs a dirty page against the executable it
/// was read from.
func (s *Spt_t) AllocExecSegmentPage(va uintptr, writable bool, file FileOps, ofs int64, readBytes, zeroBytes int) bool {
	fa := &FileBackedAux{File: file, Ofs: ofs, ReadBytes: readBytes, ZeroBytes: zeroBytes}
	return s.AllocPageWithInitializer(va, writable, fileInit, fa, nil)
}

func (s *Spt_t) swapIn(page *Page, kpage *mem.Bytepg_t) bool {
	if page.Kind != KindUninit {
		return true
	}
	if !page.init(kpage, page.initAux) {
		return false
	}
	if page.File != nil {
		page.Kind = KindFile
	} else {
		page.Kind = KindAnon
	}
	return true
}

func (s *Spt_t) doClaim(page *Page) bool {
	page.mu.Lock()
	defer page.mu.Unlock()
	if page.Frame != 0 {
		return true
	}
	pa, ok := s.pm.GetPage(mem.PAL_USER)
	if !ok {
		return false
	}
	if !s.swapIn(page, s.pm.Dmap(pa)) {
		s.pm.FreePage(pa)
		return false
	}
	if !s.pml4.SetPage(page.Va, pa, page.Writable) {
		s.pm.FreePage(pa)
		return false
	}
	page.Frame = pa
	frames.register(pa, page)
	return true
}

/// ClaimPage finds the page at va and makes sure it has a physical frame
/// mapped in, the equivalent of vm_claim_page.
func (s *Spt_t) ClaimPage(va uintptr) bool {
	page := s.FindPage(va)
	if page == nil {
		return false
	}
	return s.doClaim(page)
}

/// KPage returns the kernel-addressable bytes backing va, or nil if va is
/// not currently mapped to a frame. Callers (ustack, the syscall layer's
/// user-buffer copies) use this instead of reaching into mem directly.
func (s *Spt_t) KPage(va uintptr) *mem.Bytepg_t {
	page := s.FindPage(va)
	if page == nil || page.Frame == 0 {
		return nil
	}
	return s.pm.Dmap(page.Frame)
}

/// STACK_LIMIT bounds automatic stack growth: it is the lowest address
/// (1 MiB below USER_STACK) a fault can grow the stack to, matching the reference kernel's
/// fixed 1 MiB stack ceiling.
const STACK_LIMIT = pgtbl.USER_STACK - (1 << 20)

/// HandleFault resolves a page fault at va, with write reporting whether
/// the faulting access was a write and rsp the user stack pointer at fault
/// time (needed to tell a legitimate stack-growing push from a wild
/// pointer). It returns 0 on success or a defs.Err_t describing why the
/// fault is fatal, the equivalent of vm_try_handle_fault's policy.
func (s *Spt_t) HandleFault(va, rsp uintptr, write bool) defs.Err_t {
	faultCounters.Faults.Inc()
	if va >= pgtbl.KERN_BASE {
		return defs.EFAULT
	}
	pageVa := pageAlign(va)
	if page := s.FindPage(pageVa); page != nil {
		if write && !page.Writable {
			return defs.EFAULT
		}
		faultCounters.LazyResolves.Inc()
		if !s.doClaim(page) {
			return defs.ENOMEM
		}
		return 0
	}
	if pageVa >= STACK_LIMIT && pageVa < pgtbl.USER_STACK && va+8 >= rsp {
		faultCounters.StackGrowths.Inc()
		if !s.AllocAnonPage(pageVa, true) {
			return defs.ENOMEM
		}
		if !s.ClaimPage(pageVa) {
			return defs.ENOMEM
		}
		return 0
	}
	return defs.EFAULT
}

func (s *Spt_t) destroyPage(page *Page) {
	page.mu.Lock()
	defer page.mu.Unlock()
	if page.Frame == 0 {
		return
	}
	if page.Kind == KindFile && page.Writable && s.pml4.IsDirty(page.Va) {
		page.File.File.WriteAt(s.pm.Dmap(page.Frame)[:page.File.ReadBytes], page.File.Ofs)
	}
	s.pml4.ClearPage(page.Va)
	s.pm.FreePage(page.Frame)
	frames.unregister(page.Frame)
	page.Frame = 0
}

/// Kill tears the whole table down: every mapped page is write-backed if
/// dirty and file-backed, then its frame is freed, the equivalent of
/// supplemental_page_table_kill.
func (s *Spt_t) Kill() {
	s.mu.Lock()
	pages := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.Unlock()
	for _, p := range pages {
		s.destroyPage(p)
	}
}

/// Copy duplicates every page descriptor of s into dst for a forking
/// child: UNINIT pages are copied as-is (not yet resolved, so nothing to
/// share), resolved pages are eagerly claimed and their bytes copied into
/// a freshly allocated frame, the equivalent of supplemental_page_table_copy.
func (s *Spt_t) Copy(dst *Spt_t) bool {
	s.mu.Lock()
	pages := make([]*Page, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.Unlock()

	for _, p := range pages {
		p.mu.Lock()
		kind, writable, va := p.Kind, p.Writable, p.Va
		var fileCopy *FileBackedAux
		if p.File != nil {
			fc := *p.File
			fileCopy = &fc
		}
		initFn, initAux := p.init, p.initAux
		hasFrame := p.Frame != 0
		var src mem.Bytepg_t
		if hasFrame {
			src = *s.pm.Dmap(p.Frame)
		}
		p.mu.Unlock()

		switch kind {
		case KindUninit:
			if !dst.AllocPageWithInitializer(va, writable, initFn, initAux, fileCopy) {
				return false
			}
		default:
			if !dst.AllocAnonPage(va, writable) {
				return false
			}
			if hasFrame {
				if !dst.ClaimPage(va) {
					return false
				}
				child := dst.FindPage(va)
				*s.pm.Dmap(child.Frame) = src
			}
		}
	}
	return true
}
