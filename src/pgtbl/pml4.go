// Package pgtbl implements the page-table manager: a 4-level, 4 KiB-page
// address-translation structure, one root per process address space, plus
// a shared kernel half. There is no real MMU underneath this module, so
// the "hardware" walk is a genuine radix tree indexed by the real amd64
// virtual-address bit layout (9 bits per level, bits 12-47), grounded on
// the index arithmetic in biscuit/src/mem/dmap.go (shl/pgbits), though
// none of that file's runtime hooks are reachable from a standard build.
package pgtbl

import "mem"

/// KERN_BASE is the first virtual address reserved for the kernel; every
/// user VA must be strictly less than this.
const KERN_BASE uintptr = 1 << 47

/// USER_STACK is the fixed initial top of every user stack.
const USER_STACK uintptr = KERN_BASE

const pgbits = 9
const pgidxmask = uintptr(1<<pgbits) - 1

func shift(level int) uint {
	return mem.PGSHIFT + uint(pgbits*level)
}

func index(va uintptr, level int) uintptr {
	return (va >> shift(level)) & pgidxmask
}

/// pageAlign rounds va down to a page boundary.
func pageAlign(va uintptr) uintptr {
	return va &^ (uintptr(mem.PGSIZE) - 1)
}

type leaf struct {
	present  bool
	writable bool
	dirty    bool
	accessed bool
	frame    mem.Pa_t
}

type node struct {
	// level 0 nodes hold leaves; levels 1-3 hold child nodes.
	children [512]*node
	leaves   [512]*leaf
}

/// Pml4_t is one address space's page-table root. The kernel half (the
/// upper portion of the index space) is shared by every Pml4_t so kernel
/// mappings need not be duplicated per process.
type Pml4_t struct {
	root    *node
	pm      *mem.Physmem_t
	kernel  bool
}

var kernelRoot *node

/// Init installs the shared kernel-half mappings. Call once at boot before
/// any Create.
func Init() {
	kernelRoot = &node{}
}

/// Create allocates a fresh root populated with the kernel half, the
/// equivalent of pml4_create().
func Create(pm *mem.Physmem_t) *Pml4_t {
	if kernelRoot == nil {
		Init()
	}
	r := &node{}
	// share the top half of the PML4 index space (indices 256-511, i.e.
	// the canonical-negative half) with every address space.
	for i := 256; i < 512; i++ {
		r.children[i] = kernelRoot.children[i]
	}
	return &Pml4_t{root: r, pm: pm}
}

func (p *Pml4_t) walk(va uintptr, create bool) *node {
	n := p.root
	for level := 3; level >= 1; level-- {
		idx := index(va, level)
		if n.children[idx] == nil {
			if !create {
				return nil
			}
			n.children[idx] = &node{}
		}
		n = n.children[idx]
	}
	return n
}

/// GetPage resolves a user virtual address to its backing page, or nil if
/// unmapped.
func (p *Pml4_t) GetPage(va uintptr) *mem.Bytepg_t {
	va = pageAlign(va)
	n := p.walk(va, false)
	if n == nil {
		return nil
	}
	l := n.leaves[index(va, 0)]
	if l == nil || !l.present {
		return nil
	}
	return p.pm.Dmap(l.frame)
}

/// SetPage installs a mapping from va to kpage. It fails (returns false) if
/// va is already mapped, matching install_page's "must not already be
/// mapped" contract.
func (p *Pml4_t) SetPage(va uintptr, kpage mem.Pa_t, writable bool) bool {
	va = pageAlign(va)
	if va == 0 {
		panic("page 0 must never be mapped")
	}
	n := p.walk(va, true)
	idx := index(va, 0)
	if n.leaves[idx] != nil && n.leaves[idx].present {
		return false
	}
	n.leaves[idx] = &leaf{present: true, writable: writable, frame: kpage}
	return true
}

/// ClearPage removes the mapping at va, if any. It does not free the
/// backing frame; that is the caller's responsibility (spt/proc), exactly
/// as pml4_clear_page and palloc_free_page are separate calls in the
/// reference kernel.
func (p *Pml4_t) ClearPage(va uintptr) {
	va = pageAlign(va)
	n := p.walk(va, false)
	if n == nil {
		return
	}
	n.leaves[index(va, 0)] = nil
}

func (p *Pml4_t) find(va uintptr) *leaf {
	n := p.walk(pageAlign(va), false)
	if n == nil {
		return nil
	}
	return n.leaves[index(va, 0)]
}

/// IsDirty reports the simulated hardware dirty bit for va.
func (p *Pml4_t) IsDirty(va uintptr) bool {
	l := p.find(va)
	return l != nil && l.dirty
}

/// SetDirty sets or clears the simulated dirty bit for va.
func (p *Pml4_t) SetDirty(va uintptr, v bool) {
	if l := p.find(va); l != nil {
		l.dirty = v
	}
}

/// IsAccessed reports the simulated accessed bit for va.
func (p *Pml4_t) IsAccessed(va uintptr) bool {
	l := p.find(va)
	return l != nil && l.accessed
}

/// SetAccessed sets or clears the simulated accessed bit for va.
func (p *Pml4_t) SetAccessed(va uintptr, v bool) {
	if l := p.find(va); l != nil {
		l.accessed = v
	}
}

/// IsWritable reports whether the mapping at va allows user writes.
func (p *Pml4_t) IsWritable(va uintptr) bool {
	l := p.find(va)
	return l != nil && l.writable
}

/// Frame returns the physical frame backing va and whether it is present.
func (p *Pml4_t) Frame(va uintptr) (mem.Pa_t, bool) {
	l := p.find(va)
	if l == nil || !l.present {
		return 0, false
	}
	return l.frame, true
}

/// Visitor is called by ForEach for every present user-half leaf.
type Visitor func(va uintptr, frame mem.Pa_t, writable bool, aux interface{}) bool

/// ForEach walks every present user-half leaf in ascending address order,
/// invoking visitor(va, frame, writable, aux); it stops and returns false on the first
/// false result, mirroring pml4_for_each's early-abort contract.
func (p *Pml4_t) ForEach(visitor Visitor, aux interface{}) bool {
	for i4 := 0; i4 < 256; i4++ {
		c4 := p.root.children[i4]
		if c4 == nil {
			continue
		}
		if !forEachLevel(c4, 3, uintptr(i4)<<shift(3), visitor, aux) {
			return false
		}
	}
	return true
}

func forEachLevel(n *node, level int, prefix uintptr, visitor Visitor, aux interface{}) bool {
	if level == 0 {
		for i, l := range n.leaves {
			if l == nil || !l.present {
				continue
			}
			va := prefix | uintptr(i)<<mem.PGSHIFT
			if !visitor(va, l.frame, l.writable, aux) {
				return false
			}
		}
		return true
	}
	for i, c := range n.children {
		if c == nil {
			continue
		}
		if !forEachLevel(c, level-1, prefix|uintptr(i)<<shift(level), visitor, aux) {
			return false
		}
	}
	return true
}

/// Destroy frees every user-half physical frame reachable from p and
/// releases it back to pm, then drops the tree. Kernel-half subtrees are
/// shared and must not be freed.
func (p *Pml4_t) Destroy() {
	for i := 0; i < 256; i++ {
		destroyNode(p.root.children[i], 3, p.pm)
	}
	p.root = nil
}

func destroyNode(n *node, level int, pm *mem.Physmem_t) {
	if n == nil {
		return
	}
	if level == 0 {
		for _, l := range n.leaves {
			if l != nil && l.present {
				pm.FreePage(l.frame)
			}
		}
		return
	}
	for _, c := range n.children {
		destroyNode(c, level-1, pm)
	}
}
