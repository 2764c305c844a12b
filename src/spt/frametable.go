package spt

import (
	"sync"

	"mem"
)

/// frameTable is the system-wide reverse map from physical frame to owning
/// page, shared by every address space's Spt_t. The reference kernel uses
/// this table to pick an eviction victim; Non-goals exclude swap-to-disk
/// here, so it is read-only bookkeeping, read through Snapshot.
type frameTable struct {
	mu     sync.Mutex
	owners map[mem.Pa_t]*Page
}

var frames = &frameTable{owners: make(map[mem.Pa_t]*Page)}

func (ft *frameTable) register(pa mem.Pa_t, p *Page) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.owners[pa] = p
}

func (ft *frameTable) unregister(pa mem.Pa_t) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	delete(ft.owners, pa)
}

/// FrameEntry is one row of a Snapshot: the virtual page an owned physical
/// frame currently backs.
type FrameEntry struct {
	Frame mem.Pa_t
	Va    uintptr
}

/// Snapshot copies the current frame table, used by profdev to build a
/// D_PROF profile.
func Snapshot() []FrameEntry {
	frames.mu.Lock()
	defer frames.mu.Unlock()
	out := make([]FrameEntry, 0, len(frames.owners))
	for pa, p := range frames.owners {
		out = append(out, FrameEntry{Frame: pa, Va: p.Va})
	}
	return out
}
